package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sudoservertools/sstbridge/internal/archive"
	"github.com/sudoservertools/sstbridge/internal/daemon"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

const defaultResultLimit = 50

type handler struct {
	producer   *queue.Producer
	store      storage.Store
	archive    *archive.Archive
	maxWait    time.Duration
	staleAfter time.Duration
	log        *log.Logger
	started    time.Time
}

type errorResp struct {
	Error string `json:"error"`
}

type featureResp struct {
	Name       string `json:"name"`
	QueueFile  string `json:"queueFile"`
	ResultFile string `json:"resultFile"`
}

type enqueueResp struct {
	RequestID string        `json:"requestId"`
	Status    model.Status  `json:"status"`
	Result    *model.Result `json:"result,omitempty"`
}

type consumerHealth struct {
	Heartbeat time.Time `json:"heartbeat"`
	Depth     int       `json:"depth"`
	Stale     bool      `json:"stale"`
	// Features are the ones the consumer reconciles, which may be a subset.
	Features []string `json:"features"`
}

type healthResp struct {
	Status   string          `json:"status"`
	Uptime   string          `json:"uptime"`
	Features []string        `json:"features"`
	Consumer *consumerHealth `json:"consumer,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResp{
		Status:   "ok",
		Uptime:   time.Since(h.started).Round(time.Second).String(),
		Features: h.producer.Features().Names(),
	}
	if h.store != nil {
		m, err := daemon.ReadMetrics(r.Context(), h.store)
		switch {
		case err == nil:
			stale := time.Since(m.Heartbeat) > h.staleAfter
			resp.Consumer = &consumerHealth{Heartbeat: m.Heartbeat, Depth: m.Depth(), Stale: stale, Features: m.FeatureNames()}
			if stale {
				resp.Status = "degraded"
			}
		case errors.Is(err, storage.ErrNotExist):
			resp.Status = "degraded"
		default:
			h.log.Warn("read consumer metrics: %v", err)
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listFeatures(w http.ResponseWriter, r *http.Request) {
	all := h.producer.Features().All()
	out := make([]featureResp, 0, len(all))
	for _, f := range all {
		out = append(out, featureResp{Name: f.Name(), QueueFile: f.QueueFile(), ResultFile: f.ResultFile()})
	}
	writeJSON(w, http.StatusOK, out)
}

// enqueue takes the payload as the body. A string "requestId" in the body is used as the id;
// otherwise one is assigned.
func (h *handler) enqueue(w http.ResponseWriter, r *http.Request) {
	feature := r.PathValue("feature")
	wait, ok := h.waitParam(w, r)
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json: " + err.Error()})
		return
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}

	var id string
	if raw, ok := body["requestId"]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "requestId must be a string"})
			return
		}
		delete(body, "requestId")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if id == "" {
		id, err = h.producer.Enqueue(r.Context(), feature, json.RawMessage(payload))
	} else {
		err = h.producer.EnqueueWithID(r.Context(), feature, id, json.RawMessage(payload))
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if wait <= 0 {
		writeJSON(w, http.StatusCreated, enqueueResp{RequestID: id, Status: model.StatusPending})
		return
	}
	res, err := h.producer.PollResult(r.Context(), feature, id, wait)
	switch {
	case errors.Is(err, queue.ErrPending):
		writeJSON(w, http.StatusAccepted, enqueueResp{RequestID: id, Status: model.StatusPending})
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusCreated, enqueueResp{RequestID: id, Status: res.Status, Result: &res})
	}
}

// status answers 200 for an outcome and 202 while the request is still pending.
func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	feature, id := r.PathValue("feature"), r.PathValue("id")
	wait, ok := h.waitParam(w, r)
	if !ok {
		return
	}

	res, err := h.producer.Status(r.Context(), feature, id)
	if err == nil && res.Status == model.StatusPending && wait > 0 {
		res, err = h.producer.PollResult(r.Context(), feature, id, wait)
		if errors.Is(err, queue.ErrPending) {
			res, err = model.PendingResult(id), nil
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusOK
	if res.Status == model.StatusPending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, res)
}

func (h *handler) results(w http.ResponseWriter, r *http.Request) {
	feature := r.PathValue("feature")
	if r.URL.Query().Get("source") == "archive" {
		h.archived(w, r, feature)
		return
	}
	res, err := h.producer.Results(r.Context(), feature)
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		res = []model.Result{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) archived(w http.ResponseWriter, r *http.Request, feature string) {
	if h.archive == nil {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "no result archive configured"})
		return
	}
	if _, err := h.producer.Features().Get(feature); err != nil {
		writeError(w, err)
		return
	}
	limit := defaultResultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	res, err := h.archive.Recent(feature, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		res = []model.Result{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) pending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.producer.Pending(r.Context(), r.PathValue("feature"))
	if err != nil {
		writeError(w, err)
		return
	}
	if reqs == nil {
		reqs = []model.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// waitParam parses ?wait= as a duration ("5s") or whole seconds ("5"), capped at maxWait.
func (h *handler) waitParam(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	s := r.URL.Query().Get("wait")
	if s == "" {
		return 0, true
	}
	d, err := parseWait(s)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
		return 0, false
	}
	return min(d, h.maxWait), true
}

func parseWait(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("wait must not be negative")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid wait %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("wait must not be negative")
	}
	return d, nil
}

// statusFor maps queue errors onto HTTP codes. Anything unrecognised is a storage failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrUnknownFeature), errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResp{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
