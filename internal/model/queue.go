// Package model defines the records and documents exchanged between the API and the game server.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Keys owned by the queue protocol. Every other key in a request object is payload.
const (
	keyRequestID   = "requestId"
	keyRequestedAt = "requestedAt"
	keyProcessed   = "processed"
	keyProcessedAt = "processedAt"
)

// QueueFile is the on-disk queue document: {"requests": [...]}.
type QueueFile struct {
	Requests []Request `json:"requests"`
}

// Request is one desired action. Payload holds the feature-specific fields, which are
// flattened next to the protocol fields when encoded.
type Request struct {
	RequestID   string
	RequestedAt string
	Processed   bool
	ProcessedAt string
	Payload     map[string]json.RawMessage
}

// NewRequest builds an unprocessed request from a feature payload. The payload must encode
// to a JSON object; protocol keys inside it are ignored.
func NewRequest(id string, payload any, now time.Time) (Request, error) {
	fields, err := payloadFields(payload)
	if err != nil {
		return Request{}, err
	}
	return Request{
		RequestID:   id,
		RequestedAt: now.UTC().Format(time.RFC3339),
		Payload:     fields,
	}, nil
}

func payloadFields(payload any) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if payload == nil {
		return fields, nil
	}

	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	for _, k := range []string{keyRequestID, keyRequestedAt, keyProcessed, keyProcessedAt} {
		delete(fields, k)
	}
	return fields, nil
}

// DecodePayload unmarshals the payload fields into v.
func (r Request) DecodePayload(v any) error {
	raw, err := json.Marshal(r.payloadOrEmpty())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// MarkProcessed sets the processed flag and stamps the completion time.
func (r *Request) MarkProcessed(at time.Time) {
	r.Processed = true
	r.ProcessedAt = at.UTC().Format(time.RFC3339)
}

// CompletedAt returns processedAt, falling back to requestedAt and then to the time encoded
// in a ULID request id. Zero when none of them parses.
func (r Request) CompletedAt() time.Time {
	if t, err := time.Parse(time.RFC3339, r.ProcessedAt); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, r.RequestedAt); err == nil {
		return t
	}
	if t, err := RequestIDTime(r.RequestID); err == nil {
		return t
	}
	return time.Time{}
}

func (r Request) payloadOrEmpty() map[string]json.RawMessage {
	if r.Payload == nil {
		return map[string]json.RawMessage{}
	}
	return r.Payload
}

// MarshalJSON writes protocol keys first, then payload keys in sorted order.
func (r Request) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		if raw, ok := value.(json.RawMessage); ok {
			buf.Write(raw)
			return nil
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(v)
		return nil
	}

	if err := write(keyRequestID, r.RequestID); err != nil {
		return nil, err
	}
	if err := write(keyRequestedAt, r.RequestedAt); err != nil {
		return nil, err
	}
	if err := write(keyProcessed, r.Processed); err != nil {
		return nil, err
	}
	if r.ProcessedAt != "" {
		if err := write(keyProcessedAt, r.ProcessedAt); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(r.Payload))
	for k := range r.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := r.Payload[k]
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		if err := write(k, v); err != nil {
			return nil, fmt.Errorf("marshal payload field %q: %w", k, err)
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON splits protocol keys from payload keys. Protocol keys with the wrong
// JSON type are rejected; a missing processed flag means false.
func (r *Request) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Request
	if v, ok := fields[keyRequestID]; ok {
		if err := json.Unmarshal(v, &out.RequestID); err != nil {
			return fmt.Errorf("%s: %w", keyRequestID, err)
		}
	}
	if v, ok := fields[keyRequestedAt]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.RequestedAt); err != nil {
			return fmt.Errorf("%s: %w", keyRequestedAt, err)
		}
	}
	if v, ok := fields[keyProcessed]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.Processed); err != nil {
			return fmt.Errorf("%s: %w", keyProcessed, err)
		}
	}
	if v, ok := fields[keyProcessedAt]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.ProcessedAt); err != nil {
			return fmt.Errorf("%s: %w", keyProcessedAt, err)
		}
	}

	for _, k := range []string{keyRequestID, keyRequestedAt, keyProcessed, keyProcessedAt} {
		delete(fields, k)
	}
	out.Payload = fields
	*r = out
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Find returns the index of the request with the given id, or -1.
func (q QueueFile) Find(id string) int {
	for i := range q.Requests {
		if q.Requests[i].RequestID == id {
			return i
		}
	}
	return -1
}

// Unprocessed returns the requests still waiting for the consumer.
func (q QueueFile) Unprocessed() []Request {
	var out []Request
	for _, r := range q.Requests {
		if !r.Processed {
			out = append(out, r)
		}
	}
	return out
}
