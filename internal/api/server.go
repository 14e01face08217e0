// Package api is the HTTP face of the producer side. Routes:
//
//	GET  /health
//	GET  /api/features
//	POST /api/{feature}/requests              enqueue, ?wait= polls for the outcome
//	GET  /api/{feature}/requests/{id}         status, ?wait= polls
//	GET  /api/{feature}/results               result file, ?source=archive&limit=N
//	GET  /api/{feature}/pending               unprocessed records
package api

import (
	"context"
	"io"
	stdlog "log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudoservertools/sstbridge/internal/archive"
	"github.com/sudoservertools/sstbridge/internal/log"
	"github.com/sudoservertools/sstbridge/internal/queue"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

type Options struct {
	Producer *queue.Producer
	// Store is read for the consumer's metrics file on /health. Optional.
	Store storage.Store
	// Archive backs ?source=archive on the results route. Optional.
	Archive *archive.Archive

	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustForwardedFor keys logging and rate limits on X-Forwarded-For. Only safe behind a
	// proxy that sets the header itself.
	TrustForwardedFor bool
	// MaxWait caps ?wait=. Defaults to 30s.
	MaxWait time.Duration
	// StaleAfter marks the consumer stale when its heartbeat is older. Defaults to 30s.
	StaleAfter time.Duration
	Logger     *log.Logger
}

type Server struct {
	inner     *http.Server
	errorsOut io.Closer
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	h := &handler{
		producer:   opts.Producer,
		store:      opts.Store,
		archive:    opts.Archive,
		maxWait:    opts.MaxWait,
		staleAfter: opts.StaleAfter,
		log:        opts.Logger.WithField("component", "api"),
		started:    time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/features", h.listFeatures)
	mux.HandleFunc("POST /api/{feature}/requests", h.enqueue)
	mux.HandleFunc("GET /api/{feature}/requests/{id}", h.status)
	mux.HandleFunc("GET /api/{feature}/results", h.results)
	mux.HandleFunc("GET /api/{feature}/pending", h.pending)

	ipOf := clientIP(opts.TrustForwardedFor)
	root := chain(mux,
		maxBodyMiddleware,
		loggingMiddleware(h.log, ipOf),
		authMiddleware(opts.APIKey),
		rateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst, ipOf),
	)

	// net/http's own errors (TLS handshakes, panics in handlers) go to logrus at warn
	errorsOut := opts.Logger.Logrus().WriterLevel(logrus.WarnLevel)

	return &Server{
		errorsOut: errorsOut,
		inner: &http.Server{
			Handler:           root,
			ErrorLog:          stdlog.New(errorsOut, "api: ", 0),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// long enough for the largest ?wait=
			WriteTimeout: opts.MaxWait + 15*time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed handler, for tests.
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	if err := s.inner.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown waits up to ctx's deadline for in-flight requests, including pending waits.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.inner.Shutdown(ctx)
	_ = s.errorsOut.Close()
	return err
}
