package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sudoservertools/sstbridge/internal/log"
)

// Handler serves one command. ctx is cancelled when the server stops.
type Handler func(ctx context.Context, req *Request) *Response

type Server struct {
	path     string
	log      *log.Logger
	timeout  time.Duration
	listener net.Listener

	mu       sync.RWMutex
	handlers map[string]Handler

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(path string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		path:     path,
		log:      logger.WithField("socket", path),
		timeout:  30 * time.Second,
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetTimeout bounds each connection, request and response included.
func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

func (s *Server) Handle(command string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = h
}

// Start listens on the socket, replacing a stale socket file. Only the owner may connect.
func (s *Server) Start() error {
	_ = os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, cancels running handlers and waits for them.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.path)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic serving control request: %v\n%s", r, debug.Stack())
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.log.Debug("read request: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if err := WriteFrame(conn, s.dispatch(ctx, &req)); err != nil {
		s.log.Debug("write response: %v", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.ProtocolVersion != ProtocolVersion {
		return Fail(CodeProtocolMismatch,
			fmt.Sprintf("protocol version mismatch: got %d, expected %d", req.ProtocolVersion, ProtocolVersion))
	}
	s.mu.RLock()
	h, ok := s.handlers[req.Command]
	s.mu.RUnlock()
	if !ok {
		return Fail(CodeUnknownCommand, fmt.Sprintf("unknown command: %q", req.Command))
	}
	return h(ctx, req)
}
