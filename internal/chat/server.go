package chat

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andy6609/chat-relay/internal/config"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second

	shutdownReason = "Server is shutting down"
)

// Server accepts connections and runs one Session per connection.
type Server struct {
	cfg    config.Server
	logger *slog.Logger
	reg    *Registry

	nextID  atomic.Uint64
	closing atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	sessions map[uint64]*Session
	wg       sync.WaitGroup
}

func NewServer(cfg config.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		reg:      NewRegistry(logger),
		sessions: make(map[uint64]*Session),
	}
}

func (s *Server) Registry() *Registry { return s.reg }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.Serve(ln); err != nil {
			s.logger.Error("accept loop stopped", "error", err)
		}
	}()

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop on ln until the listener is closed. Transient
// accept errors are retried with backoff. Stop closes ln.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				if s.closing.Load() {
					return nil
				}
				return err
			}
			delay = nextAcceptDelay(delay)
			s.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.startSession(conn)
	}
}

func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return minAcceptDelay
	}
	return min(delay*2, maxAcceptDelay)
}

func (s *Server) startSession(conn net.Conn) {
	id := s.nextID.Add(1)
	sess := newSession(id, conn, s.reg, s.logger, sessionOptions{
		writeTimeout: s.cfg.WriteTimeout,
		maxFrameSize: uint32(s.cfg.MaxFrameSize),
		onClose:      s.forget,
	})

	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[id] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	SessionsAccepted.Inc()
	s.logger.Info("client connected", "session", id, "addr", conn.RemoteAddr().String())

	go func() {
		defer s.wg.Done()
		sess.Run()
	}()
}

func (s *Server) forget(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}

// Stop closes the listener, says goodbye to every session and waits for
// their read loops to finish.
func (s *Server) Stop() {
	s.logger.Info("shutting down")

	s.mu.Lock()
	s.closing.Store(true)
	ln := s.listener
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, sess := range live {
		sess.shutdown(shutdownReason)
	}
	s.wg.Wait()

	s.logger.Info("shutdown complete")
}
