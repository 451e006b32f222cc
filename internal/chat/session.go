package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andy6609/chat-relay/internal/protocol"
)

// Session serves one connected client. It is created unnamed, becomes named
// and registered on HELLO, and is torn down exactly once on QUIT, end of
// stream, a transport error or a protocol violation.
type Session struct {
	id       uint64
	conn     net.Conn
	registry *Registry
	logger   *slog.Logger
	decoder  *protocol.Decoder
	out      *frameWriter

	name  atomic.Pointer[string]
	alive atomic.Bool

	// stateMu orders registration against teardown so a session can never
	// be added to the registry after it started closing.
	stateMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	onClose   func(*Session)
}

// defaultWriteTimeout bounds every write when no timeout is configured. A
// broadcast holds the registry read lock while writing, so writes must never
// block indefinitely.
const defaultWriteTimeout = 10 * time.Second

type sessionOptions struct {
	writeTimeout time.Duration
	maxFrameSize uint32
	onClose      func(*Session)
}

func newSession(id uint64, conn net.Conn, registry *Registry, logger *slog.Logger, opts sessionOptions) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}
	s := &Session{
		id:       id,
		conn:     conn,
		registry: registry,
		logger:   logger.With("session", id, "addr", conn.RemoteAddr().String()),
		decoder:  protocol.NewDecoder(conn),
		out:      newFrameWriter(conn, opts.writeTimeout),
		onClose:  opts.onClose,
	}
	s.decoder.MaxBodySize = opts.maxFrameSize
	s.alive.Store(true)
	return s
}

func (s *Session) ID() uint64 { return s.id }

// Name is empty until HELLO has been processed.
func (s *Session) Name() string {
	if p := s.name.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *Session) Send(env protocol.Envelope) error {
	return s.out.write(env)
}

// Run is the read loop. It returns once the session is torn down.
func (s *Session) Run() {
	defer s.Close()

	for s.alive.Load() {
		env, err := s.decoder.Decode()
		if err != nil {
			s.logReadError(err)
			return
		}

		start := time.Now()
		err = s.dispatch(env)
		EnvelopesTotal.WithLabelValues(string(env.Kind)).Inc()
		DispatchDuration.WithLabelValues(string(env.Kind)).Observe(time.Since(start).Seconds())

		if err != nil {
			if errors.Is(err, ErrProtocolViolation) {
				s.logger.Warn("dropping session", "error", err)
			} else {
				s.logger.Info("session ended", "error", err)
			}
			return
		}
	}
}

func (s *Session) dispatch(env protocol.Envelope) error {
	switch env.Kind {
	case protocol.KindHello:
		return s.handleHello(env.Name)
	case protocol.KindChat:
		return s.handleChat(env.Content)
	case protocol.KindQuit:
		return s.handleQuit()
	default:
		return fmt.Errorf("%w: unexpected %s from client", ErrProtocolViolation, env.Kind)
	}
}

func (s *Session) handleHello(name string) error {
	if s.Name() != "" {
		return fmt.Errorf("%w: second HELLO from %q", ErrProtocolViolation, s.Name())
	}
	s.name.Store(&name)
	s.logger.Info("received HELLO", "name", name)

	err := s.register(func(online []string) error {
		return s.Send(protocol.Welcome(welcomeText(name, online)))
	})
	if err != nil {
		return err
	}
	s.registry.Broadcast(protocol.Chat(serverPrefix+name+" is now online"), s.id)
	return nil
}

// register sends the WELCOME and joins the registry in one step, so no
// broadcast can reach this client ahead of its greeting.
func (s *Session) register(greet func(online []string) error) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.alive.Load() {
		return ErrSessionClosed
	}
	return s.registry.Join(s.id, s, greet)
}

func (s *Session) handleChat(text string) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("%w: CHAT before HELLO", ErrProtocolViolation)
	}
	s.logger.Debug("chat", "name", name, "length", len(text))
	s.registry.Broadcast(protocol.Chat(name+": "+text), s.id)
	return nil
}

func (s *Session) handleQuit() error {
	s.logger.Info("client wants to quit", "name", s.Name())
	if err := s.Send(protocol.Bye(byeText(s.Name()))); err != nil {
		s.logger.Debug("farewell not delivered", "error", err)
	}
	return s.Close()
}

// Close tears the session down: it leaves the registry, tells the remaining
// peers and closes the stream. Only the first call has any effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		s.alive.Store(false)
		s.stateMu.Unlock()

		if s.registry.Remove(s.id) {
			s.registry.Broadcast(protocol.Chat(serverPrefix+s.Name()+" left the chat"), s.id)
		}

		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
		if s.onClose != nil {
			s.onClose(s)
		}
	})
	return s.closeErr
}

// shutdown is used by the server when it stops: a registered client gets a
// farewell before its stream is closed.
func (s *Session) shutdown(reason string) {
	if s.alive.Load() && s.Name() != "" {
		_ = s.Send(protocol.Bye(reason))
	}
	_ = s.Close()
}

func (s *Session) logReadError(err error) {
	switch {
	case !s.alive.Load():
	case errors.Is(err, protocol.ErrEndOfStream):
		s.logger.Info("client disconnected", "name", s.Name())
	case errors.Is(err, protocol.ErrMalformed):
		s.logger.Warn("dropping session", "error", err)
	default:
		s.logger.Info("read failed", "error", err)
	}
}

func welcomeText(name string, online []string) string {
	return fmt.Sprintf("Welcome %s! You can now start to chat!\nCONNECTED USERS: %s", name, strings.Join(online, ", "))
}

func byeText(name string) string {
	if name == "" {
		return "You now left the chat. See you soon!"
	}
	return fmt.Sprintf("You now left the chat. See you soon %s!", name)
}
