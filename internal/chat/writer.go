package chat

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andy6609/chat-relay/internal/protocol"
)

// frameWriter serialises envelope writes to one connection. Broadcasts from
// many sessions may target the same peer at once; the mutex keeps their
// frames from interleaving on the wire.
//
// After the first failed write the connection is closed and every later write
// returns the same error. Closing wakes the owner's read loop, which performs
// the teardown.
type frameWriter struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
	err     error
}

func newFrameWriter(conn net.Conn, timeout time.Duration) *frameWriter {
	return &frameWriter{conn: conn, timeout: timeout}
}

func (w *frameWriter) write(env protocol.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))

	err := protocol.WriteEnvelope(w.conn, env)
	if err == nil {
		return nil
	}
	if errors.Is(err, protocol.ErrInvalidEnvelope) {
		return err
	}

	w.err = fmt.Errorf("chat: write %s: %w", env.Kind, err)
	_ = w.conn.Close()
	return w.err
}
