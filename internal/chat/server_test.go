package chat

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/andy6609/chat-relay/internal/config"
	"github.com/andy6609/chat-relay/internal/protocol"
)

func testConfig() config.Server {
	return config.Server{
		Addr:         "127.0.0.1:0",
		WriteTimeout: time.Second,
		MaxFrameSize: 1 << 20,
	}
}

func dial(t *testing.T, srv *Server) (net.Conn, *protocol.Decoder) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn, protocol.NewDecoder(conn)
}

func TestServer_RelaysOverTCP(t *testing.T) {
	req := require.New(t)
	accepted := testutil.ToFloat64(SessionsAccepted)

	srv := NewServer(testConfig(), nil)
	req.NoError(srv.Start())
	t.Cleanup(srv.Stop)

	aliceConn, alice := dial(t, srv)
	req.NoError(protocol.WriteEnvelope(aliceConn, protocol.Hello("alice")))
	welcome, err := alice.Decode()
	req.NoError(err)
	req.Equal(protocol.KindWelcome, welcome.Kind)
	req.Eventually(func() bool { return srv.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)

	bobConn, bob := dial(t, srv)
	req.NoError(protocol.WriteEnvelope(bobConn, protocol.Hello("bob")))
	welcome, err = bob.Decode()
	req.NoError(err)
	req.Contains(welcome.Content, "CONNECTED USERS: alice, bob")

	online, err := alice.Decode()
	req.NoError(err)
	req.Equal(protocol.Chat("SERVER: bob is now online"), online)

	req.NoError(protocol.WriteEnvelope(bobConn, protocol.Chat("hello alice")))
	got, err := alice.Decode()
	req.NoError(err)
	req.Equal(protocol.Chat("bob: hello alice"), got)

	req.Equal(accepted+2, testutil.ToFloat64(SessionsAccepted))
}

func TestServer_StopSaysGoodbye(t *testing.T) {
	req := require.New(t)
	srv := NewServer(testConfig(), nil)
	req.NoError(srv.Start())

	conn, dec := dial(t, srv)
	req.NoError(protocol.WriteEnvelope(conn, protocol.Hello("alice")))
	_, err := dec.Decode()
	req.NoError(err)
	req.Eventually(func() bool { return srv.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)

	// an unnamed connection is closed too
	_, idleDec := dial(t, srv)
	req.Eventually(func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.sessions) == 2
	}, time.Second, 5*time.Millisecond)

	srv.Stop()

	bye, err := dec.Decode()
	req.NoError(err)
	req.Equal(protocol.Bye(shutdownReason), bye)
	_, err = dec.Decode()
	req.ErrorIs(err, protocol.ErrEndOfStream)

	_, err = idleDec.Decode()
	req.ErrorIs(err, protocol.ErrEndOfStream)
	req.Zero(srv.Registry().Len())
}

// flakyListener fails its first Accept with a transient error, hands out one
// connection and then reports itself closed.
type flakyListener struct {
	conns chan net.Conn
	calls int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.calls++
	switch l.calls {
	case 1:
		return nil, errors.New("accept: too many open files")
	case 2:
		return <-l.conns, nil
	default:
		return nil, net.ErrClosed
	}
}

func (l *flakyListener) Close() error   { return nil }
func (l *flakyListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestServer_AcceptErrorsAreRetried(t *testing.T) {
	req := require.New(t)
	srv := NewServer(testConfig(), nil)
	t.Cleanup(srv.Stop)

	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() { _ = clientEnd.Close() })
	ln := &flakyListener{conns: make(chan net.Conn, 1)}
	ln.conns <- serverEnd

	err := srv.Serve(ln)

	// the listener vanished without Stop, so Serve reports it
	req.ErrorIs(err, net.ErrClosed)
	req.Equal(3, ln.calls)

	req.NoError(protocol.WriteEnvelope(clientEnd, protocol.Hello("survivor")))
	welcome, err := protocol.ReadEnvelope(clientEnd)
	req.NoError(err)
	req.Contains(welcome.Content, "Welcome survivor!")
}

func TestNextAcceptDelay(t *testing.T) {
	req := require.New(t)
	req.Equal(minAcceptDelay, nextAcceptDelay(0))
	req.Equal(2*minAcceptDelay, nextAcceptDelay(minAcceptDelay))
	req.Equal(maxAcceptDelay, nextAcceptDelay(maxAcceptDelay))
}

func TestServer_StopClosesServedListener(t *testing.T) {
	req := require.New(t)
	srv := NewServer(testConfig(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	req.Eventually(func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)

	srv.Stop()

	select {
	case err := <-served:
		req.NoError(err)
	case <-time.After(time.Second):
		req.FailNow("Serve kept accepting after Stop")
	}
}

func TestServer_ServeAfterStopReturns(t *testing.T) {
	req := require.New(t)
	srv := NewServer(testConfig(), nil)
	srv.Stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	req.NoError(srv.Serve(ln))
	req.Nil(srv.Addr())
}
