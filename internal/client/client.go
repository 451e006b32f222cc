// Package client is the interactive side of the chat: it announces a name,
// forwards typed lines as CHAT envelopes and prints whatever the server sends.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"

	"github.com/andy6609/chat-relay/internal/protocol"
)

// QuitCommand typed on its own line ends the chat.
const QuitCommand = "#quit"

const (
	disconnectedText = "You have been disconnected from the server"
	serverPrefix     = "SERVER: "
	maxLineSize      = 1 << 20

	// maxEnvelopeSize caps the body length accepted from the server. It
	// matches the server's default frame limit.
	maxEnvelopeSize = 16 << 20
)

type Client struct {
	conn   io.ReadWriteCloser
	name   string
	input  io.Reader
	output io.Writer

	outMu sync.Mutex
}

func New(conn io.ReadWriteCloser, name string, input io.Reader, output io.Writer) *Client {
	return &Client{conn: conn, name: name, input: input, output: output}
}

// Run says HELLO and processes server envelopes until BYE, disconnection or
// ctx cancellation. The send loop is started once the server welcomes us.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-done:
		}
	}()

	if err := protocol.WriteEnvelope(c.conn, protocol.Hello(c.name)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("client: hello: %w", err)
	}

	dec := protocol.NewDecoder(c.conn)
	dec.MaxBodySize = maxEnvelopeSize
	var sendOnce sync.Once
	for {
		env, err := dec.Decode()
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, protocol.ErrEndOfStream):
			c.println(color.Yellow.Sprint(disconnectedText))
			return nil
		case err != nil:
			c.println(color.Yellow.Sprint(disconnectedText))
			return fmt.Errorf("client: receive: %w", err)
		}

		switch env.Kind {
		case protocol.KindWelcome:
			c.println(color.Cyan.Sprint(env.Content))
			sendOnce.Do(func() { go c.sendLoop() })
		case protocol.KindChat:
			if strings.HasPrefix(env.Content, serverPrefix) {
				c.println(color.Magenta.Sprint(env.Content))
			} else {
				c.println(env.Content)
			}
		case protocol.KindBye:
			c.println(color.Yellow.Sprint(env.Content))
			return nil
		}
	}
}

// sendLoop forwards input lines. The quit command, or the end of input,
// sends QUIT and stops the loop.
func (c *Client) sendLoop() {
	scanner := bufio.NewScanner(c.input)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == QuitCommand {
			break
		}
		if err := protocol.WriteEnvelope(c.conn, protocol.Chat(line)); err != nil {
			return
		}
	}
	_ = protocol.WriteEnvelope(c.conn, protocol.Quit())
}

func (c *Client) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.output, s)
}
