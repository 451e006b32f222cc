package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// HeaderSize is the size of the length prefix preceding every body.
const HeaderSize = 4

type wireEnvelope struct {
	Type    Kind    `json:"type"`
	Name    *string `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Encode serialises env into a complete frame: length prefix followed by body.
func Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	wire := wireEnvelope{Type: env.Kind}
	switch {
	case env.Kind == KindHello:
		wire.Name = &env.Name
	case env.Kind.hasContent():
		wire.Content = &env.Content
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", env.Kind, err)
	}
	if uint64(len(body)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidEnvelope, ^uint32(0))
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(len(body)))
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// WriteEnvelope encodes env and writes the whole frame to w.
func WriteEnvelope(w io.Writer, env Envelope) error {
	frame, err := Encode(env)
	if err != nil {
		return err
	}
	return writeFull(w, frame)
}

// writeFull keeps writing until buf is drained. Writers that report a short
// write without an error are retried; one that makes no progress at all fails
// with io.ErrShortWrite.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}

// Decoder reads consecutive envelopes from a stream.
type Decoder struct {
	r      io.Reader
	header [HeaderSize]byte

	// MaxBodySize bounds the declared body length. Zero means no limit.
	MaxBodySize uint32
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// ReadEnvelope decodes a single envelope from r without a size limit.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	return NewDecoder(r).Decode()
}

// Decode blocks until a whole frame is read. It returns ErrEndOfStream when
// the stream ends before a frame is complete and an error wrapping
// ErrMalformed when the body is not a valid envelope.
func (d *Decoder) Decode() (Envelope, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		return Envelope{}, readError(err)
	}

	size := binary.BigEndian.Uint32(d.header[:])
	if d.MaxBodySize > 0 && size > d.MaxBodySize {
		return Envelope{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, d.MaxBodySize)
	}
	if size == 0 {
		return Quit(), nil
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return Envelope{}, readError(err)
	}
	return parseBody(body)
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrEndOfStream
	}
	return fmt.Errorf("protocol: read: %w", err)
}

func parseBody(body []byte) (Envelope, error) {
	if !utf8.Valid(body) {
		return Envelope{}, fmt.Errorf("%w: body is not valid UTF-8", ErrMalformed)
	}

	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var env Envelope
	switch {
	case wire.Type == KindHello:
		if wire.Name == nil {
			return Envelope{}, fmt.Errorf("%w: HELLO without name", ErrMalformed)
		}
		env = Hello(*wire.Name)
	case wire.Type == KindQuit:
		env = Quit()
	case wire.Type.hasContent():
		if wire.Content == nil {
			return Envelope{}, fmt.Errorf("%w: %s without content", ErrMalformed, wire.Type)
		}
		env = Envelope{Kind: wire.Type, Content: *wire.Content}
	default:
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, wire.Type)
	}

	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}
