// Package protocol implements the length-prefixed envelope framing shared by
// the chat server and its clients.
//
// Every frame on the wire is a 4 byte big-endian body length followed by a JSON
// body of the form {"type": "<KIND>", ...fields}.
package protocol

import (
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Kind tags an envelope. The set of kinds is closed.
type Kind string

const (
	KindHello   Kind = "HELLO"
	KindWelcome Kind = "WELCOME"
	KindChat    Kind = "CHAT"
	KindBye     Kind = "BYE"
	KindQuit    Kind = "QUIT"
)

// Envelope is one protocol message. Name is only meaningful for HELLO and
// Content only for WELCOME, CHAT and BYE; use the constructors below.
type Envelope struct {
	Kind    Kind   `validate:"oneof=HELLO WELCOME CHAT BYE QUIT"`
	Name    string `validate:"required_if=Kind HELLO"`
	Content string
}

func Hello(name string) Envelope { return Envelope{Kind: KindHello, Name: name} }
func Welcome(text string) Envelope { return Envelope{Kind: KindWelcome, Content: text} }
func Chat(text string) Envelope { return Envelope{Kind: KindChat, Content: text} }
func Bye(text string) Envelope { return Envelope{Kind: KindBye, Content: text} }
func Quit() Envelope { return Envelope{Kind: KindQuit} }

var validate = validator.New()

// Validate reports whether e is a well formed envelope for its kind.
func (e Envelope) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	switch e.Kind {
	case KindHello:
		if e.Content != "" {
			return fmt.Errorf("%w: HELLO carries no content", ErrInvalidEnvelope)
		}
	case KindQuit:
		if e.Name != "" || e.Content != "" {
			return fmt.Errorf("%w: QUIT carries no payload", ErrInvalidEnvelope)
		}
	default:
		if e.Name != "" {
			return fmt.Errorf("%w: %s carries no name", ErrInvalidEnvelope, e.Kind)
		}
	}
	if !utf8.ValidString(e.Name) || !utf8.ValidString(e.Content) {
		return fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidEnvelope)
	}
	return nil
}

func (k Kind) hasContent() bool {
	return k == KindWelcome || k == KindChat || k == KindBye
}
