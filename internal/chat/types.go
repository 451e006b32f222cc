package chat

import "github.com/andy6609/chat-relay/internal/protocol"

// Peer is what the registry needs from a connected session.
type Peer interface {
	ID() uint64
	Name() string
	Send(env protocol.Envelope) error
}

// NoExclusion can be passed to Registry.Broadcast to reach every peer.
// Session ids start at 1.
const NoExclusion uint64 = 0

const serverPrefix = "SERVER: "

var (
	ErrDuplicateSession  = errorString("chat: session already registered")
	ErrProtocolViolation = errorString("chat: protocol violation")
	ErrSessionClosed     = errorString("chat: session closed")
)

type errorString string

func (e errorString) Error() string { return string(e) }
