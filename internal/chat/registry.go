package chat

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/andy6609/chat-relay/internal/protocol"
)

// Registry is the directory of named, live sessions.
//
// One RWMutex guards the whole table. Add and Remove take it exclusively;
// Broadcast and SnapshotNames hold the read side for their entire run, so a
// peer being removed either gets a broadcast in full before the removal
// completes or is not seen by it at all.
type Registry struct {
	mu     sync.RWMutex
	peers  map[uint64]Peer
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		peers:  make(map[uint64]Peer),
		logger: logger,
	}
}

func (r *Registry) Add(id uint64, p Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(id, p)
}

// Join registers p and calls greet with the sorted names of everyone online,
// p included, before the exclusive lock is released. Two peers joining at the
// same time therefore always see each other: one is in the other's roster or
// receives the other's later broadcasts. p is not added if greet fails.
func (r *Registry) Join(id uint64, p Peer, greet func(online []string) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; exists {
		return ErrDuplicateSession
	}
	online := append(r.namesLocked(), p.Name())
	slices.Sort(online)
	if err := greet(online); err != nil {
		return err
	}
	return r.insertLocked(id, p)
}

func (r *Registry) insertLocked(id uint64, p Peer) error {
	if _, exists := r.peers[id]; exists {
		return ErrDuplicateSession
	}
	r.peers[id] = p
	ConnectedSessions.Set(float64(len(r.peers)))

	r.logger.Info("session registered", "session", id, "name", p.Name())
	return nil
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return false
	}
	delete(r.peers, id)
	ConnectedSessions.Set(float64(len(r.peers)))

	r.logger.Info("session removed", "session", id, "name", p.Name())
	return true
}

// Broadcast sends env to every registered peer except exclude and returns the
// number of successful deliveries. A failed send is logged and skipped.
func (r *Registry) Broadcast(env protocol.Envelope, exclude uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, p := range r.peers {
		if id == exclude {
			continue
		}
		if err := p.Send(env); err != nil {
			BroadcastFailures.Inc()
			r.logger.Warn("broadcast delivery failed", "session", id, "kind", env.Kind, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// SnapshotNames returns the display names of all registered peers, unordered.
func (r *Registry) SnapshotNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	return lo.MapToSlice(r.peers, func(_ uint64, p Peer) string {
		return p.Name()
	})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
