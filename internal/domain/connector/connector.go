// Package connector defines the contract between game server connections and
// the game server manager.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

var ErrUnknownGameType = errors.New("unknown game server type")

// Emitter is a live connection to one game server. Events() is closed by the
// emitter once it has fully stopped. Stop may run while Start is still
// connecting; Start then fails or tears its connection down.
type Emitter interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan model.GameEvent
}

// Factory builds an unstarted emitter for a game server definition.
type Factory func(gs model.GameServer) (Emitter, error)

// Registry maps a game server type to the factory that connects to it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(gameType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[gameType] = f
}

func (r *Registry) New(gs model.GameServer) (Emitter, error) {
	r.mu.RLock()
	f, ok := r.factories[gs.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameType, gs.Type)
	}
	return f(gs)
}

// Types lists registered game types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
