// Package storage selects a record store backend by name.
//
// Backends register themselves from init in their own packages
// (internal/storage/postgres, sqlite, memory); binaries blank-import the
// backends they support and call Open with the configured kind.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/clientdedup/internal/core"
)

// ErrUnknownBackend is returned by Open for a kind nobody registered.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Config is what a backend factory needs to open a store.
type Config struct {
	Kind string
	DSN  string

	// Pool sizing; backends without a pool ignore these.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Factory opens a store for cfg. The store must be ready for use, with its
// schema in place.
type Factory func(ctx context.Context, cfg Config) (core.Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: backend already registered: %s", kind))
	}
	factories[kind] = f
}

// Open constructs the store registered under cfg.Kind.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownBackend, cfg.Kind, Kinds())
	}

	store, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Kind, err)
	}
	return store, nil
}

// Kinds returns the registered backend names, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
