// Package session keeps the live search sessions of the HTTP surface, one
// coordinator each, in an expiring LRU keyed by UUID.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/listing-search/internal/coordinator"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
)

const (
	DefaultTTL = 30 * time.Minute
	DefaultMax = 1000
)

var ErrNotFound = errors.New("session not found")

// Factory builds a coordinator for a new session from its initial query.
type Factory func(initialQuery string) *coordinator.Coordinator

type Registry struct {
	logger  *slog.Logger
	factory Factory
	ctx     context.Context
	lru     *expirable.LRU[string, *coordinator.Coordinator]
}

// NewRegistry starts coordinators under ctx. Evicted or expired sessions are closed.
func NewRegistry(ctx context.Context, logger *slog.Logger, factory Factory, maxSessions int, ttl time.Duration) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMax
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger, factory: factory, ctx: ctx}
	r.lru = expirable.NewLRU[string, *coordinator.Coordinator](maxSessions, func(id string, c *coordinator.Coordinator) {
		c.Close()
		logger.Debug("session closed", "session", id)
	}, ttl)
	return r
}

// Create starts a new session and returns its id.
func (r *Registry) Create(initialQuery string) (string, *coordinator.Coordinator) {
	id := uuid.NewString()
	c := r.factory(initialQuery)
	c.Start(r.ctx)
	r.lru.Add(id, c)
	observability.SetActiveSessions(r.lru.Len())
	r.logger.Debug("session created", "session", id, "query", initialQuery)
	return id, c
}

// Get returns the session and refreshes its recency.
func (r *Registry) Get(id string) (*coordinator.Coordinator, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	c, ok := r.lru.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *Registry) Delete(id string) bool {
	ok := r.lru.Remove(id)
	observability.SetActiveSessions(r.lru.Len())
	return ok
}

func (r *Registry) Len() int { return r.lru.Len() }

// Close ends every session.
func (r *Registry) Close() {
	r.lru.Purge()
	observability.SetActiveSessions(0)
}
