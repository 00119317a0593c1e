// Package session keeps one workflow Controller per browser session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/maauso/logomotion-api/internal/session/id"
	"github.com/maauso/logomotion-api/internal/workflow"
)

// ErrSessionNotFound is returned when a session cannot be found by ID.
var ErrSessionNotFound = errors.New("session not found")

// Session pairs an ID with the Controller that owns its workflow state.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Controller *workflow.Controller
}

// ControllerFactory builds the Controller for a new session.
type ControllerFactory func(sessionID string) *workflow.Controller

// RegistryOption is a function that configures a Registry.
type RegistryOption func(*Registry)

// WithTTL sets how long a session may stay idle before Sweep evicts it.
// Zero disables eviction.
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry is an in-memory set of sessions.
// It uses a map with RWMutex for thread-safe access.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newController ControllerFactory
	ttl           time.Duration
	logger        *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(factory ControllerFactory, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:      make(map[string]*Session),
		newController: factory,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new session with an idle controller.
func (r *Registry) Create(_ context.Context) *Session {
	sessionID := id.Generate()
	s := &Session{
		ID:         sessionID,
		CreatedAt:  time.Now(),
		Controller: r.newController(sessionID),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("session created", slog.String("session_id", s.ID))
	return s
}

// Get retrieves a session by its ID.
func (r *Registry) Get(_ context.Context, sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns all sessions, oldest first.
func (r *Registry) List(_ context.Context) []*Session {
	r.mu.RLock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete removes a session and closes its controller, cancelling any
// in-flight generation.
func (r *Registry) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Controller.Close()
	r.logger.Info("session deleted", slog.String("session_id", sessionID))
	return nil
}

// Sweep evicts sessions idle since before now minus the TTL. Sessions with a
// generation in flight are kept. It returns the number evicted.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-r.ttl)

	var expired []*Session
	r.mu.Lock()
	for sessionID, s := range r.sessions {
		if s.Controller.InFlight() || s.Controller.LastActivity().After(cutoff) {
			continue
		}
		delete(r.sessions, sessionID)
		expired = append(expired, s)
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Controller.Close()
		r.logger.Info("session expired", slog.String("session_id", s.ID))
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Debug("session sweep finished", slog.Int("evicted", n))
			}
		}
	}
}

// Close closes every session's controller and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Controller.Close()
	}
}
