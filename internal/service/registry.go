package service

import (
	"log/slog"
	"sync"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/google/uuid"
)

// Registry maps user identities to their live connection handles. It is the
// source of truth for "is user X reachable now". A user stays online while
// at least one handle is open (multi-tab).
type Registry struct {
	log     *slog.Logger
	mu      sync.RWMutex
	handles map[uuid.UUID]map[string]*domain.Handle
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		handles: make(map[uuid.UUID]map[string]*domain.Handle),
	}
}

// Register adds a handle for its user. Idempotent per handle ID. Reports
// whether the user just came online (first open handle).
func (r *Registry) Register(handle *domain.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userHandles, ok := r.handles[handle.UserID]
	if !ok {
		userHandles = make(map[string]*domain.Handle)
		r.handles[handle.UserID] = userHandles
	}

	if _, exists := userHandles[handle.ID]; exists {
		return false
	}
	userHandles[handle.ID] = handle

	cameOnline := len(userHandles) == 1
	r.log.Info("handle registered",
		slog.String("user_id", handle.UserID.String()),
		slog.String("handle_id", handle.ID),
		slog.Int("open_handles", len(userHandles)),
	)
	return cameOnline
}

// Unregister removes a handle. Removing an absent handle is a no-op.
// Reports whether the user went offline (last handle closed).
func (r *Registry) Unregister(handle *domain.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userHandles, ok := r.handles[handle.UserID]
	if !ok {
		return false
	}
	if _, exists := userHandles[handle.ID]; !exists {
		return false
	}

	delete(userHandles, handle.ID)
	wentOffline := len(userHandles) == 0
	if wentOffline {
		delete(r.handles, handle.UserID)
	}

	r.log.Info("handle unregistered",
		slog.String("user_id", handle.UserID.String()),
		slog.String("handle_id", handle.ID),
		slog.Int("open_handles", len(userHandles)),
	)
	return wentOffline
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles[userID]) > 0
}

// HandlesFor returns every open handle of the user, used to push events to
// all of their tabs.
func (r *Registry) HandlesFor(userID uuid.UUID) []*domain.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Handle, 0, len(r.handles[userID]))
	for _, h := range r.handles[userID] {
		out = append(out, h)
	}
	return out
}

// OnlineSet returns the set of users with at least one open handle.
func (r *Registry) OnlineSet() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(r.handles))
	for userID, userHandles := range r.handles {
		if len(userHandles) > 0 {
			out = append(out, userID)
		}
	}
	return out
}

func (r *Registry) AllHandles() []*domain.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Handle, 0, len(r.handles))
	for _, userHandles := range r.handles {
		for _, h := range userHandles {
			out = append(out, h)
		}
	}
	return out
}
