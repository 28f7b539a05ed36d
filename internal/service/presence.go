package service

import (
	"log/slog"

	"github.com/chirpchat/chirp/internal/domain"
)

// PresenceBroadcaster announces the online-user set to every connected
// handle. It always sends the full current set rather than deltas; the set
// is small on a single chat server and full snapshots cannot reorder into
// an inconsistent view the way lost deltas can.
type PresenceBroadcaster struct {
	registry *Registry
	log      *slog.Logger
}

func NewPresenceBroadcaster(registry *Registry, log *slog.Logger) *PresenceBroadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceBroadcaster{registry: registry, log: log}
}

// Broadcast pushes the current OnlineSet snapshot to all handles.
// Best-effort per handle: a handle that cannot take the event is closed,
// which runs its disconnect path, without blocking the others.
func (b *PresenceBroadcaster) Broadcast() {
	online := b.registry.OnlineSet()
	event := domain.Event{
		Type:   domain.EventPresenceUpdate,
		Online: online,
	}

	for _, handle := range b.registry.AllHandles() {
		if !handle.Enqueue(event) {
			b.log.Debug("presence push failed, closing handle",
				slog.String("user_id", handle.UserID.String()),
				slog.String("handle_id", handle.ID),
			)
			handle.Close()
		}
	}
}
