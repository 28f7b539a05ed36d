package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/chirpchat/chirp/internal/service"
	"github.com/chirpchat/chirp/lib/logger/sl"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RealtimeController owns the persistent connection per tab: handshake,
// handle registration, the read loop dispatching client events to the
// services, and the writer goroutine draining the handle's event queue.
type RealtimeController struct {
	registry   *service.Registry
	presence   *service.PresenceBroadcaster
	messages   service.MessageInteractor
	calls      service.CallInteractor
	users      service.UserInteractor
	sendBuffer int
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

func NewRealtimeController(
	registry *service.Registry,
	presence *service.PresenceBroadcaster,
	messages service.MessageInteractor,
	calls service.CallInteractor,
	users service.UserInteractor,
	sendBuffer int,
	log *slog.Logger,
) *RealtimeController {
	if log == nil {
		log = slog.Default()
	}
	return &RealtimeController{
		registry:   registry,
		presence:   presence,
		messages:   messages,
		calls:      calls,
		users:      users,
		sendBuffer: sendBuffer,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect performs the handshake and runs the connection until it closes.
// The user identity arrives already authenticated from the identity layer;
// it is trusted here, not re-validated.
func (c *RealtimeController) Connect(ctx *gin.Context) {
	displayName := ctx.Query("name")

	var user *domain.User
	if userIDStr := ctx.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		u, err := c.users.GetUser(ctx.Request.Context(), userID)
		if err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		user = u
		if displayName == "" {
			displayName = u.Name
		}
	} else {
		if displayName == "" {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		user = domain.NewGuestUser(displayName)
		if err := c.users.EnsureUser(ctx.Request.Context(), user); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	// The display name override lives on the handle only; the stored user
	// record keeps its own name.
	handle := domain.NewHandle(user.ID, displayName, c.sendBuffer)
	handle.Socket = conn

	go forwardHandleEvents(handle)

	cameOnline := c.registry.Register(handle)
	if cameOnline {
		c.presence.Broadcast()
	} else {
		handle.Enqueue(domain.Event{
			Type:   domain.EventPresenceUpdate,
			Online: c.registry.OnlineSet(),
		})
	}

	for {
		var event domain.Event
		if err := conn.ReadJSON(&event); err != nil {
			c.disconnect(handle)
			return
		}
		c.dispatch(handle, event)
	}
}

// dispatch routes one inbound event. Capacity and validation failures are
// reported back on the same handle; protocol violations are dropped with a
// debug log because they race legitimately with call teardown.
func (c *RealtimeController) dispatch(handle *domain.Handle, event domain.Event) {
	ctx := context.Background()

	switch event.Type {
	case domain.EventChatMessage:
		if _, err := c.messages.Send(ctx, handle.UserID, event.ReceiverID, event.Text, event.Image); err != nil {
			handle.Enqueue(domain.Event{Type: domain.EventError, Error: err.Error()})
		}

	case domain.EventCallInitiate:
		if _, err := c.calls.Initiate(ctx, handle.UserID, event.CalleeID); err != nil {
			handle.Enqueue(domain.Event{Type: domain.EventError, Error: err.Error()})
		}

	case domain.EventCallAccept:
		if err := c.calls.Accept(handle.UserID, event.CallID); err != nil {
			c.logDropped(handle, event, err)
		}

	case domain.EventCallReject:
		if err := c.calls.Reject(handle.UserID, event.CallID); err != nil {
			c.logDropped(handle, event, err)
		}

	case domain.EventSignal:
		c.calls.RelaySignal(handle.UserID, event)

	case domain.EventCallConnected:
		c.calls.Connected(handle.UserID, event.CallID)

	case domain.EventCallEnd:
		c.calls.End(handle.UserID, event.CallID)

	default:
		c.log.Debug("unknown event type",
			slog.String("type", event.Type),
			slog.String("user_id", handle.UserID.String()),
		)
	}
}

// disconnect runs the teardown path for a closing handle: unregister, and
// when the last handle closed, synthesize call end and announce presence.
func (c *RealtimeController) disconnect(handle *domain.Handle) {
	wentOffline := c.registry.Unregister(handle)
	handle.Close()
	if wentOffline {
		c.calls.HandleDisconnect(handle.UserID)
		c.presence.Broadcast()
	}
}

func (c *RealtimeController) logDropped(handle *domain.Handle, event domain.Event, err error) {
	if errors.Is(err, service.ErrNotParticipant) {
		c.log.Debug("dropping stale call action",
			slog.String("type", event.Type),
			slog.String("user_id", handle.UserID.String()),
			sl.Err(err),
		)
		return
	}
	c.log.Error("call action failed", slog.String("type", event.Type), sl.Err(err))
}

// forwardHandleEvents is the single writer for a handle; it preserves the
// per-handle ordering of everything enqueued.
func forwardHandleEvents(handle *domain.Handle) {
	for event := range handle.Events {
		if err := handle.Socket.WriteJSON(event); err != nil {
			handle.Socket.Close()
			return
		}
	}
}
