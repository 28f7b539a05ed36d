package callclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/chirpchat/chirp/lib/logger/sl"
	"github.com/google/uuid"
)

var (
	ErrAlreadyInCall  = errors.New("already in a call")
	ErrNoIncomingCall = errors.New("no incoming call to answer")
)

// SignalSender is the outbound side of the persistent connection, the only
// surface this package needs from the transport layer.
type SignalSender interface {
	Send(event domain.Event) error
}

// IncomingCall describes a ringing call awaiting a local decision.
type IncomingCall struct {
	CallID     uuid.UUID
	CallerID   uuid.UUID
	CallerName string
}

type role int

const (
	roleCaller role = iota
	roleCallee
)

// session owns the per-call resources: the media capture and the peer link
// live here exclusively and are released on every exit path.
type session struct {
	callID  uuid.UUID // unknown to the caller until call-accepted
	peerID  uuid.UUID
	role    role
	capture MediaCapture
	link    PeerLink
}

// Controller is the calling-side counterpart of the server coordinator. It
// holds at most one call session at a time, translates inbound envelopes
// into peer-link operations, and reports the link's lifecycle back to the
// server (call-connected, call-end).
type Controller struct {
	sender  SignalSender
	media   MediaSource
	newLink PeerLinkFactory
	log     *slog.Logger

	mu         sync.Mutex
	current    *session
	pending    *IncomingCall
	onIncoming func(IncomingCall)
}

func NewController(sender SignalSender, media MediaSource, newLink PeerLinkFactory, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		sender:  sender,
		media:   media,
		newLink: newLink,
		log:     log,
	}
}

// SetIncomingHandler registers the single callback fired on incoming-call.
func (c *Controller) SetIncomingHandler(fn func(IncomingCall)) {
	c.mu.Lock()
	c.onIncoming = fn
	c.mu.Unlock()
}

// StartCall acquires local media and asks the server to ring calleeID.
// A second StartCall while one is in progress fails locally with
// ErrAlreadyInCall before reaching the server. A declined media prompt
// leaves no state behind.
func (c *Controller) StartCall(ctx context.Context, calleeID uuid.UUID) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyInCall
	}
	// Reserve the slot before the media prompt so concurrent starts fail
	// fast instead of both ringing.
	sess := &session{peerID: calleeID, role: roleCaller}
	c.current = sess
	c.mu.Unlock()

	capture, err := c.media.Acquire(ctx)
	if err != nil {
		c.clearSession(sess)
		return errors.Join(ErrMediaDenied, err)
	}
	if !c.adoptCapture(sess, capture) {
		// Hung up while the prompt was open; nothing to ring.
		return nil
	}

	if err := c.sender.Send(domain.Event{
		Type:     domain.EventCallInitiate,
		CalleeID: calleeID,
	}); err != nil {
		c.teardown(sess, false)
		return err
	}

	c.log.Info("call initiated", slog.String("callee_id", calleeID.String()))
	return nil
}

// Accept answers the pending incoming call: acquire media, build the
// answering peer link, then tell the server. A media denial rejects the
// call so the caller is not left ringing.
func (c *Controller) Accept(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyInCall
	}
	if c.pending == nil {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	incoming := *c.pending
	c.pending = nil
	sess := &session{callID: incoming.CallID, peerID: incoming.CallerID, role: roleCallee}
	c.current = sess
	c.mu.Unlock()

	capture, err := c.media.Acquire(ctx)
	if err != nil {
		c.clearSession(sess)
		_ = c.sender.Send(domain.Event{
			Type:   domain.EventCallReject,
			CallID: incoming.CallID,
		})
		return errors.Join(ErrMediaDenied, err)
	}
	if !c.adoptCapture(sess, capture) {
		return ErrNoIncomingCall
	}

	link, err := c.newLink(capture.Tracks())
	if err != nil {
		c.teardown(sess, true)
		return err
	}
	if !c.attachLink(sess, link) {
		return ErrNoIncomingCall
	}

	if err := c.sender.Send(domain.Event{
		Type:   domain.EventCallAccept,
		CallID: incoming.CallID,
	}); err != nil {
		c.teardown(sess, false)
		return err
	}

	c.log.Info("call accepted", slog.String("call_id", incoming.CallID.String()))
	return nil
}

// Reject declines the pending incoming call. No-op without one.
func (c *Controller) Reject() {
	c.mu.Lock()
	incoming := c.pending
	c.pending = nil
	c.mu.Unlock()

	if incoming == nil {
		return
	}
	_ = c.sender.Send(domain.Event{
		Type:   domain.EventCallReject,
		CallID: incoming.CallID,
	})
}

// End hangs up the current call. Idempotent; safe from any state, including
// concurrently with the remote side hanging up.
func (c *Controller) End() {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}
	c.release(sess)
	_ = c.sender.Send(domain.Event{
		Type:   domain.EventCallEnd,
		CallID: sess.callID,
	})
}

// InCall reports whether a call session is currently held.
func (c *Controller) InCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// HandleEvent feeds one inbound server event into the controller. Unknown
// and stale events are ignored: envelopes race with teardown by design, and
// a bare offer with no accepted call must not fabricate call state.
func (c *Controller) HandleEvent(ctx context.Context, event domain.Event) {
	switch event.Type {
	case domain.EventIncomingCall:
		c.handleIncoming(event)
	case domain.EventCallAccepted:
		c.handleAccepted(ctx, event)
	case domain.EventCallRejected, domain.EventCallEnded:
		c.handleRemoteEnd()
	case domain.EventSignal:
		c.handleSignal(ctx, event)
	}
}

func (c *Controller) handleIncoming(event domain.Event) {
	c.mu.Lock()
	if c.current != nil || c.pending != nil {
		c.mu.Unlock()
		// Busy: decline the second call right away.
		_ = c.sender.Send(domain.Event{
			Type:   domain.EventCallReject,
			CallID: event.CallID,
		})
		return
	}
	incoming := IncomingCall{
		CallID:     event.CallID,
		CallerID:   event.CallerID,
		CallerName: event.CallerName,
	}
	c.pending = &incoming
	fn := c.onIncoming
	c.mu.Unlock()

	if fn != nil {
		fn(incoming)
	}
}

// handleAccepted runs on the caller side: the callee picked up, so build
// the offering peer link and start the exchange.
func (c *Controller) handleAccepted(ctx context.Context, event domain.Event) {
	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.role != roleCaller || sess.link != nil {
		c.mu.Unlock()
		return
	}
	sess.callID = event.CallID
	c.mu.Unlock()

	link, err := c.newLink(sess.capture.Tracks())
	if err != nil {
		c.log.Error("peer link setup failed", sl.Err(err))
		c.End()
		return
	}
	if !c.attachLink(sess, link) {
		return
	}

	offer, err := link.CreateOffer(ctx)
	if err != nil {
		c.log.Error("offer creation failed", sl.Err(err))
		c.End()
		return
	}

	_ = c.sender.Send(domain.Event{
		Type: domain.EventSignal,
		To:   sess.peerID,
		Kind: domain.SignalOffer,
		SDP:  offer,
	})
}

func (c *Controller) handleRemoteEnd() {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.pending = nil
	c.mu.Unlock()

	if sess != nil {
		c.release(sess)
	}
}

func (c *Controller) handleSignal(ctx context.Context, event domain.Event) {
	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.link == nil || event.From != sess.peerID {
		c.mu.Unlock()
		c.log.Debug("ignoring stray signal", slog.String("kind", string(event.Kind)))
		return
	}
	link := sess.link
	c.mu.Unlock()

	if err := link.ApplyRemoteSignal(event.Kind, event.SDP, event.Candidate); err != nil {
		c.log.Error("failed to apply remote signal", sl.Err(err))
		c.End()
		return
	}

	// The callee answers the first offer it receives on an accepted call.
	if event.Kind == domain.SignalOffer && sess.role == roleCallee {
		answer, err := link.CreateAnswer(ctx)
		if err != nil {
			c.log.Error("answer creation failed", sl.Err(err))
			c.End()
			return
		}
		_ = c.sender.Send(domain.Event{
			Type: domain.EventSignal,
			To:   sess.peerID,
			Kind: domain.SignalAnswer,
			SDP:  answer,
		})
	}
}

// adoptCapture hands the acquired media to the session. When the session
// was torn down while the prompt was up, the capture is closed instead and
// false is returned.
func (c *Controller) adoptCapture(sess *session, capture MediaCapture) bool {
	c.mu.Lock()
	if c.current != sess {
		c.mu.Unlock()
		if err := capture.Close(); err != nil {
			c.log.Debug("media capture close failed", sl.Err(err))
		}
		return false
	}
	sess.capture = capture
	c.mu.Unlock()
	return true
}

// attachLink wires the link lifecycle back to the coordinator: a live link
// reports call-connected, a dead one hangs up. A session torn down while
// the link was being built gets the link destroyed instead of attached,
// and false is returned.
func (c *Controller) attachLink(sess *session, link PeerLink) bool {
	c.mu.Lock()
	if c.current != sess {
		c.mu.Unlock()
		if err := link.Destroy(); err != nil {
			c.log.Debug("peer link destroy failed", sl.Err(err))
		}
		return false
	}
	sess.link = link
	c.mu.Unlock()

	link.OnConnected(func() {
		c.mu.Lock()
		callID := uuid.Nil
		if c.current == sess {
			callID = sess.callID
		}
		c.mu.Unlock()
		if callID != uuid.Nil {
			_ = c.sender.Send(domain.Event{
				Type:   domain.EventCallConnected,
				CallID: callID,
			})
		}
	})
	link.OnClosed(func() {
		// End() no-ops when this session was already torn down.
		c.End()
	})
	return true
}

// clearSession drops a reserved session that never got resources.
func (c *Controller) clearSession(sess *session) {
	c.mu.Lock()
	if c.current == sess {
		c.current = nil
	}
	c.mu.Unlock()
}

// teardown releases the session and optionally informs the server.
func (c *Controller) teardown(sess *session, sendEnd bool) {
	c.clearSession(sess)
	c.release(sess)
	if sendEnd {
		_ = c.sender.Send(domain.Event{
			Type:   domain.EventCallEnd,
			CallID: sess.callID,
		})
	}
}

// release frees the session's link and capture. Runs on every exit path.
func (c *Controller) release(sess *session) {
	if sess.link != nil {
		if err := sess.link.Destroy(); err != nil {
			c.log.Debug("peer link destroy failed", sl.Err(err))
		}
	}
	if sess.capture != nil {
		if err := sess.capture.Close(); err != nil {
			c.log.Debug("media capture close failed", sl.Err(err))
		}
	}
}
