package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/chirpchat/chirp/internal/repository"
	"github.com/chirpchat/chirp/lib/logger/sl"
	"github.com/google/uuid"
)

var (
	ErrAlreadyInCall  = errors.New("user already in a call")
	ErrNotParticipant = errors.New("user is not a participant of the call")
)

// CallService coordinates the call life-cycle between exactly two users and
// relays their signaling envelopes. All state transitions happen under one
// mutex, so racing actions (accept vs reject, mutual hang-up, disconnect vs
// explicit end) resolve deterministically: the first writer wins and the
// loser degrades to a no-op against the already-transitioned state.
type CallService struct {
	registry *Registry
	users    repository.UserRepository
	log      *slog.Logger

	mu     sync.Mutex
	calls  map[uuid.UUID]*domain.Call
	byUser map[uuid.UUID]uuid.UUID // participant -> non-terminal call
}

func NewCallService(registry *Registry, users repository.UserRepository, log *slog.Logger) *CallService {
	if log == nil {
		log = slog.Default()
	}
	return &CallService{
		registry: registry,
		users:    users,
		log:      log,
		calls:    make(map[uuid.UUID]*domain.Call),
		byUser:   make(map[uuid.UUID]uuid.UUID),
	}
}

// Initiate creates a call in the ringing state and notifies the callee's
// handles. Fails with ErrAlreadyInCall when either party already holds a
// non-terminal call.
func (s *CallService) Initiate(ctx context.Context, callerID, calleeID uuid.UUID) (*domain.Call, error) {
	const op = "service.call.initiate"
	log := s.log.With(
		slog.String("op", op),
		slog.String("caller_id", callerID.String()),
		slog.String("callee_id", calleeID.String()),
	)

	if callerID == uuid.Nil || calleeID == uuid.Nil || callerID == calleeID {
		return nil, errors.New("caller and callee must be two distinct users")
	}

	s.mu.Lock()
	if _, busy := s.byUser[callerID]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInCall
	}
	if _, busy := s.byUser[calleeID]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInCall
	}

	call := domain.NewCall(callerID, calleeID)
	s.calls[call.ID] = call
	s.byUser[callerID] = call.ID
	s.byUser[calleeID] = call.ID
	s.mu.Unlock()

	callerName := ""
	if caller, err := s.users.GetByID(ctx, callerID); err == nil {
		callerName = caller.Name
	} else {
		log.Debug("caller profile lookup failed", sl.Err(err))
	}

	s.notifyUser(calleeID, domain.Event{
		Type:       domain.EventIncomingCall,
		CallID:     call.ID,
		CallerID:   callerID,
		CallerName: callerName,
	})

	log.Info("call ringing", slog.String("call_id", call.ID.String()))
	return call, nil
}

// Accept moves a ringing call to connecting and tells the caller to begin
// the offer exchange. Accepting a call that already left the ringing state
// is a no-op; the concurrent reject or end won.
func (s *CallService) Accept(calleeID, callID uuid.UUID) error {
	const op = "service.call.accept"

	s.mu.Lock()
	call, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		s.log.Debug("accept on unknown call ignored",
			slog.String("op", op),
			slog.String("call_id", callID.String()),
		)
		return nil
	}
	if call.CalleeID != calleeID {
		s.mu.Unlock()
		return ErrNotParticipant
	}
	if call.State != domain.CallStateRinging {
		s.mu.Unlock()
		s.log.Debug("accept on non-ringing call ignored",
			slog.String("op", op),
			slog.String("call_id", callID.String()),
			slog.String("state", string(call.State)),
		)
		return nil
	}
	call.State = domain.CallStateConnecting
	callerID := call.CallerID
	s.mu.Unlock()

	s.notifyUser(callerID, domain.Event{
		Type:   domain.EventCallAccepted,
		CallID: callID,
	})

	s.log.Info("call accepted",
		slog.String("op", op),
		slog.String("call_id", callID.String()),
	)
	return nil
}

// Reject ends a ringing call and notifies the caller. Rejecting a call that
// already left the ringing state is a no-op.
func (s *CallService) Reject(calleeID, callID uuid.UUID) error {
	const op = "service.call.reject"

	s.mu.Lock()
	call, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if call.CalleeID != calleeID {
		s.mu.Unlock()
		return ErrNotParticipant
	}
	if call.State != domain.CallStateRinging {
		s.mu.Unlock()
		return nil
	}
	call.State = domain.CallStateEnded
	s.discardLocked(call)
	callerID := call.CallerID
	s.mu.Unlock()

	s.notifyUser(callerID, domain.Event{
		Type:   domain.EventCallRejected,
		CallID: callID,
	})

	s.log.Info("call rejected",
		slog.String("op", op),
		slog.String("call_id", callID.String()),
	)
	return nil
}

// RelaySignal forwards an offer/answer/candidate envelope verbatim to the
// other participant. Envelopes that do not match an in-progress call are
// dropped silently: signaling legitimately races with call teardown, so a
// stray envelope is expected traffic, not an error.
func (s *CallService) RelaySignal(from uuid.UUID, envelope domain.Event) {
	const op = "service.call.relaySignal"
	log := s.log.With(
		slog.String("op", op),
		slog.String("from", from.String()),
		slog.String("kind", string(envelope.Kind)),
	)

	if !envelope.Kind.Valid() {
		log.Debug("dropping envelope with unknown kind")
		return
	}

	s.mu.Lock()
	callID, ok := s.byUser[from]
	if !ok {
		s.mu.Unlock()
		log.Debug("dropping envelope without a call")
		return
	}
	call := s.calls[callID]
	if call.State != domain.CallStateConnecting && call.State != domain.CallStateActive {
		s.mu.Unlock()
		log.Debug("dropping envelope in state " + string(call.State))
		return
	}
	if !call.HasParticipant(from) || !call.HasParticipant(envelope.To) {
		s.mu.Unlock()
		log.Debug("dropping envelope for foreign pair")
		return
	}
	to := call.PeerOf(from)
	s.mu.Unlock()

	forward := envelope
	forward.Type = domain.EventSignal
	forward.From = from
	forward.To = to

	s.notifyUser(to, forward)
}

// Connected records a client-reported live peer link, moving the call from
// connecting to active. Reports from stale or unknown calls are ignored;
// active state cannot be inferred from answer/candidate traffic alone.
func (s *CallService) Connected(userID, callID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[callID]
	if !ok || !call.HasParticipant(userID) {
		return
	}
	if call.State == domain.CallStateConnecting {
		call.State = domain.CallStateActive
		s.log.Info("call active", slog.String("call_id", callID.String()))
	}
}

// End tears a call down from any non-terminal state, callable by either
// participant. Idempotent: ending an ended or unknown call is a no-op, which
// makes mutual hang-up and disconnect races harmless. The other participant
// is notified exactly once.
func (s *CallService) End(userID, callID uuid.UUID) {
	const op = "service.call.end"

	s.mu.Lock()
	var call *domain.Call
	if callID != uuid.Nil {
		call = s.calls[callID]
	} else if id, ok := s.byUser[userID]; ok {
		call = s.calls[id]
	}
	if call == nil || call.IsTerminal() {
		s.mu.Unlock()
		return
	}
	if !call.HasParticipant(userID) {
		s.mu.Unlock()
		s.log.Debug("end from non-participant ignored",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
		)
		return
	}
	call.State = domain.CallStateEnded
	s.discardLocked(call)
	peerID := call.PeerOf(userID)
	endedID := call.ID
	s.mu.Unlock()

	s.notifyUser(peerID, domain.Event{
		Type:   domain.EventCallEnded,
		CallID: endedID,
	})

	s.log.Info("call ended",
		slog.String("op", op),
		slog.String("call_id", endedID.String()),
		slog.String("ended_by", userID.String()),
	)
}

// HandleDisconnect synthesizes an end on behalf of a user whose last handle
// closed while they held a non-terminal call, so the remaining participant's
// call record does not leak.
func (s *CallService) HandleDisconnect(userID uuid.UUID) {
	s.mu.Lock()
	callID, ok := s.byUser[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.log.Info("participant disconnected, ending call",
		slog.String("user_id", userID.String()),
		slog.String("call_id", callID.String()),
	)
	s.End(userID, callID)
}

// ActiveCall returns the user's current non-terminal call, if any.
func (s *CallService) ActiveCall(userID uuid.UUID) (*domain.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	callID, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	call, ok := s.calls[callID]
	return call, ok
}

// discardLocked removes the call record and both participant bindings.
// Caller holds s.mu.
func (s *CallService) discardLocked(call *domain.Call) {
	delete(s.calls, call.ID)
	delete(s.byUser, call.CallerID)
	delete(s.byUser, call.CalleeID)
}

func (s *CallService) notifyUser(userID uuid.UUID, event domain.Event) {
	for _, handle := range s.registry.HandlesFor(userID) {
		if !handle.Enqueue(event) {
			s.log.Debug("dropping call event",
				slog.String("handle_id", handle.ID),
				slog.String("type", event.Type),
			)
		}
	}
}
