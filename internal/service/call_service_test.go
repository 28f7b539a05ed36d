package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/chirpchat/chirp/internal/repository"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callFixture struct {
	svc      *CallService
	registry *Registry
	users    *repository.InMemoryUserRepository
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	registry := NewRegistry(testLogger())
	users := repository.NewInMemoryUserRepository()
	return &callFixture{
		svc:      NewCallService(registry, users, testLogger()),
		registry: registry,
		users:    users,
	}
}

// connect creates a named user with one registered handle.
func (f *callFixture) connect(t *testing.T, name string) (uuid.UUID, *domain.Handle) {
	t.Helper()
	user := domain.NewGuestUser(name)
	require.NoError(t, f.users.Create(context.Background(), user))
	h := domain.NewHandle(user.ID, name, 32)
	f.registry.Register(h)
	return user.ID, h
}

func offerEnvelope(to uuid.UUID, sdp string) domain.Event {
	return domain.Event{
		Type: domain.EventSignal,
		To:   to,
		Kind: domain.SignalOffer,
		SDP:  &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp},
	}
}

func answerEnvelope(to uuid.UUID, sdp string) domain.Event {
	return domain.Event{
		Type: domain.EventSignal,
		To:   to,
		Kind: domain.SignalAnswer,
		SDP:  &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp},
	}
}

func TestCallService_FullLifecycle(t *testing.T) {
	f := newCallFixture(t)
	alice, aliceHandle := f.connect(t, "alice")
	bob, bobHandle := f.connect(t, "bob")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStateRinging, call.State)

	ringing := drainEvents(bobHandle)
	require.Len(t, ringing, 1)
	assert.Equal(t, domain.EventIncomingCall, ringing[0].Type)
	assert.Equal(t, call.ID, ringing[0].CallID)
	assert.Equal(t, alice, ringing[0].CallerID)
	assert.Equal(t, "alice", ringing[0].CallerName)

	require.NoError(t, f.svc.Accept(bob, call.ID))
	accepted := drainEvents(aliceHandle)
	require.Len(t, accepted, 1)
	assert.Equal(t, domain.EventCallAccepted, accepted[0].Type)
	assert.Equal(t, call.ID, accepted[0].CallID)

	active, ok := f.svc.ActiveCall(alice)
	require.True(t, ok)
	assert.Equal(t, domain.CallStateConnecting, active.State)

	// Offer relayed to the callee unchanged.
	f.svc.RelaySignal(alice, offerEnvelope(bob, "v=0 offer-sdp"))
	signals := drainEvents(bobHandle)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.EventSignal, signals[0].Type)
	assert.Equal(t, alice, signals[0].From)
	assert.Equal(t, domain.SignalOffer, signals[0].Kind)
	require.NotNil(t, signals[0].SDP)
	assert.Equal(t, "v=0 offer-sdp", signals[0].SDP.SDP)

	// Answer relayed back to the caller unchanged.
	f.svc.RelaySignal(bob, answerEnvelope(alice, "v=0 answer-sdp"))
	signals = drainEvents(aliceHandle)
	require.Len(t, signals, 1)
	assert.Equal(t, bob, signals[0].From)
	assert.Equal(t, "v=0 answer-sdp", signals[0].SDP.SDP)

	f.svc.Connected(bob, call.ID)
	active, ok = f.svc.ActiveCall(alice)
	require.True(t, ok)
	assert.Equal(t, domain.CallStateActive, active.State)

	// Either side may end; the other is notified exactly once.
	f.svc.End(alice, call.ID)
	ended := drainEvents(bobHandle)
	require.Len(t, ended, 1)
	assert.Equal(t, domain.EventCallEnded, ended[0].Type)
	assert.Equal(t, call.ID, ended[0].CallID)

	_, ok = f.svc.ActiveCall(alice)
	assert.False(t, ok, "call record discarded after end")
	_, ok = f.svc.ActiveCall(bob)
	assert.False(t, ok)

	assert.Empty(t, drainEvents(aliceHandle), "the ending side gets no echo")
}

func TestCallService_AlreadyInCall(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	carol, carolHandle := f.connect(t, "carol")

	existing, err := f.svc.Initiate(context.Background(), alice, carol)
	require.NoError(t, err)

	_, err = f.svc.Initiate(context.Background(), alice, bob)
	assert.ErrorIs(t, err, ErrAlreadyInCall, "busy caller cannot dial again")

	_, err = f.svc.Initiate(context.Background(), bob, carol)
	assert.ErrorIs(t, err, ErrAlreadyInCall, "busy callee cannot be dialed")

	got, ok := f.svc.ActiveCall(carol)
	require.True(t, ok, "carol's existing call is unaffected")
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, domain.CallStateRinging, got.State)

	events := drainEvents(carolHandle)
	require.Len(t, events, 1, "carol only ever heard about the first call")
	assert.Equal(t, existing.ID, events[0].CallID)
}

func TestCallService_EndIsIdempotent(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, bobHandle := f.connect(t, "bob")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(bob, call.ID))
	drainEvents(bobHandle)

	f.svc.End(alice, call.ID)
	f.svc.End(alice, call.ID)
	f.svc.End(bob, call.ID) // mutual hang-up race
	f.svc.End(bob, uuid.New())

	ended := drainEvents(bobHandle)
	assert.Len(t, ended, 1, "peer notified exactly once")
}

func TestCallService_RejectIsIdempotent(t *testing.T) {
	f := newCallFixture(t)
	alice, aliceHandle := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reject(bob, call.ID))
	require.NoError(t, f.svc.Reject(bob, call.ID))

	rejected := drainEvents(aliceHandle)
	assert.Len(t, rejected, 1)
	assert.Equal(t, domain.EventCallRejected, rejected[0].Type)

	_, ok := f.svc.ActiveCall(alice)
	assert.False(t, ok)
}

func TestCallService_AcceptRejectRaceResolvesOnce(t *testing.T) {
	f := newCallFixture(t)
	alice, aliceHandle := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)

	require.NoError(t, f.svc.Accept(bob, call.ID))
	require.NoError(t, f.svc.Reject(bob, call.ID), "losing reject is a no-op, not an error")

	active, ok := f.svc.ActiveCall(alice)
	require.True(t, ok, "accept won, the call lives on")
	assert.Equal(t, domain.CallStateConnecting, active.State)

	events := drainEvents(aliceHandle)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCallAccepted, events[0].Type)
}

func TestCallService_RejectAcceptRaceResolvesOnce(t *testing.T) {
	f := newCallFixture(t)
	alice, aliceHandle := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reject(bob, call.ID))
	require.NoError(t, f.svc.Accept(bob, call.ID), "losing accept is a no-op")

	_, ok := f.svc.ActiveCall(alice)
	assert.False(t, ok, "reject won, the call is gone")

	events := drainEvents(aliceHandle)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCallRejected, events[0].Type)
}

func TestCallService_AcceptAfterEndIsNoOp(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, bobHandle := f.connect(t, "bob")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)

	f.svc.End(alice, call.ID)
	require.NoError(t, f.svc.Accept(bob, call.ID), "accept lost to the hang-up")

	_, ok := f.svc.ActiveCall(bob)
	assert.False(t, ok)

	events := drainEvents(bobHandle)
	require.Len(t, events, 2, "ring and end, nothing from the late accept")
	assert.Equal(t, domain.EventIncomingCall, events[0].Type)
	assert.Equal(t, domain.EventCallEnded, events[1].Type)
}

func TestCallService_AcceptByWrongUserRejected(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, _ := f.connect(t, "bob")
	mallory, _ := f.connect(t, "mallory")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Accept(mallory, call.ID), ErrNotParticipant)
	assert.ErrorIs(t, f.svc.Accept(alice, call.ID), ErrNotParticipant, "caller cannot accept their own call")

	got, ok := f.svc.ActiveCall(bob)
	require.True(t, ok)
	assert.Equal(t, domain.CallStateRinging, got.State)
}

func TestCallService_SignalsDroppedOutsideExchange(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, bobHandle := f.connect(t, "bob")

	// No call at all: dropped.
	f.svc.RelaySignal(alice, offerEnvelope(bob, "early"))
	assert.Empty(t, drainEvents(bobHandle))

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)
	drainEvents(bobHandle)

	// Still ringing, not accepted: dropped.
	f.svc.RelaySignal(alice, offerEnvelope(bob, "before accept"))
	assert.Empty(t, drainEvents(bobHandle))

	require.NoError(t, f.svc.Accept(bob, call.ID))
	f.svc.End(alice, call.ID)
	drainEvents(bobHandle)

	// Racing with teardown: dropped, never an error.
	f.svc.RelaySignal(alice, offerEnvelope(bob, "after end"))
	assert.Empty(t, drainEvents(bobHandle))
}

func TestCallService_SignalOrderingPerCall(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, bobHandle := f.connect(t, "bob")
	carol, _ := f.connect(t, "carol")
	dave, daveHandle := f.connect(t, "dave")

	callAB, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(bob, callAB.ID))

	callCD, err := f.svc.Initiate(context.Background(), carol, dave)
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(dave, callCD.ID))
	drainEvents(bobHandle)
	drainEvents(daveHandle)

	// Interleave envelopes of two calls; each destination must observe its
	// own call's envelopes in send order.
	for i := 0; i < 5; i++ {
		f.svc.RelaySignal(alice, offerEnvelope(bob, fmt.Sprintf("ab-%d", i)))
		f.svc.RelaySignal(carol, offerEnvelope(dave, fmt.Sprintf("cd-%d", i)))
	}

	bobSignals := drainEvents(bobHandle)
	require.Len(t, bobSignals, 5)
	for i, ev := range bobSignals {
		assert.Equal(t, fmt.Sprintf("ab-%d", i), ev.SDP.SDP)
	}

	daveSignals := drainEvents(daveHandle)
	require.Len(t, daveSignals, 5)
	for i, ev := range daveSignals {
		assert.Equal(t, fmt.Sprintf("cd-%d", i), ev.SDP.SDP)
	}
}

func TestCallService_DisconnectSynthesizesEnd(t *testing.T) {
	f := newCallFixture(t)
	alice, aliceHandle := f.connect(t, "alice")
	bob, bobHandle := f.connect(t, "bob")

	call, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(bob, call.ID))
	drainEvents(aliceHandle)
	drainEvents(bobHandle)

	// Bob's only handle closes mid-call.
	f.registry.Unregister(bobHandle)
	f.svc.HandleDisconnect(bob)

	events := drainEvents(aliceHandle)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCallEnded, events[0].Type)
	assert.Equal(t, call.ID, events[0].CallID)

	_, ok := f.svc.ActiveCall(alice)
	assert.False(t, ok, "no leaked call record")

	// A racing explicit end is still a no-op.
	f.svc.End(alice, call.ID)
	assert.Empty(t, drainEvents(aliceHandle))
}

func TestCallService_DisconnectWithoutCallIsNoOp(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")

	f.svc.HandleDisconnect(alice)

	_, ok := f.svc.ActiveCall(alice)
	assert.False(t, ok)
}

func TestCallService_EndResolvesCallByUser(t *testing.T) {
	f := newCallFixture(t)
	alice, _ := f.connect(t, "alice")
	bob, bobHandle := f.connect(t, "bob")

	_, err := f.svc.Initiate(context.Background(), alice, bob)
	require.NoError(t, err)
	drainEvents(bobHandle)

	// The caller hangs up while ringing, before it ever learned a call ID.
	f.svc.End(alice, uuid.Nil)

	events := drainEvents(bobHandle)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCallEnded, events[0].Type)

	_, ok := f.svc.ActiveCall(bob)
	assert.False(t, ok)
}
