package callclient

import (
	"context"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/pion/webrtc/v3"
)

// PeerLink is the capability the controller needs from a WebRTC runtime.
// Any peer-connection implementation satisfies it; the pion-backed one
// lives in webrtc.go.
//
// Offers and answers are produced with ICE candidates already gathered
// (non-trickle), so the only envelopes a link emits are its local
// descriptions; remote candidates arriving separately are still applied.
type PeerLink interface {
	CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error)
	// CreateAnswer requires the remote offer to have been applied first.
	CreateAnswer(ctx context.Context) (*webrtc.SessionDescription, error)
	ApplyRemoteSignal(kind domain.SignalKind, sdp *webrtc.SessionDescription, candidate *webrtc.ICECandidateInit) error
	OnConnected(fn func())
	OnClosed(fn func())
	Destroy() error
}

// PeerLinkFactory creates a fresh link carrying the given local tracks.
type PeerLinkFactory func(tracks []webrtc.TrackLocal) (PeerLink, error)
