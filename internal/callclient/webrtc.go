package callclient

import (
	"context"
	"errors"
	"sync"

	"github.com/chirpchat/chirp/internal/domain"
	"github.com/pion/webrtc/v3"
)

// NewPionLinkFactory builds PeerLinks on pion's webrtc implementation,
// configured with the given STUN servers.
func NewPionLinkFactory(stunServers []string) PeerLinkFactory {
	return func(tracks []webrtc.TrackLocal) (PeerLink, error) {
		config := webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{
				{URLs: stunServers},
			},
		}

		pc, err := webrtc.NewPeerConnection(config)
		if err != nil {
			return nil, err
		}

		for _, track := range tracks {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return nil, err
			}
		}

		link := &pionLink{pc: pc}
		pc.OnConnectionStateChange(link.handleStateChange)
		return link, nil
	}
}

type pionLink struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	onConnected func()
	onClosed    func()
	connected   bool
	closed      bool
}

func (l *pionLink) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}

	gathered := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return l.pc.LocalDescription(), nil
}

func (l *pionLink) CreateAnswer(ctx context.Context) (*webrtc.SessionDescription, error) {
	if l.pc.RemoteDescription() == nil {
		return nil, errors.New("remote offer not applied")
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gathered := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return l.pc.LocalDescription(), nil
}

func (l *pionLink) ApplyRemoteSignal(kind domain.SignalKind, sdp *webrtc.SessionDescription, candidate *webrtc.ICECandidateInit) error {
	switch kind {
	case domain.SignalOffer, domain.SignalAnswer:
		if sdp == nil {
			return errors.New("missing session description")
		}
		return l.pc.SetRemoteDescription(*sdp)
	case domain.SignalCandidate:
		if candidate == nil {
			return errors.New("missing ice candidate")
		}
		return l.pc.AddICECandidate(*candidate)
	}
	return errors.New("unknown signal kind: " + string(kind))
}

func (l *pionLink) OnConnected(fn func()) {
	l.mu.Lock()
	l.onConnected = fn
	l.mu.Unlock()
}

func (l *pionLink) OnClosed(fn func()) {
	l.mu.Lock()
	l.onClosed = fn
	l.mu.Unlock()
}

func (l *pionLink) Destroy() error {
	return l.pc.Close()
}

func (l *pionLink) handleStateChange(state webrtc.PeerConnectionState) {
	var fire func()

	l.mu.Lock()
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if !l.connected {
			l.connected = true
			fire = l.onConnected
		}
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed,
		webrtc.PeerConnectionStateDisconnected:
		if !l.closed {
			l.closed = true
			fire = l.onClosed
		}
	}
	l.mu.Unlock()

	if fire != nil {
		fire()
	}
}
