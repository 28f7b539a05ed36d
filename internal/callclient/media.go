package callclient

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v3"
)

var ErrMediaDenied = errors.New("media capture denied")

// MediaCapture is an acquired local media session. Released exactly once
// per call on every exit path.
type MediaCapture interface {
	Tracks() []webrtc.TrackLocal
	Close() error
}

// MediaSource is the device-media capability. Acquire blocks until the
// device is available or the user declines; the context cancels the wait.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaCapture, error)
}

// TrackSource is the default MediaSource: it hands out static sample
// tracks that the embedding application pumps media into. It has no device
// IO of its own, which keeps the package runnable on headless hosts.
type TrackSource struct {
	StreamID string
}

func NewTrackSource(streamID string) *TrackSource {
	if streamID == "" {
		streamID = "chirp"
	}
	return &TrackSource{StreamID: streamID}
}

func (s *TrackSource) Acquire(ctx context.Context) (MediaCapture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", s.StreamID,
	)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", s.StreamID,
	)
	if err != nil {
		return nil, err
	}

	return &trackCapture{tracks: []webrtc.TrackLocal{audio, video}}, nil
}

type trackCapture struct {
	tracks []webrtc.TrackLocal
}

func (c *trackCapture) Tracks() []webrtc.TrackLocal { return c.tracks }

func (c *trackCapture) Close() error { return nil }
