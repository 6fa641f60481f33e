package ports

import (
	"context"
	"image"

	"signcoach/internal/domain"
)

// CameraConfig describes how the camera should be captured.
type CameraConfig struct {
	InputFormat string
	Device      string
	Width       int
	Height      int
	FrameRate   int
}

// FrameSource yields the most recent decoded camera frame.
type FrameSource interface {
	LatestFrame() (image.Image, bool)
}

// CameraStream is a live camera capture. Stop is idempotent.
type CameraStream interface {
	FrameSource
	// Ready is closed once the first frame has been decoded.
	Ready() <-chan struct{}
	// Done is closed when capture has ended, on its own or through Stop.
	Done() <-chan struct{}
	// Err explains why capture ended on its own. It is nil while capture
	// runs and after Stop.
	Err() error
	Stop() error
}

// CameraDevice acquires camera streams. Acquire blocks until the device
// has been granted or refused.
type CameraDevice interface {
	Acquire(ctx context.Context, cfg CameraConfig) (CameraStream, error)
}

// FrameSampler captures and encodes one frame.
type FrameSampler interface {
	Capture() (domain.FramePayload, error)
}

// SamplerFactory binds a sampler to a frame source.
type SamplerFactory interface {
	NewSampler(source FrameSource) FrameSampler
}

// FrameSender is the outbound half of a prediction channel.
type FrameSender interface {
	Send(frame domain.FramePayload)
}

// PredictionChannel is a persistent link to an inference endpoint.
type PredictionChannel interface {
	FrameSender
	Open(ctx context.Context, endpoint string) error
	Events() <-chan domain.ChannelEvent
	Status() domain.ConnectionStatus
	Close() error
}

// ChannelFactory creates one prediction channel per session.
type ChannelFactory interface {
	NewChannel() PredictionChannel
}

// LabelNormalizer canonicalizes predicted labels before matching.
type LabelNormalizer interface {
	Normalize(label string) string
}

// EventSink emits session state and events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	PredictionReceived(prediction domain.Prediction)
	SessionMatched(result domain.MatchResult)
	SessionFinished(status domain.Status)
	SessionError(code domain.ErrorCode, detail string)
}
