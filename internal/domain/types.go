package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownCategory    = errors.New("unknown gesture category")
	ErrDeviceUnavailable  = errors.New("camera unavailable")
	ErrTargetLabelMissing = errors.New("target label is required")
	ErrFrameNotReady      = errors.New("no frame available yet")
)

// Category selects the inference endpoint for a session.
type Category string

const (
	CategoryAlphabet Category = "alphabet"
	CategoryNumbers  Category = "numbers"
	CategoryWords    Category = "words"
)

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{CategoryAlphabet, CategoryNumbers, CategoryWords}
}

// ParseCategory maps user input onto the closed category set.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryAlphabet:
		return CategoryAlphabet, nil
	case CategoryNumbers:
		return CategoryNumbers, nil
	case CategoryWords:
		return CategoryWords, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
}

// EndpointTable maps categories to inference endpoints. A missing or blank
// entry disables recognition for that category.
type EndpointTable map[Category]string

// Lookup returns the endpoint configured for category.
func (t EndpointTable) Lookup(category Category) (string, bool) {
	endpoint := strings.TrimSpace(t[category])
	return endpoint, endpoint != ""
}

// Clone returns an independent copy of the table.
func (t EndpointTable) Clone() EndpointTable {
	out := make(EndpointTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// SessionState models the practice session lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateInitializing SessionState = "initializing"
	SessionStateStreaming    SessionState = "streaming"
	SessionStateMatched      SessionState = "matched"
	SessionStateTerminated   SessionState = "terminated"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady               SessionStateReason = "ready"
	SessionReasonStarted             SessionStateReason = "session_started"
	SessionReasonRestarted           SessionStateReason = "session_restarted"
	SessionReasonStreaming           SessionStateReason = "streaming"
	SessionReasonCameraOnly          SessionStateReason = "camera_only"
	SessionReasonCameraUnavailable   SessionStateReason = "camera_unavailable"
	SessionReasonConnectionDropped   SessionStateReason = "connection_dropped"
	SessionReasonRecognitionDisabled SessionStateReason = "recognition_disabled"
	SessionReasonMatched             SessionStateReason = "matched"
	SessionReasonFinished            SessionStateReason = "finished"
	SessionReasonCancelled           SessionStateReason = "cancelled"
)

// ErrorCode identifies user-visible, non-fatal errors. Connection and
// endpoint problems are not errors; they only show up as state reasons.
type ErrorCode string

const (
	ErrorCodeStartup ErrorCode = "startup"
	ErrorCodeCamera  ErrorCode = "camera"
)

// ConnectionStatus is the state of a prediction channel link.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
)

// Prediction is one inference result.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// FramePayload is one encoded still image ready for transmission.
// Seq is local bookkeeping and is not put on the wire.
type FramePayload struct {
	Seq   uint64 `json:"-"`
	Image string `json:"image"`
}

// ChannelEventKind identifies what a prediction channel reported.
type ChannelEventKind string

const (
	ChannelConnected    ChannelEventKind = "connected"
	ChannelDisconnected ChannelEventKind = "disconnected"
	ChannelPrediction   ChannelEventKind = "prediction"
)

// ChannelEvent is emitted by a prediction channel.
type ChannelEvent struct {
	Kind       ChannelEventKind
	Prediction Prediction
	Err        error
}

// MatchResult is surfaced once the learner produced the target gesture.
type MatchResult struct {
	SessionID   string     `json:"sessionId"`
	TargetLabel string     `json:"targetLabel"`
	Category    Category   `json:"category"`
	Prediction  Prediction `json:"prediction"`
	MatchedAt   time.Time  `json:"matchedAt"`
}

// Status summarizes the current runtime status.
type Status struct {
	SessionID      string           `json:"sessionId,omitempty"`
	State          SessionState     `json:"state"`
	Active         bool             `json:"active"`
	Category       Category         `json:"category,omitempty"`
	TargetLabel    string           `json:"targetLabel,omitempty"`
	Recognition    bool             `json:"recognition"`
	Degraded       bool             `json:"degraded"`
	Connection     ConnectionStatus `json:"connection"`
	LastPrediction *Prediction      `json:"lastPrediction,omitempty"`
	Predictions    int              `json:"predictions"`
	FramesSent     uint64           `json:"framesSent"`
	FramesSkipped  uint64           `json:"framesSkipped"`
	Message        string           `json:"message,omitempty"`
}
