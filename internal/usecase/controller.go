package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

var (
	ErrNoActiveSession  = errors.New("no active practice session")
	ErrControllerClosed = errors.New("practice controller is shut down")
)

// Config controls practice session behavior.
type Config struct {
	Camera         ports.CameraConfig
	FrameInterval  time.Duration
	MatchThreshold float64
	Endpoints      domain.EndpointTable
}

// Request describes one practice attempt.
type Request struct {
	Category    domain.Category
	TargetLabel string
	OnMatched   func(domain.MatchResult)
	OnFinished  func(domain.Status)
}

// PracticeController runs at most one practice session at a time.
type PracticeController struct {
	camera     ports.CameraDevice
	samplers   ports.SamplerFactory
	channels   ports.ChannelFactory
	normalizer ports.LabelNormalizer
	events     ports.EventSink
	logger     *slog.Logger
	cfg        Config
	newID      func() string

	mu        sync.Mutex
	endpoints domain.EndpointTable
	current   *session
	closed    bool
}

func NewPracticeController(
	camera ports.CameraDevice,
	samplers ports.SamplerFactory,
	channels ports.ChannelFactory,
	normalizer ports.LabelNormalizer,
	events ports.EventSink,
	logger *slog.Logger,
	cfg Config,
) *PracticeController {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.MatchThreshold < 0 || math.IsNaN(cfg.MatchThreshold) {
		cfg.MatchThreshold = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PracticeController{
		camera:     camera,
		samplers:   samplers,
		channels:   channels,
		normalizer: normalizer,
		events:     events,
		logger:     logger,
		cfg:        cfg,
		newID:      func() string { return uuid.NewString() },
		endpoints:  cfg.Endpoints.Clone(),
	}
}

// Start begins a new practice session, tearing down any live one first.
// Only argument validation can fail; camera and connection problems degrade
// the session instead.
func (c *PracticeController) Start(ctx context.Context, req Request) (domain.Status, error) {
	target := strings.TrimSpace(req.TargetLabel)
	if target == "" {
		return domain.Status{}, domain.ErrTargetLabelMissing
	}
	category, err := domain.ParseCategory(string(req.Category))
	if err != nil {
		return domain.Status{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Status{}, ErrControllerClosed
	}
	previous := c.current
	c.current = nil
	endpoint, configured := c.endpoints.Lookup(category)
	c.mu.Unlock()

	if previous != nil {
		previous.terminate(domain.SessionReasonRestarted)
	}

	var channel ports.PredictionChannel
	if configured {
		channel = c.channels.NewChannel()
	}

	s := newSession(ctx, sessionParams{
		ID:         c.newID(),
		Category:   category,
		Target:     target,
		Endpoint:   endpoint,
		OnMatched:  req.OnMatched,
		OnFinished: req.OnFinished,
		Camera:     c.camera,
		CameraCfg:  c.cfg.Camera,
		Samplers:   c.samplers,
		Channel:    channel,
		Pump:       newFramePump(c.cfg.FrameInterval, c.logger),
		Policy:     MatchPolicy{Threshold: c.cfg.MatchThreshold, Normalizer: c.normalizer},
		Events:     c.events,
		Logger:     c.logger,
	})

	// A concurrent Start may have installed its session since previous was
	// taken; the last one installed wins and the one it displaces is torn down.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.terminate(domain.SessionReasonCancelled)
		return domain.Status{}, ErrControllerClosed
	}
	displaced := c.current
	c.current = s
	c.mu.Unlock()

	if displaced != nil {
		displaced.terminate(domain.SessionReasonRestarted)
	}

	reason := domain.SessionReasonStarted
	if previous != nil || displaced != nil {
		reason = domain.SessionReasonRestarted
	}
	s.start(reason)
	return s.Status(), nil
}

// Finish ends the current session from whatever state it is in. Finishing an
// already finished session is a no-op.
func (c *PracticeController) Finish() (domain.Status, error) {
	s, err := c.getCurrent()
	if err != nil {
		return domain.Status{}, err
	}
	s.terminate(domain.SessionReasonFinished)
	return s.Status(), nil
}

// Shutdown tears down the current session, if any. Later calls to Start fail
// with ErrControllerClosed.
func (c *PracticeController) Shutdown() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.closed = true
	c.mu.Unlock()

	if s != nil {
		s.terminate(domain.SessionReasonCancelled)
	}
}

// Status returns the current backend status.
func (c *PracticeController) Status() domain.Status {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return domain.Status{State: domain.SessionStateIdle, Connection: domain.ConnectionDisconnected}
	}
	return s.Status()
}

// PreviewFrame encodes the latest camera frame for display.
func (c *PracticeController) PreviewFrame() (string, error) {
	s, err := c.getCurrent()
	if err != nil {
		return "", err
	}
	source, ok := s.previewSource()
	if !ok {
		return "", domain.ErrFrameNotReady
	}
	frame, err := c.samplers.NewSampler(source).Capture()
	if err != nil {
		return "", err
	}
	return frame.Image, nil
}

// SetEndpoints replaces the endpoint table. Live sessions keep their endpoint.
func (c *PracticeController) SetEndpoints(table domain.EndpointTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints = table.Clone()
	c.logger.Info("session: endpoint table updated", "categories", len(table))
}

// Endpoints returns a copy of the endpoint table.
func (c *PracticeController) Endpoints() domain.EndpointTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints.Clone()
}

// Recognition reports, per category, whether an endpoint is configured.
func (c *PracticeController) Recognition() map[domain.Category]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.Category]bool, len(domain.Categories()))
	for _, category := range domain.Categories() {
		_, ok := c.endpoints.Lookup(category)
		out[category] = ok
	}
	return out
}

func (c *PracticeController) getCurrent() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveSession
	}
	return c.current, nil
}
