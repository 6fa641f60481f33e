package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

// session is one practice attempt. It owns the camera stream, the prediction
// channel and the frame pump. All transitions run under mu, so two events
// never interleave; notifications are delivered in order after unlock.
type session struct {
	id         string
	category   domain.Category
	target     string
	endpoint   string
	onMatched  func(domain.MatchResult)
	onFinished func(domain.Status)

	ctx    context.Context
	cancel context.CancelFunc

	camera    ports.CameraDevice
	cameraCfg ports.CameraConfig
	samplers  ports.SamplerFactory
	channel   ports.PredictionChannel
	pump      *framePump
	policy    MatchPolicy
	finalizer matchFinalizer
	events    ports.EventSink
	logger    *slog.Logger
	tracker   *predictionTracker

	mu            sync.Mutex
	state         domain.SessionState
	stream        ports.CameraStream
	sampler       ports.FrameSampler
	cameraReady   bool
	connected     bool
	linkDown      bool
	degraded      bool
	message       string
	released      bool
	channelClosed bool
	consumed      chan struct{}

	notices  []func()
	flushing bool
}

type sessionParams struct {
	ID         string
	Category   domain.Category
	Target     string
	Endpoint   string
	OnMatched  func(domain.MatchResult)
	OnFinished func(domain.Status)

	Camera    ports.CameraDevice
	CameraCfg ports.CameraConfig
	Samplers  ports.SamplerFactory
	Channel   ports.PredictionChannel
	Pump      *framePump
	Policy    MatchPolicy
	Events    ports.EventSink
	Logger    *slog.Logger
}

func newSession(parent context.Context, p sessionParams) *session {
	ctx, cancel := context.WithCancel(parent)
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &session{
		id:         p.ID,
		category:   p.Category,
		target:     p.Target,
		endpoint:   p.Endpoint,
		onMatched:  p.OnMatched,
		onFinished: p.OnFinished,
		ctx:        ctx,
		cancel:     cancel,
		camera:     p.Camera,
		cameraCfg:  p.CameraCfg,
		samplers:   p.Samplers,
		channel:    p.Channel,
		pump:       p.Pump,
		policy:     p.Policy,
		finalizer:  newMatchFinalizer(p.Events),
		events:     p.Events,
		logger:     logger.With("session", p.ID, "category", string(p.Category)),
		tracker:    newPredictionTracker(),
		state:      domain.SessionStateIdle,
		consumed:   make(chan struct{}),
	}
}

// locked runs fn as one transition. Notifications queued by fn are delivered
// after mu is released; a reentrant call made from a notification queues its
// own notifications behind the ones being delivered.
func (s *session) locked(fn func()) {
	s.mu.Lock()
	fn()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.notices) > 0 {
		batch := s.notices
		s.notices = nil
		s.mu.Unlock()
		for _, notice := range batch {
			notice()
		}
		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
}

func (s *session) notify(notices ...func()) {
	s.notices = append(s.notices, notices...)
}

func (s *session) setState(state domain.SessionState, reason domain.SessionStateReason) {
	s.state = state
	s.logger.Info("session: state changed", "state", string(state), "reason", string(reason))
	s.notify(func() { s.events.SessionStateChanged(state, reason) })
}

func (s *session) fail(code domain.ErrorCode, detail string) {
	s.message = detail
	s.logger.Warn("session: degraded", "code", string(code), "detail", detail)
	s.notify(func() { s.events.SessionError(code, detail) })
}

// start moves the session from Idle to Initializing and kicks off camera
// acquisition and the channel handshake. Both complete asynchronously.
func (s *session) start(reason domain.SessionStateReason) {
	s.locked(func() {
		if s.state != domain.SessionStateIdle {
			return
		}
		s.setState(domain.SessionStateInitializing, reason)

		if s.channel != nil {
			if err := s.channel.Open(s.ctx, s.endpoint); err != nil {
				s.logger.Warn("session: channel open failed, recognition disabled", "endpoint", s.endpoint, "error", err)
				_ = s.channel.Close()
				s.channel = nil
				s.notify(func() {
					s.events.SessionStateChanged(domain.SessionStateInitializing, domain.SessionReasonRecognitionDisabled)
				})
			}
		} else {
			s.logger.Info("session: no endpoint for category, recognition disabled")
		}

		if s.channel != nil {
			go s.consume(s.channel.Events())
		} else {
			go s.consume(nil)
		}
		go s.acquireCamera()
	})
}

func (s *session) consume(events <-chan domain.ChannelEvent) {
	defer close(s.consumed)
	for {
		select {
		case <-s.ctx.Done():
			s.terminate(domain.SessionReasonCancelled)
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch event.Kind {
			case domain.ChannelConnected:
				s.onConnected()
			case domain.ChannelDisconnected:
				s.onDisconnected(event.Err)
			case domain.ChannelPrediction:
				s.onPrediction(event.Prediction)
			}
		}
	}
}

func (s *session) acquireCamera() {
	stream, err := s.camera.Acquire(s.ctx, s.cameraCfg)
	if err != nil {
		s.onCameraFailed(err)
		return
	}
	if !s.onCameraAcquired(stream) {
		return
	}
	select {
	case <-stream.Ready():
		s.onCameraReady()
	case <-stream.Done():
		select {
		case <-stream.Ready():
			s.onCameraReady()
			return
		default:
		}
		if s.ctx.Err() != nil {
			return
		}
		err := stream.Err()
		if err == nil {
			err = errors.New("camera stream ended before the first frame")
		}
		s.onCameraFailed(err)
	case <-s.ctx.Done():
	}
}

func (s *session) onCameraAcquired(stream ports.CameraStream) bool {
	accepted := false
	s.locked(func() {
		if s.state == domain.SessionStateTerminated {
			return
		}
		s.stream = stream
		s.sampler = s.samplers.NewSampler(stream)
		accepted = true
	})
	if !accepted {
		// session ended while permission was pending
		_ = stream.Stop()
	}
	return accepted
}

func (s *session) onCameraFailed(err error) {
	s.locked(func() {
		if s.state != domain.SessionStateInitializing {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		s.degraded = true
		s.releaseCamera()
		s.fail(domain.ErrorCodeCamera, err.Error())
		s.setState(domain.SessionStateStreaming, domain.SessionReasonCameraUnavailable)
	})
}

func (s *session) onCameraReady() {
	s.locked(func() {
		s.cameraReady = true
		s.maybeStartStreaming()
	})
}

func (s *session) onConnected() {
	s.locked(func() {
		s.connected = true
		s.linkDown = false
		s.maybeStartStreaming()
	})
}

// maybeStartStreaming leaves Initializing once the camera is ready and the
// channel outcome is known. The pump starts only when both the camera and
// the channel are up.
func (s *session) maybeStartStreaming() {
	if s.state != domain.SessionStateInitializing || !s.cameraReady {
		return
	}
	switch {
	case s.channel == nil:
		s.setState(domain.SessionStateStreaming, domain.SessionReasonCameraOnly)
	case s.linkDown:
		s.setState(domain.SessionStateStreaming, domain.SessionReasonConnectionDropped)
	case s.connected:
		if err := s.pump.Start(s.sampler, s.channel); err != nil {
			s.logger.Error("session: pump start failed", "error", err)
			return
		}
		s.setState(domain.SessionStateStreaming, domain.SessionReasonStreaming)
	}
}

// onDisconnected halts recognition. A lost link is logged and reported only
// through the connection_dropped reason; the learner can still finish.
func (s *session) onDisconnected(cause error) {
	s.locked(func() {
		s.connected = false
		switch s.state {
		case domain.SessionStateStreaming:
			s.pump.Stop()
			if s.linkDown {
				return
			}
			s.linkDown = true
			s.logger.Warn("session: connection to recognition service lost", "error", cause)
			s.setState(domain.SessionStateStreaming, domain.SessionReasonConnectionDropped)
		case domain.SessionStateInitializing:
			s.linkDown = true
			s.logger.Warn("session: recognition service unreachable", "error", cause)
			s.maybeStartStreaming()
		}
	})
}

func (s *session) onPrediction(prediction domain.Prediction) {
	s.locked(func() {
		if s.state == domain.SessionStateMatched || s.state == domain.SessionStateTerminated {
			return
		}
		s.tracker.Add(prediction)
		s.notify(func() { s.events.PredictionReceived(prediction) })

		if s.state != domain.SessionStateStreaming || !s.policy.Matches(s.target, prediction) {
			return
		}
		s.match(prediction)
	})
}

// match stops the pump and closes the channel before anything is announced,
// so no frame is sent after the transition.
func (s *session) match(prediction domain.Prediction) {
	s.pump.Stop()
	s.closeChannel()
	s.state = domain.SessionStateMatched
	result, notices := s.finalizer.Finalize(s, prediction)
	s.logger.Info("session: target matched", "label", prediction.Label, "score", prediction.Score, "target", result.TargetLabel)
	s.notify(notices...)
}

// terminate is the single teardown path. It is safe from any state and any
// goroutine; every call after the first is a no-op.
func (s *session) terminate(reason domain.SessionStateReason) {
	s.locked(func() {
		if s.state == domain.SessionStateTerminated {
			return
		}
		s.pump.Stop()
		s.closeChannel()
		s.releaseCamera()
		s.cancel()

		s.setState(domain.SessionStateTerminated, reason)
		status := s.statusLocked()
		s.notify(func() { s.events.SessionFinished(status) })
		if s.onFinished != nil {
			onFinished := s.onFinished
			s.notify(func() { onFinished(status) })
		}
	})
}

func (s *session) closeChannel() {
	if s.channel == nil || s.channelClosed {
		return
	}
	s.channelClosed = true
	if err := s.channel.Close(); err != nil {
		s.logger.Debug("session: channel close failed", "error", err)
	}
}

func (s *session) releaseCamera() {
	if s.released {
		return
	}
	s.released = true
	if s.stream == nil {
		return
	}
	if err := s.stream.Stop(); err != nil {
		s.logger.Warn("session: camera release failed", "error", err)
	}
}

func (s *session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *session) statusLocked() domain.Status {
	connection := domain.ConnectionDisconnected
	if s.channel != nil {
		connection = s.channel.Status()
	}
	sent, skipped := s.pump.Stats()
	status := domain.Status{
		SessionID:     s.id,
		State:         s.state,
		Active:        s.state != domain.SessionStateIdle && s.state != domain.SessionStateTerminated,
		Category:      s.category,
		TargetLabel:   s.target,
		Recognition:   s.channel != nil,
		Degraded:      s.degraded,
		Connection:    connection,
		Predictions:   s.tracker.Count(),
		FramesSent:    sent,
		FramesSkipped: skipped,
		Message:       s.message,
	}
	if last, ok := s.tracker.Last(); ok {
		status.LastPrediction = &last
	}
	return status
}

// previewSource returns the live camera stream for read-only rendering.
func (s *session) previewSource() (ports.FrameSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil || s.released {
		return nil, false
	}
	return s.stream, true
}
