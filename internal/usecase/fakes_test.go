package usecase

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

type fakeEventSink struct {
	mu sync.Mutex

	states      []stateEvent
	predictions []domain.Prediction
	matches     []domain.MatchResult
	finished    []domain.Status
	errors      []errEvent
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) PredictionReceived(prediction domain.Prediction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictions = append(f.predictions, prediction)
}

func (f *fakeEventSink) SessionMatched(result domain.MatchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, result)
}

func (f *fakeEventSink) SessionFinished(status domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, status)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotMatches() []domain.MatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.MatchResult, len(f.matches))
	copy(out, f.matches)
	return out
}

func (f *fakeEventSink) finishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finished)
}

func (f *fakeEventSink) lastReason() domain.SessionStateReason {
	states := f.snapshotStates()
	if len(states) == 0 {
		return ""
	}
	return states[len(states)-1].reason
}

// fakeStream is a camera stream whose readiness is controlled by the test.
type fakeStream struct {
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	failure   atomic.Pointer[error]
	stopCalls atomic.Int32
	stopErr   error
}

func newFakeStream() *fakeStream {
	return &fakeStream{ready: make(chan struct{}), done: make(chan struct{})}
}

func newReadyStream() *fakeStream {
	s := newFakeStream()
	s.markReady()
	return s
}

func (s *fakeStream) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *fakeStream) LatestFrame() (image.Image, bool) {
	select {
	case <-s.ready:
		return image.NewRGBA(image.Rect(0, 0, 2, 2)), true
	default:
		return nil, false
	}
}

// fail ends capture on its own, like a device that goes away before the
// first frame.
func (s *fakeStream) fail(err error) {
	s.failure.Store(&err)
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *fakeStream) Ready() <-chan struct{} { return s.ready }

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Err() error {
	if err := s.failure.Load(); err != nil {
		return *err
	}
	return nil
}

func (s *fakeStream) Stop() error {
	s.stopCalls.Add(1)
	s.doneOnce.Do(func() { close(s.done) })
	return s.stopErr
}

type fakeCamera struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	calls   int

	// gate holds Acquire back like a pending permission prompt.
	gate      chan struct{}
	ignoreCtx bool
}

func (c *fakeCamera) Acquire(ctx context.Context, _ ports.CameraConfig) (ports.CameraStream, error) {
	if c.gate != nil {
		if c.ignoreCtx {
			<-c.gate
		} else {
			select {
			case <-c.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.streams) == 0 {
		return newReadyStream(), nil
	}
	s := c.streams[0]
	c.streams = c.streams[1:]
	return s, nil
}

func (c *fakeCamera) acquireCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeSampler returns a fresh payload per capture and counts calls.
type fakeSampler struct {
	source   ports.FrameSource
	captures atomic.Uint64
}

func (s *fakeSampler) Capture() (domain.FramePayload, error) {
	if s.source != nil {
		if _, ok := s.source.LatestFrame(); !ok {
			return domain.FramePayload{}, domain.ErrFrameNotReady
		}
	}
	seq := s.captures.Add(1)
	return domain.FramePayload{Seq: seq, Image: "frame"}, nil
}

type fakeSamplerFactory struct {
	mu       sync.Mutex
	samplers []*fakeSampler
}

func (f *fakeSamplerFactory) NewSampler(source ports.FrameSource) ports.FrameSampler {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSampler{source: source}
	f.samplers = append(f.samplers, s)
	return s
}

type fakeChannel struct {
	events chan domain.ChannelEvent

	mu         sync.Mutex
	status     domain.ConnectionStatus
	openErr    error
	endpoint   string
	openCalls  int
	closeCalls int
	sent       []domain.FramePayload
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events: make(chan domain.ChannelEvent, 16),
		status: domain.ConnectionDisconnected,
	}
}

func (c *fakeChannel) Open(_ context.Context, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openCalls++
	if c.openErr != nil {
		return c.openErr
	}
	c.endpoint = endpoint
	c.status = domain.ConnectionConnecting
	return nil
}

func (c *fakeChannel) Send(frame domain.FramePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != domain.ConnectionConnected {
		return
	}
	c.sent = append(c.sent, frame)
}

func (c *fakeChannel) Events() <-chan domain.ChannelEvent { return c.events }

func (c *fakeChannel) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	c.status = domain.ConnectionDisconnected
	return nil
}

func (c *fakeChannel) connect() {
	c.mu.Lock()
	c.status = domain.ConnectionConnected
	c.mu.Unlock()
	c.events <- domain.ChannelEvent{Kind: domain.ChannelConnected}
}

func (c *fakeChannel) drop() {
	c.mu.Lock()
	c.status = domain.ConnectionDisconnected
	c.mu.Unlock()
	c.events <- domain.ChannelEvent{Kind: domain.ChannelDisconnected}
}

func (c *fakeChannel) predict(label string, score float64) {
	c.events <- domain.ChannelEvent{Kind: domain.ChannelPrediction, Prediction: domain.Prediction{Label: label, Score: score}}
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeChannel) snapshotSent() []domain.FramePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.FramePayload, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type fakeChannelFactory struct {
	mu       sync.Mutex
	channels []*fakeChannel
	created  []*fakeChannel
}

func (f *fakeChannelFactory) NewChannel() ports.PredictionChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c *fakeChannel
	if len(f.channels) > 0 {
		c = f.channels[0]
		f.channels = f.channels[1:]
	} else {
		c = newFakeChannel()
	}
	f.created = append(f.created, c)
	return c
}

func (f *fakeChannelFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type aliasNormalizer struct {
	aliases map[string]string
}

func (n aliasNormalizer) Normalize(label string) string {
	if canonical, ok := n.aliases[label]; ok {
		return canonical
	}
	return label
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (s *session) previewReady() bool {
	_, ok := s.previewSource()
	return ok
}
