package usecase

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

var ErrPumpRunning = errors.New("frame pump is already running")

const DefaultFrameInterval = 40 * time.Millisecond

// framePump samples and sends one frame per tick. Sends are fire-and-forget;
// a tick whose frame is not ready or fails to encode is skipped.
type framePump struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	done    chan struct{}
	sampler ports.FrameSampler
	sender  ports.FrameSender

	liveTimers int
	sent       uint64
	skipped    uint64
}

func newFramePump(interval time.Duration, logger *slog.Logger) *framePump {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &framePump{interval: interval, logger: logger}
}

func (p *framePump) Start(sampler ports.FrameSampler, sender ports.FrameSender) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil {
		return ErrPumpRunning
	}

	p.ticker = time.NewTicker(p.interval)
	p.liveTimers++
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.sampler = sampler
	p.sender = sender

	go p.loop(p.ticker.C, p.stop, p.done)
	return nil
}

// Stop cancels the timer. Once it returns no further frame is sent.
func (p *framePump) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.ticker.Stop()
	p.ticker = nil
	p.liveTimers--
	close(p.stop)
	p.stop = nil
	p.sampler, p.sender = nil, nil
	done := p.done
	p.mu.Unlock()

	<-done
}

func (p *framePump) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticker != nil
}

func (p *framePump) Stats() (sent uint64, skipped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.skipped
}

func (p *framePump) loop(ticks <-chan time.Time, stop chan struct{}, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ticks:
			p.tick(stop)
		}
	}
}

func (p *framePump) tick(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop == nil || p.stop != stop {
		return
	}

	frame, err := p.sampler.Capture()
	if err != nil {
		p.skipped++
		if !errors.Is(err, domain.ErrFrameNotReady) {
			p.logger.Debug("pump: frame skipped", "error", err)
		}
		return
	}
	p.sender.Send(frame)
	p.sent++
}
