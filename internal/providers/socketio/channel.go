package socketio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

var (
	ErrAlreadyOpen      = errors.New("prediction channel is already open")
	errServerDisconnect = errors.New("server closed the socket")
)

const (
	eventFrame      = "frame"
	eventPrediction = "prediction"
	eventStatus     = "status"

	eventBuffer = 32
	// Slots kept free for connected/disconnected so lifecycle events are
	// never dropped behind a burst of predictions.
	lifecycleSlots = 2
)

// Config controls the Socket.IO transport.
type Config struct {
	Path           string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// Provider implements ports.ChannelFactory for Socket.IO inference servers.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if cfg.Path == "" {
		cfg.Path = "/socket.io/"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer, logger: logger}
}

func (p *Provider) NewChannel() ports.PredictionChannel {
	return NewChannel(p.cfg, p.dialer, p.logger)
}

// Channel is a single Socket.IO link to an inference endpoint. At most one
// connection exists per channel; Open is refused while one is live.
type Channel struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	events chan domain.ChannelEvent

	mu     sync.Mutex
	status domain.ConnectionStatus
	link   *link

	framesDropped      atomic.Uint64
	predictionsDropped atomic.Uint64
}

type link struct {
	namespace string

	ctx      context.Context
	cancel   context.CancelFunc
	outbound chan []byte
	control  chan []byte
	closing  atomic.Bool
	done     chan struct{}
}

func NewChannel(cfg Config, dialer *websocket.Dialer, logger *slog.Logger) *Channel {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	return &Channel{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		events: make(chan domain.ChannelEvent, eventBuffer),
		status: domain.ConnectionDisconnected,
	}
}

// Open starts connecting to endpoint and returns immediately. A blank
// endpoint leaves the channel inactive without error.
func (c *Channel) Open(ctx context.Context, endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		c.logger.Info("socketio: no endpoint configured, recognition disabled")
		return nil
	}
	wsURL, namespace, err := buildSocketURL(endpoint, c.cfg.Path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != domain.ConnectionDisconnected {
		return ErrAlreadyOpen
	}
	if c.link != nil {
		// previous link dropped on its own; its goroutine is already exiting
		<-c.link.done
		c.link = nil
	}

	linkCtx, cancel := context.WithCancel(ctx)
	l := &link{
		namespace: namespace,
		ctx:       linkCtx,
		cancel:    cancel,
		outbound:  make(chan []byte, 1),
		control:   make(chan []byte, 4),
		done:      make(chan struct{}),
	}
	c.link = l
	c.status = domain.ConnectionConnecting

	go c.run(l, wsURL)
	return nil
}

// Send queues one frame. It never blocks: frames are dropped when the channel
// is not connected or the previous frame has not been written yet.
func (c *Channel) Send(frame domain.FramePayload) {
	c.mu.Lock()
	l, status := c.link, c.status
	c.mu.Unlock()

	if status != domain.ConnectionConnected || l == nil || frame.Image == "" {
		return
	}

	msg, err := encodeEvent(l.namespace, eventFrame, frameMessage{Image: frame.Image})
	if err != nil {
		return
	}
	select {
	case l.outbound <- msg:
	default:
		c.framesDropped.Add(1)
	}
}

func (c *Channel) Events() <-chan domain.ChannelEvent {
	return c.events
}

func (c *Channel) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// FramesDropped reports frames discarded because the socket was busy.
func (c *Channel) FramesDropped() uint64 {
	return c.framesDropped.Load()
}

// PredictionsDropped reports predictions discarded because the consumer lagged.
func (c *Channel) PredictionsDropped() uint64 {
	return c.predictionsDropped.Load()
}

// Close tears down the current link. It is safe to call in any status.
func (c *Channel) Close() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.status = domain.ConnectionDisconnected
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	l.closing.Store(true)
	l.cancel()
	<-l.done
	return nil
}

func (c *Channel) run(l *link, wsURL string) {
	defer close(l.done)

	conn, err := c.connect(l.ctx, wsURL, l.namespace)
	if err != nil {
		c.lost(l, err)
		return
	}
	if !c.markConnected(l) {
		_ = conn.Close()
		return
	}

	c.logger.Info("socketio: connected", "url", wsURL)
	c.emitLifecycle(domain.ChannelEvent{Kind: domain.ChannelConnected})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(l, conn)
	}()

	readErr := c.readLoop(l, conn)
	l.cancel()
	<-writerDone
	_ = conn.Close()
	c.lost(l, readErr)
}

func (c *Channel) connect(ctx context.Context, wsURL string, namespace string) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to inference endpoint: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})

	err = handshake(conn, namespace)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return conn, nil
}

func handshake(conn *websocket.Conn, namespace string) error {
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read engine.io open packet: %w", err)
	}
	open, err := decodePacket(payload)
	if err != nil || open.kind != packetOpen {
		return fmt.Errorf("unexpected engine.io handshake packet %q", truncate(payload))
	}

	if err := conn.WriteMessage(websocket.TextMessage, socketPacket(socketConnect, namespace)); err != nil {
		return fmt.Errorf("failed to send socket.io connect: %w", err)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read socket.io connect ack: %w", err)
		}
		p, err := decodePacket(payload)
		if err != nil {
			continue
		}
		switch p.kind {
		case packetConnected:
			return nil
		case packetConnectError:
			return fmt.Errorf("inference endpoint refused connection: %s", truncate(p.data))
		case packetPing:
			if err := conn.WriteMessage(websocket.TextMessage, pongPacket); err != nil {
				return fmt.Errorf("failed to answer ping: %w", err)
			}
		case packetClose, packetDisconnect:
			return errServerDisconnect
		}
	}
}

func (c *Channel) writeLoop(l *link, conn *websocket.Conn) {
	for {
		var msg []byte
		select {
		case <-l.ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = conn.WriteMessage(websocket.TextMessage, socketPacket(socketDisconnect, l.namespace))
			_ = conn.Close()
			return
		case msg = <-l.control:
		case msg = <-l.outbound:
		}

		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.logger.Warn("socketio: write failed", "error", err)
			_ = conn.Close()
			return
		}
	}
}

func (c *Channel) readLoop(l *link, conn *websocket.Conn) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read inference event: %w", err)
		}

		p, err := decodePacket(payload)
		if err != nil {
			c.logger.Debug("socketio: dropping malformed packet", "packet", truncate(payload))
			continue
		}

		switch p.kind {
		case packetPing:
			select {
			case l.control <- pongPacket:
			default:
			}
		case packetClose, packetDisconnect:
			return errServerDisconnect
		case packetEvent:
			c.handleEvent(p)
		}
	}
}

func (c *Channel) handleEvent(p packet) {
	switch p.event {
	case eventPrediction:
		label, score, err := decodePrediction(p.data)
		if err != nil {
			c.logger.Debug("socketio: dropping malformed prediction", "payload", truncate(p.data))
			return
		}
		c.emitPrediction(domain.ChannelEvent{
			Kind:       domain.ChannelPrediction,
			Prediction: domain.Prediction{Label: label, Score: score},
		})
	case eventStatus:
		c.logger.Info("socketio: server status", "payload", truncate(p.data))
	default:
		c.logger.Debug("socketio: ignoring event", "event", p.event)
	}
}

func (c *Channel) markConnected(l *link) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != l || l.closing.Load() {
		return false
	}
	c.status = domain.ConnectionConnected
	return true
}

func (c *Channel) lost(l *link, err error) {
	c.mu.Lock()
	current := c.link == l
	if current {
		c.status = domain.ConnectionDisconnected
	}
	c.mu.Unlock()

	if !current || l.closing.Load() {
		return
	}
	c.logger.Warn("socketio: connection lost", "error", err)
	c.emitLifecycle(domain.ChannelEvent{Kind: domain.ChannelDisconnected, Err: err})
}

func (c *Channel) emitLifecycle(event domain.ChannelEvent) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("socketio: event buffer full, lifecycle event dropped", "kind", event.Kind)
	}
}

// emitPrediction drops the incoming prediction when the buffer is full.
// Predictions share the queue with lifecycle events, so discarding the head
// could reorder a pending connected event behind newer predictions. The
// buffer only fills when the consumer has stalled, and then every queued
// prediction is already stale.
func (c *Channel) emitPrediction(event domain.ChannelEvent) {
	if len(c.events) >= cap(c.events)-lifecycleSlots {
		c.predictionsDropped.Add(1)
		return
	}
	select {
	case c.events <- event:
	default:
		c.predictionsDropped.Add(1)
	}
}

type frameMessage struct {
	Image string `json:"image"`
}

// buildSocketURL maps an endpoint to the Engine.IO websocket URL and the
// Socket.IO namespace. As with socket.io clients, the endpoint path names
// the namespace; the transport always lives under path at the host root.
func buildSocketURL(endpoint string, path string) (string, string, error) {
	base := strings.TrimSpace(endpoint)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	socketURL, err := url.Parse(base)
	if err != nil {
		return "", "", fmt.Errorf("invalid inference endpoint %q: %w", endpoint, err)
	}
	if socketURL.Scheme != "ws" && socketURL.Scheme != "wss" {
		return "", "", fmt.Errorf("invalid inference endpoint %q: unsupported scheme", endpoint)
	}
	if socketURL.Host == "" {
		return "", "", fmt.Errorf("invalid inference endpoint %q: missing host", endpoint)
	}

	namespace := "/" + strings.Trim(socketURL.Path, "/")

	if path == "" {
		path = "/socket.io/"
	}
	socketURL.Path = "/" + strings.Trim(path, "/") + "/"
	socketURL.RawPath = ""

	query := socketURL.Query()
	query.Set("EIO", "4")
	query.Set("transport", "websocket")
	socketURL.RawQuery = query.Encode()
	return socketURL.String(), namespace, nil
}

func truncate(raw []byte) string {
	const limit = 120
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
