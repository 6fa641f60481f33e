package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

const bytesPerPixel = 3

// DeviceError reports that the camera could not be acquired.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera %q unavailable: %v", e.Device, e.Err)
}

// Is lets callers match on domain.ErrDeviceUnavailable.
func (e *DeviceError) Is(target error) bool {
	return target == domain.ErrDeviceUnavailable
}

func (e *DeviceError) Unwrap() error { return e.Err }

// FFMPEGCamera captures raw RGB frames from a local video device using ffmpeg.
type FFMPEGCamera struct {
	command     string
	startupWait time.Duration
	logger      *slog.Logger
}

func NewFFMPEGCamera(command string, logger *slog.Logger) *FFMPEGCamera {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFMPEGCamera{command: command, startupWait: 250 * time.Millisecond, logger: logger}
}

func (c *FFMPEGCamera) Acquire(ctx context.Context, cfg ports.CameraConfig) (ports.CameraStream, error) {
	cfg = withCameraDefaults(cfg)

	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DeviceError{Device: cfg.Device, Err: fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &DeviceError{Device: cfg.Device, Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	stream := &ffmpegStream{
		stdout:   stdout,
		stderr:   &stderr,
		process:  cmd.Process,
		device:   cfg.Device,
		width:    cfg.Width,
		height:   cfg.Height,
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
		readDone: make(chan struct{}),
		logger:   c.logger,
	}
	go stream.wait(cmd)

	select {
	case <-stream.exited:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stream.exitError("ffmpeg exited before capture started")
	case <-time.After(c.startupWait):
	}

	go stream.readFrames()

	c.logger.Info("camera: capture started",
		"device", cfg.Device,
		"format", cfg.InputFormat,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FrameRate,
	)
	return stream, nil
}

func withCameraDefaults(cfg ports.CameraConfig) ports.CameraConfig {
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 25
	}
	return cfg
}

func captureArgs(cfg ports.CameraConfig) []string {
	size := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-video_size", size,
		"-i", cfg.Device,
		"-vf", "scale=" + size,
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"-",
	}
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	device  string

	// exitErr is written once before exited is closed.
	exited   chan struct{}
	exitErr  error
	stopping atomic.Bool

	width  int
	height int

	frameMu sync.RWMutex
	latest  []byte

	ready     chan struct{}
	readyOnce sync.Once
	readDone  chan struct{}

	logger *slog.Logger

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Ready() <-chan struct{} {
	return s.ready
}

func (s *ffmpegStream) Done() <-chan struct{} {
	return s.exited
}

// Err returns a DeviceError once ffmpeg has exited without being stopped.
func (s *ffmpegStream) Err() error {
	select {
	case <-s.exited:
	default:
		return nil
	}
	if s.stopping.Load() {
		return nil
	}
	select {
	case <-s.ready:
		return s.exitError("ffmpeg exited during capture")
	default:
		return s.exitError("ffmpeg exited before first frame")
	}
}

func (s *ffmpegStream) wait(cmd *exec.Cmd) {
	s.exitErr = cmd.Wait()
	close(s.exited)
}

// exitError must only be called after exited is closed; stderr is complete by then.
func (s *ffmpegStream) exitError(msg string) error {
	detail := trimOutput(s.stderr.String())
	switch {
	case s.exitErr != nil && detail != "":
		return &DeviceError{Device: s.device, Err: fmt.Errorf("%s: %w: %s", msg, s.exitErr, detail)}
	case s.exitErr != nil:
		return &DeviceError{Device: s.device, Err: fmt.Errorf("%s: %w", msg, s.exitErr)}
	case detail != "":
		return &DeviceError{Device: s.device, Err: fmt.Errorf("%s: %s", msg, detail)}
	default:
		return &DeviceError{Device: s.device, Err: errors.New(msg)}
	}
}

// LatestFrame returns a copy of the newest decoded frame.
func (s *ffmpegStream) LatestFrame() (image.Image, bool) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	if s.latest == nil {
		return nil, false
	}
	return rgbToImage(s.latest, s.width, s.height), true
}

func (s *ffmpegStream) readFrames() {
	defer close(s.readDone)

	frameSize := s.width * s.height * bytesPerPixel
	buf := make([]byte, frameSize)
	for {
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warn("camera: frame read failed", "error", err)
			}
			return
		}

		s.frameMu.Lock()
		if s.latest == nil {
			s.latest = make([]byte, frameSize)
		}
		copy(s.latest, buf)
		s.frameMu.Unlock()

		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case <-s.exited:
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			<-s.exited
		}
		s.stopErr = normalizeStopErr(s.exitErr)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}
		<-s.readDone

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimOutput(s.stderr.String()))
		}
		s.logger.Info("camera: capture stopped")
	})

	return s.stopErr
}

func rgbToImage(rgb []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for src, dst := 0, 0; src+2 < len(rgb) && dst+3 < len(img.Pix); src, dst = src+3, dst+4 {
		img.Pix[dst] = rgb[src]
		img.Pix[dst+1] = rgb[src+1]
		img.Pix[dst+2] = rgb[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
