package bootstrap

import (
	"io"
	"log/slog"
	"os"

	"signcoach/internal/camera"
	"signcoach/internal/config"
	"signcoach/internal/frames"
	"signcoach/internal/labels"
	"signcoach/internal/ports"
	"signcoach/internal/providers/socketio"
	"signcoach/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.PracticeController
	Config     config.Config
	Logger     *slog.Logger
	Labels     *labels.Aliases
}

// NewLogger returns a text logger at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Build wires all backend dependencies for the current runtime. A nil logger
// logs to stderr at the configured level.
func Build(eventSink ports.EventSink, logger *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	if logger == nil {
		logger = NewLogger(os.Stderr, cfg.Log.Level)
	}

	aliases, err := labels.Load(cfg.Labels.Path)
	if err != nil {
		return Services{}, err
	}

	controller := usecase.NewPracticeController(
		camera.NewFFMPEGCamera(cfg.Camera.Command, logger),
		frames.NewFactory(frames.Options{
			Quality:  cfg.Frames.Quality,
			MaxWidth: cfg.Frames.MaxWidth,
		}),
		socketio.NewProvider(socketio.Config{
			Path:           cfg.Socket.Path,
			ConnectTimeout: cfg.Socket.ConnectTimeout,
		}, logger),
		aliases,
		eventSink,
		logger,
		usecase.Config{
			Camera: ports.CameraConfig{
				InputFormat: cfg.Camera.InputFormat,
				Device:      cfg.Camera.Device,
				Width:       cfg.Camera.Width,
				Height:      cfg.Camera.Height,
				FrameRate:   cfg.Camera.FrameRate,
			},
			FrameInterval:  cfg.Frames.Interval,
			MatchThreshold: cfg.Session.MatchThreshold,
			Endpoints:      cfg.Endpoints.Table,
		},
	)

	logger.Info("bootstrap: services ready",
		"endpoints", len(cfg.Endpoints.Table),
		"label_rules", aliases.Len(),
		"threshold", cfg.Session.MatchThreshold,
	)
	return Services{Controller: controller, Config: cfg, Logger: logger, Labels: aliases}, nil
}
