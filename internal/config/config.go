package config

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"signcoach/internal/domain"
)

// Config stores runtime configuration for the practice app.
type Config struct {
	Endpoints EndpointsConfig
	Socket    SocketConfig
	Camera    CameraConfig
	Frames    FramesConfig
	Session   SessionConfig
	Labels    LabelsConfig
	Log       LogConfig
}

type EndpointsConfig struct {
	Path  string
	Table domain.EndpointTable
}

type SocketConfig struct {
	Path           string
	ConnectTimeout time.Duration
}

type CameraConfig struct {
	Command     string
	InputFormat string
	Device      string
	Width       int
	Height      int
	FrameRate   int
}

type FramesConfig struct {
	Interval time.Duration
	Quality  int
	MaxWidth int
}

type SessionConfig struct {
	MatchThreshold float64
}

type LabelsConfig struct {
	Path string
}

type LogConfig struct {
	Level slog.Level
}

// Load resolves configuration from environment variables, the endpoint file
// and defaults. A category without an endpoint is valid.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	endpointsPath := envOrDefault("SIGNCOACH_ENDPOINTS_FILE", filepath.Join(home, ".config", "signcoach", "endpoints.yaml"))
	table, err := ResolveEndpoints(endpointsPath)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Endpoints: EndpointsConfig{Path: endpointsPath, Table: table},
		Socket: SocketConfig{
			Path:           envOrDefault("SIGNCOACH_SOCKET_PATH", "/socket.io/"),
			ConnectTimeout: time.Duration(envOrDefaultInt("SIGNCOACH_CONNECT_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Camera: CameraConfig{
			Command:     envOrDefault("SIGNCOACH_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat: envOrDefault("SIGNCOACH_CAMERA_INPUT_FORMAT", "v4l2"),
			Device:      envOrDefault("SIGNCOACH_CAMERA_DEVICE", "/dev/video0"),
			Width:       envOrDefaultInt("SIGNCOACH_CAMERA_WIDTH", 640),
			Height:      envOrDefaultInt("SIGNCOACH_CAMERA_HEIGHT", 480),
			FrameRate:   envOrDefaultInt("SIGNCOACH_CAMERA_FPS", 25),
		},
		Frames: FramesConfig{
			Interval: time.Duration(envOrDefaultInt("SIGNCOACH_FRAME_INTERVAL_MS", 40)) * time.Millisecond,
			Quality:  envOrDefaultInt("SIGNCOACH_JPEG_QUALITY", 80),
			MaxWidth: envOrDefaultInt("SIGNCOACH_FRAME_MAX_WIDTH", 0),
		},
		Session: SessionConfig{
			MatchThreshold: envOrDefaultFloat("SIGNCOACH_MATCH_THRESHOLD", 0),
		},
		Labels: LabelsConfig{
			Path: envOrDefault("SIGNCOACH_LABEL_RULES_FILE", filepath.Join(home, ".config", "signcoach", "labels.rules")),
		},
		Log: LogConfig{
			Level: ParseLevel(os.Getenv("SIGNCOACH_LOG_LEVEL")),
		},
	}

	if cfg.Socket.ConnectTimeout <= 0 {
		cfg.Socket.ConnectTimeout = 10 * time.Second
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		cfg.Camera.Width, cfg.Camera.Height = 640, 480
	}
	if cfg.Camera.FrameRate <= 0 {
		cfg.Camera.FrameRate = 25
	}
	if cfg.Frames.Interval <= 0 {
		cfg.Frames.Interval = 40 * time.Millisecond
	}
	if cfg.Frames.Quality <= 0 || cfg.Frames.Quality > 100 {
		cfg.Frames.Quality = 80
	}
	if cfg.Frames.MaxWidth < 0 {
		cfg.Frames.MaxWidth = 0
	}
	if cfg.Session.MatchThreshold < 0 {
		cfg.Session.MatchThreshold = 0
	}

	return cfg, nil
}

// ParseLevel maps debug, info, warn and error onto slog levels. Anything else is info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return fallback
	}
	return parsed
}
