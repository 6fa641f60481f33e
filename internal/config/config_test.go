package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signcoach/internal/domain"
)

func clearEndpointEnv(t *testing.T) {
	t.Helper()
	for _, key := range endpointEnv {
		t.Setenv(key, "")
	}
	t.Setenv("SIGNCOACH_ENDPOINTS_FILE", "")
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEndpointEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Endpoints.Path != filepath.Join(home, ".config", "signcoach", "endpoints.yaml") {
		t.Fatalf("unexpected endpoints path: %q", cfg.Endpoints.Path)
	}
	if len(cfg.Endpoints.Table) != 0 {
		t.Fatalf("expected no endpoints, got %+v", cfg.Endpoints.Table)
	}
	if cfg.Socket.Path != "/socket.io/" || cfg.Socket.ConnectTimeout != 10*time.Second {
		t.Fatalf("unexpected socket config: %+v", cfg.Socket)
	}
	if cfg.Camera.Command != "ffmpeg" || cfg.Camera.InputFormat != "v4l2" || cfg.Camera.Device != "/dev/video0" {
		t.Fatalf("unexpected camera config: %+v", cfg.Camera)
	}
	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 || cfg.Camera.FrameRate != 25 {
		t.Fatalf("unexpected camera geometry: %+v", cfg.Camera)
	}
	if cfg.Frames.Interval != 40*time.Millisecond || cfg.Frames.Quality != 80 || cfg.Frames.MaxWidth != 0 {
		t.Fatalf("unexpected frames config: %+v", cfg.Frames)
	}
	if cfg.Session.MatchThreshold != 0 {
		t.Fatalf("expected zero threshold, got %v", cfg.Session.MatchThreshold)
	}
	if cfg.Labels.Path != filepath.Join(home, ".config", "signcoach", "labels.rules") {
		t.Fatalf("unexpected labels path: %q", cfg.Labels.Path)
	}
	if cfg.Log.Level != slog.LevelInfo {
		t.Fatalf("unexpected log level: %v", cfg.Log.Level)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	home := t.TempDir()
	endpoints := filepath.Join(home, "endpoints.yaml")
	contents := "endpoints:\n  alphabet: http://file-alphabet:5000\n  words: http://file-words:5000\n"
	if err := os.WriteFile(endpoints, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	clearEndpointEnv(t)
	t.Setenv("SIGNCOACH_ENDPOINTS_FILE", endpoints)
	t.Setenv("SIGNCOACH_ENDPOINT_WORDS", "http://env-words:6000")
	t.Setenv("SIGNCOACH_ENDPOINT_NUMBERS", "http://env-numbers:6000")
	t.Setenv("SIGNCOACH_SOCKET_PATH", "/ws/")
	t.Setenv("SIGNCOACH_CONNECT_TIMEOUT_MS", "2500")
	t.Setenv("SIGNCOACH_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("SIGNCOACH_CAMERA_INPUT_FORMAT", "avfoundation")
	t.Setenv("SIGNCOACH_CAMERA_DEVICE", "0")
	t.Setenv("SIGNCOACH_CAMERA_WIDTH", "1280")
	t.Setenv("SIGNCOACH_CAMERA_HEIGHT", "720")
	t.Setenv("SIGNCOACH_CAMERA_FPS", "30")
	t.Setenv("SIGNCOACH_FRAME_INTERVAL_MS", "100")
	t.Setenv("SIGNCOACH_JPEG_QUALITY", "65")
	t.Setenv("SIGNCOACH_FRAME_MAX_WIDTH", "320")
	t.Setenv("SIGNCOACH_MATCH_THRESHOLD", "0.75")
	t.Setenv("SIGNCOACH_LABEL_RULES_FILE", "/tmp/labels.rules")
	t.Setenv("SIGNCOACH_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	want := domain.EndpointTable{
		domain.CategoryAlphabet: "http://file-alphabet:5000",
		domain.CategoryNumbers:  "http://env-numbers:6000",
		domain.CategoryWords:    "http://env-words:6000",
	}
	for category, endpoint := range want {
		if got := cfg.Endpoints.Table[category]; got != endpoint {
			t.Fatalf("endpoint for %s = %q, want %q", category, got, endpoint)
		}
	}
	if cfg.Socket.Path != "/ws/" || cfg.Socket.ConnectTimeout != 2500*time.Millisecond {
		t.Fatalf("unexpected socket config: %+v", cfg.Socket)
	}
	if cfg.Camera.Command != "my-ffmpeg" || cfg.Camera.InputFormat != "avfoundation" || cfg.Camera.Device != "0" {
		t.Fatalf("unexpected camera config: %+v", cfg.Camera)
	}
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 || cfg.Camera.FrameRate != 30 {
		t.Fatalf("unexpected camera geometry: %+v", cfg.Camera)
	}
	if cfg.Frames.Interval != 100*time.Millisecond || cfg.Frames.Quality != 65 || cfg.Frames.MaxWidth != 320 {
		t.Fatalf("unexpected frames config: %+v", cfg.Frames)
	}
	if cfg.Session.MatchThreshold != 0.75 {
		t.Fatalf("unexpected threshold: %v", cfg.Session.MatchThreshold)
	}
	if cfg.Labels.Path != "/tmp/labels.rules" || cfg.Log.Level != slog.LevelDebug {
		t.Fatalf("unexpected labels/log config: %+v %+v", cfg.Labels, cfg.Log)
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEndpointEnv(t)
	t.Setenv("SIGNCOACH_CONNECT_TIMEOUT_MS", "-5")
	t.Setenv("SIGNCOACH_CAMERA_WIDTH", "wide")
	t.Setenv("SIGNCOACH_CAMERA_FPS", "0")
	t.Setenv("SIGNCOACH_FRAME_INTERVAL_MS", "bad")
	t.Setenv("SIGNCOACH_JPEG_QUALITY", "150")
	t.Setenv("SIGNCOACH_FRAME_MAX_WIDTH", "-1")
	t.Setenv("SIGNCOACH_MATCH_THRESHOLD", "-0.5")
	t.Setenv("SIGNCOACH_LOG_LEVEL", "loud")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Socket.ConnectTimeout != 10*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.Socket.ConnectTimeout)
	}
	if cfg.Camera.Width != 640 || cfg.Camera.FrameRate != 25 {
		t.Fatalf("expected default geometry, got %+v", cfg.Camera)
	}
	if cfg.Frames.Interval != 40*time.Millisecond || cfg.Frames.Quality != 80 || cfg.Frames.MaxWidth != 0 {
		t.Fatalf("expected default frames config, got %+v", cfg.Frames)
	}
	if cfg.Session.MatchThreshold != 0 {
		t.Fatalf("expected clamped threshold, got %v", cfg.Session.MatchThreshold)
	}
	if cfg.Log.Level != slog.LevelInfo {
		t.Fatalf("expected info level, got %v", cfg.Log.Level)
	}
}

func TestLoadThresholdRejectsNonFiniteValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEndpointEnv(t)

	for _, raw := range []string{"NaN", "nan", "Inf", "+Inf", "-Inf", "infinity"} {
		t.Setenv("SIGNCOACH_MATCH_THRESHOLD", raw)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("%s: load failed: %v", raw, err)
		}
		if cfg.Session.MatchThreshold != 0 {
			t.Fatalf("%s: expected default threshold, got %v", raw, cfg.Session.MatchThreshold)
		}
	}

	t.Setenv("SIGNCOACH_MATCH_THRESHOLD", "0.65")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Session.MatchThreshold != 0.65 {
		t.Fatalf("expected finite threshold kept, got %v", cfg.Session.MatchThreshold)
	}
}

func TestLoadRejectsInvalidEndpointFile(t *testing.T) {
	home := t.TempDir()
	endpoints := filepath.Join(home, "endpoints.yaml")
	if err := os.WriteFile(endpoints, []byte("endpoints:\n  colors: http://x\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("HOME", home)
	clearEndpointEnv(t)
	t.Setenv("SIGNCOACH_ENDPOINTS_FILE", endpoints)

	if _, err := Load(); !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestParseEndpoints(t *testing.T) {
	t.Parallel()

	table, err := ParseEndpoints([]byte("endpoints:\n  Alphabet: ' http://a '\n  numbers: ''\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got, ok := table.Lookup(domain.CategoryAlphabet); !ok || got != "http://a" {
		t.Fatalf("unexpected alphabet endpoint: %q %v", got, ok)
	}
	if _, ok := table.Lookup(domain.CategoryNumbers); ok {
		t.Fatalf("blank endpoint must disable the category")
	}

	if _, err := ParseEndpoints([]byte("endpoints: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestLoadEndpointsMissingFile(t *testing.T) {
	t.Parallel()

	table, err := LoadEndpoints(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("expected empty table, got %+v", table)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
