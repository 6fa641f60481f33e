package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"signcoach/internal/bootstrap"
	"signcoach/internal/config"
	"signcoach/internal/domain"
	"signcoach/internal/usecase"
)

const (
	eventSession    = "signcoach:session"
	eventPrediction = "signcoach:prediction"
	eventMatched    = "signcoach:matched"
	eventFinished   = "signcoach:finished"
	eventError      = "signcoach:error"
)

// CategoryInfo describes a practice category for the UI.
type CategoryInfo struct {
	Name        domain.Category `json:"name"`
	Recognition bool            `json:"recognition"`
}

// App is the Wails application root.
type App struct {
	ctx         context.Context
	stopWatcher context.CancelFunc

	controller *usecase.PracticeController
	cfg        config.Config
	logger     *slog.Logger
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, nil)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.logger = services.Logger

	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatcher = cancel
	go func() {
		err := config.WatchEndpoints(watchCtx, a.cfg.Endpoints.Path, a.logger, a.controller.SetEndpoints)
		if err != nil {
			a.logger.Warn("app: endpoint file not watched", "path", a.cfg.Endpoints.Path, "error", err)
		}
	}()

	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.stopWatcher != nil {
		a.stopWatcher()
	}
	if a.controller != nil {
		a.controller.Shutdown()
	}
}

// StartPractice begins a practice session for one target gesture.
func (a *App) StartPractice(category string, targetLabel string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	status, err := a.controller.Start(a.ctx, usecase.Request{
		Category:    domain.Category(category),
		TargetLabel: targetLabel,
	})
	if err != nil {
		return domain.Status{}, err
	}
	return status, nil
}

// FinishPractice ends the current session and releases the camera.
func (a *App) FinishPractice() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	status, err := a.controller.Finish()
	if err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return a.controller.Status(), nil
		}
		return domain.Status{}, err
	}
	return status, nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{State: domain.SessionStateIdle, Connection: domain.ConnectionDisconnected}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetPreviewFrame returns the latest camera frame as base64 JPEG, or an
// empty string while no frame is available.
func (a *App) GetPreviewFrame() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	frame, err := a.controller.PreviewFrame()
	if errors.Is(err, usecase.ErrNoActiveSession) || errors.Is(err, domain.ErrFrameNotReady) {
		return "", nil
	}
	return frame, err
}

// GetCategories lists categories and whether recognition is available for each.
func (a *App) GetCategories() []CategoryInfo {
	var recognition map[domain.Category]bool
	if a.controller != nil {
		recognition = a.controller.Recognition()
	}
	out := make([]CategoryInfo, 0, len(domain.Categories()))
	for _, category := range domain.Categories() {
		out = append(out, CategoryInfo{Name: category, Recognition: recognition[category]})
	}
	return out
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"endpointsFile":  a.cfg.Endpoints.Path,
		"labelRulesFile": a.cfg.Labels.Path,
		"cameraDevice":   a.cfg.Camera.Device,
		"cameraFormat":   a.cfg.Camera.InputFormat,
		"resolution":     fmt.Sprintf("%dx%d", a.cfg.Camera.Width, a.cfg.Camera.Height),
		"frameInterval":  a.cfg.Frames.Interval.String(),
		"matchThreshold": strconv.FormatFloat(a.cfg.Session.MatchThreshold, 'f', -1, 64),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// PredictionReceived emits the latest recognition result.
func (a *App) PredictionReceived(prediction domain.Prediction) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPrediction, prediction)
}

// SessionMatched tells the UI the target gesture was recognized.
func (a *App) SessionMatched(result domain.MatchResult) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventMatched, result)
}

// SessionFinished signals that the session released its resources.
func (a *App) SessionFinished(status domain.Status) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventFinished, status)
}

// SessionError emits non-fatal session problems to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonStarted:
		return "Starting camera"
	case domain.SessionReasonRestarted:
		return "Practice restarted; previous attempt discarded"
	case domain.SessionReasonStreaming:
		return "Recognizing your sign"
	case domain.SessionReasonCameraOnly:
		return "Camera ready; recognition is not available for this category"
	case domain.SessionReasonCameraUnavailable:
		return "Camera unavailable; you can still review the reference"
	case domain.SessionReasonConnectionDropped:
		return "Recognition stopped; connection lost"
	case domain.SessionReasonRecognitionDisabled:
		return "Recognition disabled"
	case domain.SessionReasonMatched:
		return "Correct!"
	case domain.SessionReasonFinished:
		return "Practice finished"
	case domain.SessionReasonCancelled:
		return "Practice cancelled"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCamera:
		return "Camera access failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
