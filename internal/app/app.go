// Package app orchestrates selfie capture: it polls the detector, freezes a frame
// once the face is framed and falls back to manual capture on timeout.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/autoselfie/internal/capture"
	"github.com/ayusman/autoselfie/internal/detector"
)

var (
	// ErrInitialization wraps every failure that keeps Start from polling.
	ErrInitialization = errors.New("initialization failed")
	// ErrInvalidTransition is returned by commands not allowed in the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrClosed is returned once Close was called.
	ErrClosed = errors.New("app closed")
)

// Config holds capture timings in milliseconds.
type Config struct {
	// IntervalMs is the target period between detection cycles.
	IntervalMs int
	// AutoCaptureDelayMs is the wait between Ready and the re-check that captures.
	AutoCaptureDelayMs int
	// ConfirmationDelayMs is the wait between Done and Confirmation.
	ConfirmationDelayMs int
	// ManualTimeoutMs shows the manual control this long after the camera is ready. Zero disables it.
	ManualTimeoutMs int
	// FaceManualTimeoutMs shows the manual control this long after the first face. Zero disables it.
	FaceManualTimeoutMs int
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		IntervalMs:          300,
		AutoCaptureDelayMs:  100,
		ConfirmationDelayMs: 1500,
		ManualTimeoutMs:     20000,
		FaceManualTimeoutMs: 10000,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// CaptureMode tells how a frame was captured.
type CaptureMode string

const (
	CaptureAuto   CaptureMode = "auto"
	CaptureManual CaptureMode = "manual"
)

// CaptureEvent describes one completed capture.
type CaptureEvent struct {
	AttemptID  string
	Mode       CaptureMode
	Width      int
	Height     int
	CapturedAt time.Time
}

// Recorder receives capture events. Errors are logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, ev CaptureEvent) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev CaptureEvent) error

func (f RecorderFunc) Record(ctx context.Context, ev CaptureEvent) error {
	return f(ctx, ev)
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithRecorder sets a recorder for capture events.
func WithRecorder(r Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// App is the capture state machine.
//
// All state is guarded by mu. Detector calls are serialized by detectMu, which
// is always acquired after mu when both are held. Listeners run with mu held
// and must not call back into the App.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	logger   *slog.Logger
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	detectMu sync.Mutex

	status        Status
	initializing  bool
	initialized   bool
	cameraReady   bool
	closed        bool
	loop          *LoopHandle
	frame         *capture.Frame
	attemptID     string
	faceSeen      bool
	manualVisible bool

	// epoch invalidates pending timer callbacks when bumped
	epoch  uint64
	timers timerSet

	statusListeners []func(Status)
	manualListeners []func()
}

// New creates an App. Nothing runs until Start.
func New(config Config, camera capture.Camera, det detector.Detector, opts ...Option) *App {
	a := &App{
		config:   config,
		camera:   camera,
		detector: det,
		logger:   slog.Default(),
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "app")
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a
}

// OnStatusChange registers fn to be called on every status transition.
func (a *App) OnStatusChange(fn func(Status)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusListeners = append(a.statusListeners, fn)
}

// OnManualCaptureVisible registers fn to be called when the manual control appears.
func (a *App) OnManualCaptureVisible(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manualListeners = append(a.manualListeners, fn)
}

// Start opens the camera, initializes the detector and starts polling.
// Calling Start on a started App is a no-op.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.initializing || a.initialized {
		a.mu.Unlock()
		return nil
	}
	a.initializing = true
	a.mu.Unlock()

	if err := a.camera.Open(); err != nil {
		a.mu.Lock()
		a.initializing = false
		a.mu.Unlock()
		a.logger.Error("failed to open camera", "error", err)
		return fmt.Errorf("%w: open camera: %w", ErrInitialization, err)
	}

	a.mu.Lock()
	if a.closed {
		a.initializing = false
		a.mu.Unlock()
		_ = a.camera.Close()
		return ErrClosed
	}
	a.cameraReady = true
	a.newAttemptLocked()
	a.armManualLocked(&a.timers.manual, ms(a.config.ManualTimeoutMs), "timeout")

	// Close waits on detectMu, so it releases whatever Init allocates.
	a.detectMu.Lock()
	a.mu.Unlock()
	err := a.detector.Init(ctx)
	if err == nil {
		err = a.detector.InitData(ctx)
	}
	a.detectMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.initializing = false
	if a.closed {
		return ErrClosed
	}
	if err != nil {
		a.logger.Error("failed to initialize detector", "error", err)
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	a.initialized = true
	a.startLoopLocked()

	a.logger.Info("capture started", "attempt", a.attemptID)
	return nil
}

// ManualCapture captures the current frame regardless of status and moves to
// Confirmation. The loop is cancelled before its next publish can land.
// It is rejected while Start is still initializing the detector.
func (a *App) ManualCapture() error {
	ev, err := a.manualCapture()
	if err != nil {
		return err
	}
	a.record(ev)
	return nil
}

func (a *App) manualCapture() (*CaptureEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if a.initializing {
		return nil, fmt.Errorf("%w: manual capture while initializing", ErrInvalidTransition)
	}

	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.logger.Warn("manual capture without frame", "status", a.status, "error", err)
		return nil, fmt.Errorf("manual capture: %w", err)
	}

	a.stopLoopLocked()
	a.epoch++
	a.stopAllTimersLocked()

	ev := a.captureLocked(frame, CaptureManual)
	a.setStatusLocked(StatusConfirmation)
	a.camera.Pause()
	return ev, nil
}

// Reset discards the captured frame and starts a new attempt.
// Allowed only from Done or Confirmation.
func (a *App) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if !a.status.Captured() {
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, a.status)
	}

	a.epoch++
	a.stopAllTimersLocked()

	a.frame = nil
	a.setStatusLocked(StatusIdle)
	a.camera.Resume()
	a.manualVisible = true
	a.newAttemptLocked()

	if a.initialized {
		a.startLoopLocked()
	}

	a.logger.Info("capture reset", "attempt", a.attemptID)
	return nil
}

// Close cancels the loop and all timers, then releases the detector and camera.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.epoch++
	a.stopAllTimersLocked()
	loop := a.loop
	a.stopLoopLocked()
	a.cancel()
	a.mu.Unlock()

	if loop != nil {
		<-loop.Done()
	}

	a.detectMu.Lock()
	detErr := a.detector.Close()
	a.detectMu.Unlock()

	camErr := a.camera.Close()

	a.logger.Info("capture closed")
	return errors.Join(detErr, camErr)
}

// Status returns the current status.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// IsInitializing reports whether Start is loading the detector.
func (a *App) IsInitializing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initializing
}

// IsInitialized reports whether the detector is ready and polling may run.
func (a *App) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// CapturedFrame returns the captured frame, or nil when none is held.
func (a *App) CapturedFrame() *capture.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frame
}

// ManualCaptureVisible reports whether the manual control should be shown.
func (a *App) ManualCaptureVisible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.manualVisible && a.cameraReady && a.frame == nil
}

// AttemptID identifies the current capture attempt.
func (a *App) AttemptID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attemptID
}

func (a *App) setStatusLocked(s Status) {
	if a.status == s {
		return
	}
	a.logger.Debug("status changed", "from", a.status, "to", s, "attempt", a.attemptID)
	a.status = s
	for _, fn := range a.statusListeners {
		fn(s)
	}
}

func (a *App) newAttemptLocked() {
	a.attemptID = uuid.NewString()
}

func (a *App) startLoopLocked() {
	a.stopLoopLocked()
	a.loop = StartLoop(ms(a.config.IntervalMs), a.poll, a.onCycle, a.logger)
}

func (a *App) stopLoopLocked() {
	if a.loop != nil {
		a.loop.Cancel()
		a.loop = nil
	}
}

// poll runs on the loop goroutine without mu.
func (a *App) poll() (detector.Verdict, error) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		return detector.VerdictFailure, err
	}
	return a.detectSafely(frame)
}

// onCycle publishes a loop result. The token is checked under mu so a
// cancelled cycle never lands.
func (a *App) onCycle(h *LoopHandle, status Status, verdict detector.Verdict) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h.Cancelled() || a.loop != h || a.closed {
		a.logger.Debug("discarding cancelled cycle", "verdict", verdict)
		return false
	}

	if verdict.FaceDetected() && !a.faceSeen {
		a.faceSeen = true
		a.armManualLocked(&a.timers.face, ms(a.config.FaceManualTimeoutMs), "face")
	}

	a.setStatusLocked(status)

	if status == StatusReady {
		a.stopLoopLocked()
		stopTimer(&a.timers.auto)
		a.timers.auto = a.afterLocked(ms(a.config.AutoCaptureDelayMs), a.autoCaptureLocked)
		return false
	}
	return true
}

// autoCaptureLocked re-checks the current frame and captures it when it still passes.
func (a *App) autoCaptureLocked() *CaptureEvent {
	a.timers.auto = nil
	if a.status != StatusReady {
		return nil
	}

	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.logger.Warn("frame unavailable for auto capture", "error", err)
		a.setStatusLocked(StatusPending)
		a.startLoopLocked()
		return nil
	}

	verdict, err := a.detectSafely(frame)
	if err != nil {
		a.logger.Warn("auto capture check failed", "error", err)
	}
	if verdict != detector.VerdictSuccess {
		a.setStatusLocked(StatusFor(verdict))
		a.startLoopLocked()
		return nil
	}

	a.stopCaptureTimersLocked()
	ev := a.captureLocked(frame, CaptureAuto)
	a.setStatusLocked(StatusDone)
	a.timers.confirm = a.afterLocked(ms(a.config.ConfirmationDelayMs), a.confirmLocked)
	return ev
}

func (a *App) confirmLocked() *CaptureEvent {
	a.timers.confirm = nil
	if a.status != StatusDone {
		return nil
	}
	a.setStatusLocked(StatusConfirmation)
	a.camera.Pause()
	return nil
}

func (a *App) captureLocked(frame *capture.Frame, mode CaptureMode) *CaptureEvent {
	a.frame = frame
	size := frame.Size()
	a.logger.Info("frame captured", "mode", mode, "attempt", a.attemptID, "width", size.X, "height", size.Y)
	return &CaptureEvent{
		AttemptID:  a.attemptID,
		Mode:       mode,
		Width:      size.X,
		Height:     size.Y,
		CapturedAt: frame.Timestamp,
	}
}

func (a *App) showManualLocked(reason string) {
	if a.manualVisible || !a.cameraReady || a.frame != nil {
		return
	}
	a.manualVisible = true
	a.logger.Info("manual capture available", "reason", reason)
	for _, fn := range a.manualListeners {
		fn()
	}
}

// detectSafely runs one detection under detectMu and turns a native panic into ErrDetection.
func (a *App) detectSafely(frame *capture.Frame) (verdict detector.Verdict, err error) {
	a.detectMu.Lock()
	defer a.detectMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			verdict = detector.VerdictFailure
			err = fmt.Errorf("%w: panic: %v", detector.ErrDetection, r)
		}
	}()

	result, err := a.detector.Detect(frame.Image)
	if err != nil {
		return detector.VerdictFailure, err
	}
	return a.detector.Validate(result), nil
}

func (a *App) record(ev *CaptureEvent) {
	if ev == nil || a.recorder == nil {
		return
	}
	if err := a.recorder.Record(a.ctx, *ev); err != nil {
		a.logger.Warn("failed to record capture", "attempt", ev.AttemptID, "error", err)
	}
}
