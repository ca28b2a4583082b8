package detector

import (
	"context"
	"image"
	"sync"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control verdicts and initialization failures.
type MockDetector struct {
	mu sync.Mutex

	state    State
	verdicts []Verdict
	last     Verdict
	result   *Result

	initErr   error
	dataErr   error
	detectErr error
	onDetect  func()

	detectCalls int
	closed      bool
}

// NewMockDetector creates a new MockDetector instance that reports FaceNotFound.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		last: VerdictFaceNotFound,
		result: &Result{
			Faces: []image.Rectangle{},
			Eyes:  [][]image.Rectangle{},
		},
	}
}

// SetVerdicts queues verdicts returned by successive Validate calls.
// Once the queue is drained the last verdict is repeated.
func (m *MockDetector) SetVerdicts(verdicts ...Verdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts = append(m.verdicts[:0], verdicts...)
}

// SetInitError sets the error that will be returned by Init.
func (m *MockDetector) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetDataError sets the error that will be returned by InitData.
func (m *MockDetector) SetDataError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataErr = err
}

// SetDetectError sets the error that will be returned by Detect.
func (m *MockDetector) SetDetectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectErr = err
}

// OnDetect registers a hook that runs at the start of every Detect call.
// Tests use it to block a detection in flight.
func (m *MockDetector) OnDetect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDetect = fn
}

// DetectCalls returns how many times Detect was called.
func (m *MockDetector) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Init marks the module as loaded unless an init error is set.
func (m *MockDetector) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.ModuleReady() {
		return nil
	}
	if m.initErr != nil {
		return m.initErr
	}
	m.state = StateModuleLoaded
	return nil
}

// InitData follows the same gate rules as HaarDetector.
func (m *MockDetector) InitData(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.DataReady() {
		return ErrDataAlreadyLoaded
	}
	if !m.state.ModuleReady() {
		return ErrDataLoad
	}
	if m.dataErr != nil {
		return m.dataErr
	}
	m.state = StateReady
	return nil
}

// Detect returns the configured result or error.
func (m *MockDetector) Detect(img image.Image) (*Result, error) {
	m.mu.Lock()
	hook := m.onDetect
	m.detectCalls++
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.DataReady() {
		return nil, ErrNotReady
	}
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	return m.result, nil
}

// Validate pops the next queued verdict.
func (m *MockDetector) Validate(result *Result) Verdict {
	if result == nil {
		return VerdictFailure
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.verdicts) > 0 {
		m.last = m.verdicts[0]
		m.verdicts = m.verdicts[1:]
	}
	return m.last
}

// State reports the initialization stage.
func (m *MockDetector) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close resets the data gate.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.state.ModuleReady() {
		m.state = StateModuleLoaded
	}
	return nil
}
