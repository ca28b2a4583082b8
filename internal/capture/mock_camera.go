package capture

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// MockCamera plays back pre-recorded frames for testing
type MockCamera struct {
	frames  []*image.RGBA
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
	paused  bool
	openErr error
	reads   int
}

func NewMockCamera(frames []*image.RGBA, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
	}
}

// SolidFrames returns n frames of the given size, useful as placeholder playback.
func SolidFrames(n, width, height int) []*image.RGBA {
	frames := make([]*image.RGBA, n)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return frames
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.running = true
	c.paused = false
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reads++

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if c.paused {
		return nil, fmt.Errorf("%w: camera paused", ErrFrameUnavailable)
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("%w: no frames available", ErrFrameUnavailable)
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, fmt.Errorf("%w: no more frames", ErrFrameUnavailable)
		}
	}

	frame := &Frame{Image: c.frames[c.index], Timestamp: time.Now()}
	c.index++

	return frame, nil
}

func (c *MockCamera) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

func (c *MockCamera) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

func (c *MockCamera) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && !c.paused
}

// IsPaused reports whether Pause was called without a matching Resume.
func (c *MockCamera) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SetOpenError makes the next Open calls fail with err.
func (c *MockCamera) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// Reads returns the number of ReadFrame calls.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []*image.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}
