// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 15
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrFrameUnavailable is returned when no frame can be grabbed right now.
	ErrFrameUnavailable = errors.New("frame unavailable")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*Frame, error)
	Pause()
	Resume()
	IsActive() bool
}

// DeviceCamera manages video capture from a camera device using GoCV.
type DeviceCamera struct {
	deviceID int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
	paused   bool
	fps      int
	width    int
	height   int
	maxWidth int
}

// NewCamera creates a new DeviceCamera with the given device ID.
func NewCamera(deviceID int) *DeviceCamera {
	return &DeviceCamera{
		deviceID: deviceID,
		fps:      DefaultFPS,
		width:    DefaultWidth,
		height:   DefaultHeight,
	}
}

// SetResolution sets the requested frame size. It applies on the next Open.
// Non-positive values are ignored.
func (c *DeviceCamera) SetResolution(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.width = width
	c.height = height
}

// SetMaxWidth makes ReadFrame downscale wider frames. Zero disables it.
func (c *DeviceCamera) SetMaxWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxWidth = width
}

// Open opens the camera for capturing frames.
func (c *DeviceCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.running = true
	c.paused = false

	return nil
}

// Close closes the camera and releases resources.
func (c *DeviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	c.paused = false

	return err
}

// ReadFrame grabs the current frame and returns it as RGBA.
// A paused camera yields ErrFrameUnavailable.
func (c *DeviceCamera) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}
	if c.paused {
		return nil, fmt.Errorf("%w: camera paused", ErrFrameUnavailable)
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := c.capture.Read(&mat); !ok {
		return nil, fmt.Errorf("%w: read failed", ErrFrameUnavailable)
	}
	if mat.Empty() {
		return nil, fmt.Errorf("%w: captured frame is empty", ErrFrameUnavailable)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameUnavailable, err)
	}

	return Downscale(NewFrame(img, time.Now()), c.maxWidth), nil
}

// Pause stops delivering frames. The device stays open so Resume is instant.
func (c *DeviceCamera) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume restarts frame delivery after Pause.
func (c *DeviceCamera) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// IsActive returns true if the camera is open and not paused.
func (c *DeviceCamera) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running && !c.paused
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *DeviceCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *DeviceCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open, paused or not.
func (c *DeviceCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
