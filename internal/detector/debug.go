package detector

import (
	"image"
	"image/color"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// DebugSink receives face and eye rectangles in source frame coordinates.
// It is purely observational.
type DebugSink interface {
	Clear()
	DrawFace(r image.Rectangle)
	DrawEye(r image.Rectangle)
}

// drawDebug maps every face and its eyes to source coordinates and sends them to sink.
// Eye rectangles are relative to their face, so the face offset is added first.
func drawDebug(sink DebugSink, faces []image.Rectangle, eyes [][]image.Rectangle, sc ScaleContext) {
	sink.Clear()
	for i, face := range faces {
		sink.DrawFace(sc.ToSource(face))

		if i >= len(eyes) {
			continue
		}
		for _, eye := range eyes[i] {
			sink.DrawEye(sc.ToSource(eye.Add(face.Min)))
		}
	}
}

// LogSink writes debug rectangles to a logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Clear() {}

func (s LogSink) DrawFace(r image.Rectangle) {
	s.Logger.Debug("face detected", "rect", r.String())
}

func (s LogSink) DrawEye(r image.Rectangle) {
	s.Logger.Debug("eye detected", "rect", r.String())
}

var (
	faceColor = color.RGBA{R: 255, A: 255}
	eyeColor  = color.RGBA{B: 255, A: 255}
)

// MatSink draws rectangles onto an overlay Mat sized like the source frame.
type MatSink struct {
	mu      sync.Mutex
	overlay gocv.Mat
}

// NewMatSink creates an overlay with the given source frame size.
func NewMatSink(width, height int) *MatSink {
	return &MatSink{overlay: gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)}
}

func (s *MatSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

func (s *MatSink) DrawFace(r image.Rectangle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := gocv.Rectangle(&s.overlay, r, faceColor, 1); err != nil {
		slog.Warn("failed to draw face overlay", "rect", r.String(), "error", err)
	}
}

func (s *MatSink) DrawEye(r image.Rectangle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := gocv.Rectangle(&s.overlay, r, eyeColor, 1); err != nil {
		slog.Warn("failed to draw eye overlay", "rect", r.String(), "error", err)
	}
}

// Write saves the current overlay to path.
func (s *MatSink) Write(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gocv.IMWrite(path, s.overlay)
}

// Close releases the overlay.
func (s *MatSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay.Close()
}
