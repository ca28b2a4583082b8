// Package detector provides face and eye detection for the selfie capture flow,
// together with the geometry rules that turn raw detections into a verdict.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Errors reported by detector implementations.
var (
	// ErrModuleLoad is returned when the detection runtime cannot be loaded.
	ErrModuleLoad = errors.New("detector: module load failed")
	// ErrDataLoad is returned when classifier models or scratch buffers cannot be prepared.
	ErrDataLoad = errors.New("detector: data load failed")
	// ErrDataAlreadyLoaded is returned by InitData when data is loaded and Close was not called.
	ErrDataAlreadyLoaded = fmt.Errorf("%w: data already loaded, close the detector first", ErrDataLoad)
	// ErrDetection is returned when a single detection call fails.
	ErrDetection = errors.New("detector: detection failed")
	// ErrNotReady is returned by Detect before InitData succeeded.
	ErrNotReady = errors.New("detector: not ready")
)

// Detector defines the interface for face detection implementations.
//
// Implementations do not synchronize Detect calls; callers must guarantee that
// at most one call is in flight.
type Detector interface {
	// Init loads the detection runtime. Calling it again after success is a no-op.
	Init(ctx context.Context) error

	// InitData loads the classifier models and allocates scratch buffers.
	// It fails with ErrDataAlreadyLoaded if called twice without Close.
	InitData(ctx context.Context) error

	// Detect runs face detection and per-face eye detection on a frame.
	Detect(img image.Image) (*Result, error)

	// Validate turns the result of the last Detect call into a verdict.
	Validate(result *Result) Verdict

	// State reports how far initialization has progressed.
	State() State

	// Close releases any resources held by the detector.
	Close() error
}

// Result holds the rectangles produced by one detection call.
// Coordinates are in the detector's reduced image space. Eyes[i] holds the
// eyes found inside Faces[i], relative to that face's origin.
type Result struct {
	Faces []image.Rectangle
	Eyes  [][]image.Rectangle
	Scale ScaleContext
}

// EyesOf returns the eyes detected inside the face at index i.
func (r *Result) EyesOf(i int) []image.Rectangle {
	if r == nil || i < 0 || i >= len(r.Eyes) {
		return nil
	}
	return r.Eyes[i]
}

// State is the initialization stage of a detector.
type State int

const (
	StateUninitialized State = iota
	StateModuleLoaded
	StateModelLoaded
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateModuleLoaded:
		return "module_loaded"
	case StateModelLoaded:
		return "model_loaded"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ModuleReady reports whether the runtime module is loaded.
func (s State) ModuleReady() bool { return s >= StateModuleLoaded }

// ModelReady reports whether both classifiers are loaded.
func (s State) ModelReady() bool { return s >= StateModelLoaded }

// DataReady reports whether classifiers and scratch buffers are ready for detection.
func (s State) DataReady() bool { return s >= StateReady }

// Config holds configuration options for face detection.
type Config struct {
	// ScaleFactor is the first downsampling divisor applied before one pyramid reduction.
	ScaleFactor float64

	// FaceScaleStep and FaceMinNeighbors tune the multi-scale face search.
	FaceScaleStep    float64
	FaceMinNeighbors int

	// EyeScaleStep and EyeMinNeighbors tune the eye search inside each face.
	EyeScaleStep    float64
	EyeMinNeighbors int

	// FaceModel and EyeModel are classifier file names inside ModelDir.
	FaceModel string
	EyeModel  string

	// ModelDir is where classifier files are loaded from and materialized to.
	ModelDir string

	// Variants maps each runtime variant to its module path. Empty paths are skipped.
	Variants map[Variant]string

	Thresholds Thresholds
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ScaleFactor:      2.5,
		FaceScaleStep:    1.1,
		FaceMinNeighbors: 4,
		EyeScaleStep:     1.05,
		EyeMinNeighbors:  4,
		FaceModel:        "haarcascade_frontalface_default.xml",
		EyeModel:         "haarcascade_eye.xml",
		ModelDir:         "models",
		Variants: map[Variant]string{
			VariantBaseline: "runtime/baseline",
		},
		Thresholds: DefaultThresholds(),
	}
}
