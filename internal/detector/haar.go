package detector

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"gocv.io/x/gocv"
)

// AssetSource resolves and fetches classifier files that are missing locally.
type AssetSource interface {
	ResolvePath(name string) string
	FetchBytes(ctx context.Context, uri string) ([]byte, error)
}

// HaarDetector implements Detector with OpenCV Haar cascades for faces and eyes.
type HaarDetector struct {
	config Config
	assets AssetSource
	loader ModuleLoader
	caps   Capabilities
	logger *slog.Logger
	sink   DebugSink

	state   State
	variant Variant

	face *gocv.CascadeClassifier
	eye  *gocv.CascadeClassifier

	// scratch buffers reused across detection calls
	gray    gocv.Mat
	scaled  gocv.Mat
	reduced gocv.Mat

	scale ScaleContext
}

// HaarOption configures a HaarDetector.
type HaarOption func(*HaarDetector)

// WithModuleLoader replaces the native runtime check.
func WithModuleLoader(l ModuleLoader) HaarOption {
	return func(d *HaarDetector) { d.loader = l }
}

// WithCapabilities overrides the probed host capabilities.
func WithCapabilities(c Capabilities) HaarOption {
	return func(d *HaarDetector) { d.caps = c }
}

// WithDebugSink sets a sink that receives every detection.
func WithDebugSink(s DebugSink) HaarOption {
	return func(d *HaarDetector) { d.sink = s }
}

// NewHaarDetector creates a detector. Nothing is loaded until Init and InitData run.
func NewHaarDetector(config Config, assets AssetSource, logger *slog.Logger, opts ...HaarOption) *HaarDetector {
	if logger == nil {
		logger = slog.Default()
	}

	d := &HaarDetector{
		config: config,
		assets: assets,
		loader: nativeLoader{},
		caps:   ProbeCapabilities(),
		logger: logger.With("component", "detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init selects the best runtime variant for this host and loads it.
func (d *HaarDetector) Init(ctx context.Context) error {
	if d.state.ModuleReady() {
		d.logger.Info("runtime already loaded", "variant", d.variant)
		return nil
	}

	variant, uri, ok := SelectVariant(d.config.Variants, d.caps)
	if !ok {
		return fmt.Errorf("%w: no runtime variant available for %+v", ErrModuleLoad, d.caps)
	}

	if err := d.loader.Load(ctx, variant, uri); err != nil {
		return fmt.Errorf("%w: %v", ErrModuleLoad, err)
	}

	d.variant = variant
	d.state = StateModuleLoaded
	d.logger.Info("runtime loaded", "variant", variant, "uri", uri)
	return nil
}

// Variant returns the runtime variant chosen by Init.
func (d *HaarDetector) Variant() Variant {
	return d.variant
}

type classifierSlot struct {
	name string
	cls  *gocv.CascadeClassifier
}

// InitData loads both classifiers and allocates scratch buffers.
// Missing model files are fetched from the asset source once.
func (d *HaarDetector) InitData(ctx context.Context) error {
	if d.state.DataReady() {
		d.logger.Error("data loaded twice, close the detector first")
		return ErrDataAlreadyLoaded
	}
	if !d.state.ModuleReady() {
		return fmt.Errorf("%w: runtime module is not loaded", ErrDataLoad)
	}

	face := gocv.NewCascadeClassifier()
	eye := gocv.NewCascadeClassifier()
	slots := []classifierSlot{
		{name: d.config.FaceModel, cls: &face},
		{name: d.config.EyeModel, cls: &eye},
	}

	if err := d.loadClassifiers(ctx, slots); err != nil {
		face.Close()
		eye.Close()
		d.logger.Error("failed to load classifiers", "error", err)
		return err
	}

	d.face = &face
	d.eye = &eye
	d.state = StateModelLoaded

	d.gray = gocv.NewMat()
	d.scaled = gocv.NewMat()
	d.reduced = gocv.NewMat()
	d.state = StateReady

	d.logger.Info("classifiers loaded", "face", d.config.FaceModel, "eye", d.config.EyeModel)
	return nil
}

func (d *HaarDetector) loadClassifiers(ctx context.Context, slots []classifierSlot) error {
	missing := d.tryLoad(slots)
	if len(missing) == 0 {
		return nil
	}

	if d.assets == nil {
		return fmt.Errorf("%w: %s not found in %s and no asset source configured",
			ErrDataLoad, missing[0].name, d.config.ModelDir)
	}

	for _, slot := range missing {
		if err := d.materialize(ctx, slot.name); err != nil {
			return fmt.Errorf("%w: %v", ErrDataLoad, err)
		}
	}

	if still := d.tryLoad(missing); len(still) > 0 {
		return fmt.Errorf("%w: %s could not be loaded after fetching", ErrDataLoad, still[0].name)
	}
	return nil
}

// tryLoad loads each slot from the model directory and returns the ones that failed.
func (d *HaarDetector) tryLoad(slots []classifierSlot) []classifierSlot {
	var failed []classifierSlot
	for _, slot := range slots {
		if !slot.cls.Load(filepath.Join(d.config.ModelDir, slot.name)) {
			failed = append(failed, slot)
		}
	}
	return failed
}

// materialize fetches a model file and writes it into the model directory.
func (d *HaarDetector) materialize(ctx context.Context, name string) error {
	uri := d.assets.ResolvePath(path.Join("opencv", name))
	data, err := d.assets.FetchBytes(ctx, uri)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", uri, err)
	}

	if err := os.MkdirAll(d.config.ModelDir, 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	target := filepath.Join(d.config.ModelDir, name)
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	d.logger.Info("classifier materialized", "name", name, "uri", uri, "bytes", len(data))
	return nil
}

// Detect converts the frame to gray, downsamples it twice and runs the face
// cascade, then the eye cascade inside each face.
func (d *HaarDetector) Detect(img image.Image) (*Result, error) {
	if !d.state.DataReady() {
		return nil, ErrNotReady
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrDetection)
	}

	var arena matArena
	defer arena.release()

	src, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	arena.track(src)

	size, reduced := downsampledSize(bounds.Size(), d.config.ScaleFactor)
	if size.X < 2 || size.Y < 2 {
		return nil, fmt.Errorf("%w: frame %v too small", ErrDetection, bounds.Size())
	}

	if err := gocv.CvtColor(src, &d.gray, gocv.ColorRGBAToGray); err != nil {
		return nil, fmt.Errorf("%w: convert to gray: %v", ErrDetection, err)
	}
	if err := gocv.Resize(d.gray, &d.scaled, size, 0, 0, gocv.InterpolationArea); err != nil {
		return nil, fmt.Errorf("%w: resize: %v", ErrDetection, err)
	}
	if err := gocv.PyrDown(d.scaled, &d.reduced, reduced, gocv.BorderDefault); err != nil {
		return nil, fmt.Errorf("%w: pyramid down: %v", ErrDetection, err)
	}

	faces := d.face.DetectMultiScaleWithParams(d.reduced,
		d.config.FaceScaleStep, d.config.FaceMinNeighbors, 0, image.Point{}, image.Point{})

	eyes := make([][]image.Rectangle, len(faces))
	for i, face := range faces {
		roi := arena.track(d.reduced.Region(face))
		eyes[i] = d.eye.DetectMultiScaleWithParams(*roi,
			d.config.EyeScaleStep, d.config.EyeMinNeighbors, 0, image.Point{}, image.Point{})
	}

	d.scale = scaleFor(bounds.Size(), reduced)

	if d.sink != nil {
		drawDebug(d.sink, faces, eyes, d.scale)
	}

	return &Result{Faces: faces, Eyes: eyes, Scale: d.scale}, nil
}

// downsampledSize returns the size after the area resize by 1/scaleFactor and
// the size after the following pyramid step, which halves rounding up.
func downsampledSize(src image.Point, scaleFactor float64) (scaled, reduced image.Point) {
	scaled = image.Pt(
		int(float64(src.X)/scaleFactor),
		int(float64(src.Y)/scaleFactor),
	)
	reduced = image.Pt((scaled.X+1)/2, (scaled.Y+1)/2)
	return scaled, reduced
}

// scaleFor maps the reduced detection image back to a src sized frame.
func scaleFor(src, reduced image.Point) ScaleContext {
	return ScaleContext{
		ScaleX: float64(src.X) / float64(reduced.X),
		ScaleY: float64(src.Y) / float64(reduced.Y),
		Source: src,
	}
}

// Validate checks the biggest face of result using the scale of the last Detect call.
func (d *HaarDetector) Validate(result *Result) Verdict {
	if result == nil || result.Faces == nil && result.Eyes == nil {
		return VerdictFailure
	}

	i, ok := BiggestFace(result.Faces)
	if !ok {
		return VerdictFaceNotFound
	}
	return Validate(result.Faces, result.EyesOf(i), d.scale, d.config.Thresholds)
}

// State reports the initialization stage.
func (d *HaarDetector) State() State {
	return d.state
}

// Close releases classifiers and scratch buffers. The runtime stays loaded,
// so InitData may be called again afterwards.
func (d *HaarDetector) Close() error {
	if d.face != nil {
		d.face.Close()
		d.face = nil
	}
	if d.eye != nil {
		d.eye.Close()
		d.eye = nil
	}

	if d.state.DataReady() {
		d.gray.Close()
		d.scaled.Close()
		d.reduced.Close()
	}

	if d.state.ModuleReady() {
		d.state = StateModuleLoaded
	}
	return nil
}
