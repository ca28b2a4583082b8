package detector

import (
	"context"
	"errors"
	"image"
	"os"
	"path"
	"path/filepath"
	"testing"
)

// fakeAssets serves classifier files from a directory and counts fetches.
type fakeAssets struct {
	dir     string
	err     error
	fetches map[string]int
}

func newFakeAssets(dir string) *fakeAssets {
	return &fakeAssets{dir: dir, fetches: make(map[string]int)}
}

func (f *fakeAssets) ResolvePath(name string) string {
	return "test://" + name
}

func (f *fakeAssets) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	f.fetches[uri]++
	if f.err != nil {
		return nil, f.err
	}
	if f.dir == "" {
		return []byte("<opencv_storage></opencv_storage>"), nil
	}
	return os.ReadFile(filepath.Join(f.dir, path.Base(uri)))
}

func okLoader(calls *int) ModuleLoader {
	return ModuleLoaderFunc(func(ctx context.Context, v Variant, uri string) error {
		*calls++
		return nil
	})
}

// findCascadeDir returns a directory holding the stock OpenCV cascades, or "".
func findCascadeDir() string {
	candidates := []string{
		os.Getenv("OPENCV_CASCADE_PATH"),
		"/usr/share/opencv4/haarcascades",
		"/usr/local/share/opencv4/haarcascades",
		"/opt/homebrew/share/opencv4/haarcascades",
	}
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, "haarcascade_eye.xml")); err == nil {
			return dir
		}
	}
	return ""
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ModelDir = t.TempDir()
	return cfg
}

func TestHaarDetector_InitIdempotent(t *testing.T) {
	calls := 0
	d := NewHaarDetector(testConfig(t), nil, nil, WithModuleLoader(okLoader(&calls)))

	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
	if d.State() != StateModuleLoaded {
		t.Errorf("State() = %v, want %v", d.State(), StateModuleLoaded)
	}
	if d.Variant() != VariantBaseline {
		t.Errorf("Variant() = %v, want %v", d.Variant(), VariantBaseline)
	}
}

func TestHaarDetector_InitNoVariant(t *testing.T) {
	cfg := testConfig(t)
	cfg.Variants = map[Variant]string{VariantParallelVector: "runtime/pv"}

	calls := 0
	d := NewHaarDetector(cfg, nil, nil,
		WithModuleLoader(okLoader(&calls)),
		WithCapabilities(Capabilities{}),
	)

	err := d.Init(context.Background())
	if !errors.Is(err, ErrModuleLoad) {
		t.Fatalf("Init() error = %v, want ErrModuleLoad", err)
	}
	if calls != 0 {
		t.Errorf("loader should not run without a variant, ran %d times", calls)
	}
	if d.State().ModuleReady() {
		t.Error("module gate should stay closed")
	}
}

func TestHaarDetector_InitLoaderFailure(t *testing.T) {
	loader := ModuleLoaderFunc(func(ctx context.Context, v Variant, uri string) error {
		return errors.New("boom")
	})
	d := NewHaarDetector(testConfig(t), nil, nil, WithModuleLoader(loader))

	if err := d.Init(context.Background()); !errors.Is(err, ErrModuleLoad) {
		t.Fatalf("Init() error = %v, want ErrModuleLoad", err)
	}
}

func TestHaarDetector_InitDataRequiresModule(t *testing.T) {
	d := NewHaarDetector(testConfig(t), nil, nil)

	if err := d.InitData(context.Background()); !errors.Is(err, ErrDataLoad) {
		t.Fatalf("InitData() error = %v, want ErrDataLoad", err)
	}
}

func TestHaarDetector_DetectBeforeReady(t *testing.T) {
	d := NewHaarDetector(testConfig(t), nil, nil)

	_, err := d.Detect(image.NewRGBA(image.Rect(0, 0, 64, 48)))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Detect() error = %v, want ErrNotReady", err)
	}
}

func TestHaarDetector_ValidateNil(t *testing.T) {
	d := NewHaarDetector(testConfig(t), nil, nil)
	if got := d.Validate(nil); got != VerdictFailure {
		t.Errorf("Validate(nil) = %v, want Failure", got)
	}
}

func TestHaarDetector_InitDataFetchFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires the OpenCV runtime")
	}

	calls := 0
	assets := newFakeAssets("")
	assets.err = errors.New("network down")

	d := NewHaarDetector(testConfig(t), assets, nil, WithModuleLoader(okLoader(&calls)))
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	err := d.InitData(context.Background())
	if !errors.Is(err, ErrDataLoad) {
		t.Fatalf("InitData() error = %v, want ErrDataLoad", err)
	}
	if d.State() != StateModuleLoaded {
		t.Errorf("State() = %v, want %v", d.State(), StateModuleLoaded)
	}
}

func TestHaarDetector_InitDataRetriesOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires the OpenCV runtime")
	}

	calls := 0
	// serves a valid XML document that is not a cascade, so the retry fails too
	assets := newFakeAssets("")
	cfg := testConfig(t)

	d := NewHaarDetector(cfg, assets, nil, WithModuleLoader(okLoader(&calls)))
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := d.InitData(context.Background()); !errors.Is(err, ErrDataLoad) {
		t.Fatalf("InitData() error = %v, want ErrDataLoad", err)
	}

	for _, name := range []string{cfg.FaceModel, cfg.EyeModel} {
		uri := "test://opencv/" + name
		if n := assets.fetches[uri]; n != 1 {
			t.Errorf("%s fetched %d times, want 1", uri, n)
		}
		if _, err := os.Stat(filepath.Join(cfg.ModelDir, name)); err != nil {
			t.Errorf("%s was not materialized: %v", name, err)
		}
	}
	if d.State().DataReady() {
		t.Error("data gate should stay closed")
	}
}

func TestHaarDetector_InitDataTwice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires the OpenCV runtime")
	}
	dir := findCascadeDir()
	if dir == "" {
		t.Skip("skipping test - OpenCV cascades not installed")
	}

	calls := 0
	assets := newFakeAssets(dir)
	d := NewHaarDetector(testConfig(t), assets, nil, WithModuleLoader(okLoader(&calls)))
	defer d.Close()

	ctx := context.Background()
	if err := d.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := d.InitData(ctx); err != nil {
		t.Fatalf("InitData() error = %v", err)
	}
	if d.State() != StateReady {
		t.Fatalf("State() = %v, want %v", d.State(), StateReady)
	}

	err := d.InitData(ctx)
	if !errors.Is(err, ErrDataAlreadyLoaded) {
		t.Fatalf("second InitData() error = %v, want ErrDataAlreadyLoaded", err)
	}
	if d.State() != StateReady {
		t.Errorf("State() after failed InitData = %v, want %v", d.State(), StateReady)
	}

	// the first load must still be usable
	result, err := d.Detect(image.NewRGBA(image.Rect(0, 0, 640, 480)))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if got := d.Validate(result); got != VerdictFaceNotFound {
		t.Errorf("Validate() on blank frame = %v, want FaceNotFound", got)
	}
	if result.Scale.Source != image.Pt(640, 480) {
		t.Errorf("Scale.Source = %v, want (640,480)", result.Scale.Source)
	}

	// after Close the data may be loaded again without refetching
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.InitData(ctx); err != nil {
		t.Fatalf("InitData() after Close error = %v", err)
	}
}

func TestDownsampledSize(t *testing.T) {
	tests := []struct {
		name        string
		src         image.Point
		factor      float64
		wantScaled  image.Point
		wantReduced image.Point
	}{
		{"vga", image.Pt(640, 480), 2.5, image.Pt(256, 192), image.Pt(128, 96)},
		{"hd", image.Pt(1280, 720), 2.5, image.Pt(512, 288), image.Pt(256, 144)},
		{"fraction truncated", image.Pt(642, 481), 2.5, image.Pt(256, 192), image.Pt(128, 96)},
		{"odd rounds up", image.Pt(7, 5), 1, image.Pt(7, 5), image.Pt(4, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scaled, reduced := downsampledSize(tt.src, tt.factor)
			if scaled != tt.wantScaled {
				t.Errorf("scaled = %v, want %v", scaled, tt.wantScaled)
			}
			if reduced != tt.wantReduced {
				t.Errorf("reduced = %v, want %v", reduced, tt.wantReduced)
			}
		})
	}
}

func TestScaleFor(t *testing.T) {
	_, reduced := downsampledSize(image.Pt(640, 480), 2.5)
	sc := scaleFor(image.Pt(640, 480), reduced)

	if sc.ScaleX != 5 || sc.ScaleY != 5 {
		t.Errorf("scale = %v x %v, want 5 x 5", sc.ScaleX, sc.ScaleY)
	}
	if sc.Source != image.Pt(640, 480) {
		t.Errorf("Source = %v", sc.Source)
	}
	if got := sc.ToSource(image.Rect(0, 0, reduced.X, reduced.Y)); got != image.Rect(0, 0, 640, 480) {
		t.Errorf("full reduced frame maps to %v", got)
	}
}

func TestHaarDetector_ValidateUsesBiggestFaceEyes(t *testing.T) {
	d := NewHaarDetector(testConfig(t), nil, nil)
	_, reduced := downsampledSize(image.Pt(640, 480), d.config.ScaleFactor)
	d.scale = scaleFor(image.Pt(640, 480), reduced)

	small := image.Rect(0, 0, 10, 10)
	centered := image.Rect(44, 28, 84, 68)
	offCenter := image.Rect(4, 28, 44, 68)
	eye := []image.Rectangle{image.Rect(5, 5, 12, 12)}

	tests := []struct {
		name   string
		result *Result
		want   Verdict
	}{
		{"nil result", nil, VerdictFailure},
		{"no faces", &Result{Faces: []image.Rectangle{}, Eyes: [][]image.Rectangle{}}, VerdictFaceNotFound},
		{
			name: "eyes only on the smaller face",
			result: &Result{
				Faces: []image.Rectangle{small, centered},
				Eyes:  [][]image.Rectangle{eye, nil},
			},
			want: VerdictEyesNotFound,
		},
		{
			name: "biggest face with eyes",
			result: &Result{
				Faces: []image.Rectangle{small, centered},
				Eyes:  [][]image.Rectangle{nil, eye},
			},
			want: VerdictSuccess,
		},
		{
			name: "biggest face left of center",
			result: &Result{
				Faces: []image.Rectangle{offCenter, small},
				Eyes:  [][]image.Rectangle{eye, nil},
			},
			want: VerdictTooCloseToRight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Validate(tt.result); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHaarDetector_DetectFailureKeepsLastScale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires the OpenCV runtime")
	}
	dir := findCascadeDir()
	if dir == "" {
		t.Skip("skipping test - OpenCV cascades not installed")
	}

	calls := 0
	d := NewHaarDetector(testConfig(t), newFakeAssets(dir), nil, WithModuleLoader(okLoader(&calls)))
	defer d.Close()

	ctx := context.Background()
	if err := d.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := d.InitData(ctx); err != nil {
		t.Fatalf("InitData() error = %v", err)
	}

	result, err := d.Detect(image.NewRGBA(image.Rect(0, 0, 640, 480)))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	want := scaleFor(image.Pt(640, 480), image.Pt(128, 96))
	if result.Scale != want {
		t.Errorf("Scale = %+v, want %+v", result.Scale, want)
	}

	tests := []struct {
		name string
		img  image.Image
	}{
		{"empty frame", image.NewRGBA(image.Rectangle{})},
		{"frame too small to downsample", image.NewRGBA(image.Rect(0, 0, 4, 4))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Detect(tt.img)
			if !errors.Is(err, ErrDetection) {
				t.Fatalf("Detect() error = %v, want ErrDetection", err)
			}
			if got != nil {
				t.Error("Detect() should not return a result on failure")
			}
			if d.scale != want {
				t.Errorf("scale after failure = %+v, want %+v", d.scale, want)
			}
		})
	}
}
