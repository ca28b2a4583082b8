package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/autoselfie/internal/app"
	"github.com/ayusman/autoselfie/internal/assets"
	"github.com/ayusman/autoselfie/internal/capture"
	"github.com/ayusman/autoselfie/internal/detector"
	"github.com/ayusman/autoselfie/internal/store"
)

const waitFor = 2 * time.Second

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func journal(s *store.Store) app.Recorder {
	return app.RecorderFunc(func(ctx context.Context, ev app.CaptureEvent) error {
		return s.Captures().Create(ctx, &store.Capture{
			AttemptID:  ev.AttemptID,
			Mode:       string(ev.Mode),
			Width:      ev.Width,
			Height:     ev.Height,
			CapturedAt: ev.CapturedAt,
		})
	})
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestE2E_SessionJournal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s := newStore(t)
	ctx := context.Background()

	cam := capture.NewMockCamera(capture.SolidFrames(1, 640, 480), true)
	det := detector.NewMockDetector()
	det.SetVerdicts(detector.VerdictFaceNotFound)

	a := app.New(app.Config{
		IntervalMs:          1,
		AutoCaptureDelayMs:  2,
		ConfirmationDelayMs: 5,
	}, cam, det, app.WithRecorder(journal(s)))
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitUntil(t, "face not found", func() bool { return a.Status() == app.StatusFaceNotFound })

	first := a.AttemptID()

	t.Run("ManualCapture", func(t *testing.T) {
		if err := a.ManualCapture(); err != nil {
			t.Fatalf("ManualCapture() error = %v", err)
		}
		if a.Status() != app.StatusConfirmation {
			t.Fatalf("status = %s, want confirmation", a.Status())
		}
		if cam.IsActive() {
			t.Error("camera should be paused while confirming")
		}

		captures, err := s.Captures().ListByAttempt(ctx, first)
		if err != nil {
			t.Fatalf("ListByAttempt() error = %v", err)
		}
		if len(captures) != 1 || captures[0].Mode != store.ModeManual {
			t.Fatalf("captures = %+v, want one manual capture", captures)
		}
		if captures[0].Width != 640 || captures[0].Height != 480 {
			t.Errorf("size = %dx%d, want 640x480", captures[0].Width, captures[0].Height)
		}
	})

	t.Run("RetakeAutoCapture", func(t *testing.T) {
		if err := a.Reset(); err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		second := a.AttemptID()
		if second == first {
			t.Fatal("Reset() should start a new attempt")
		}

		det.SetVerdicts(detector.VerdictSuccess)
		waitUntil(t, "confirmation", func() bool { return a.Status() == app.StatusConfirmation })

		waitUntil(t, "auto capture journal entry", func() bool {
			attempt, err := s.Captures().GetAttempt(ctx, second)
			return err == nil && attempt.Captures == 1
		})

		recent, err := s.Captures().Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(recent) != 2 {
			t.Fatalf("Recent() returned %d captures, want 2", len(recent))
		}
		if recent[0].Mode != store.ModeAuto || recent[1].Mode != store.ModeManual {
			t.Errorf("modes = %s, %s, want auto, manual", recent[0].Mode, recent[1].Mode)
		}
	})

	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !det.Closed() {
		t.Error("Close() should close the detector")
	}
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

// assetDir lays the stock cascades out the way the asset server does.
func assetDir(t *testing.T, cfg detector.Config) string {
	t.Helper()

	src := findCascadeDir()
	if src == "" {
		t.Skip("OpenCV cascades not found, set OPENCV_CASCADE_PATH")
	}

	root := t.TempDir()
	dst := filepath.Join(root, "opencv")
	if err := os.MkdirAll(dst, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{cfg.FaceModel, cfg.EyeModel} {
		data, err := os.ReadFile(filepath.Join(src, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dst, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

var noopLoader = detector.ModuleLoaderFunc(func(ctx context.Context, v detector.Variant, uri string) error {
	return nil
})

func TestE2E_HaarDetectorWithCachedAssets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s := newStore(t)
	ctx := context.Background()

	cfg := detector.DefaultConfig()
	cfg.ModelDir = t.TempDir()
	root := assetDir(t, cfg)

	resolver := assets.NewCachedResolver(assets.NewDirResolver(root), s.Assets(), nil)
	det := detector.NewHaarDetector(cfg, resolver, nil, detector.WithModuleLoader(noopLoader))

	if err := det.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := det.InitData(ctx); err != nil {
		t.Fatalf("InitData() error = %v", err)
	}
	det.Close()

	cached, err := s.Assets().List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("cached assets = %d, want 2", len(cached))
	}

	t.Run("ServedFromCache", func(t *testing.T) {
		if err := os.RemoveAll(root); err != nil {
			t.Fatal(err)
		}

		cfg := cfg
		cfg.ModelDir = t.TempDir()
		resolver := assets.NewCachedResolver(assets.NewDirResolver(root), s.Assets(), nil)
		det := detector.NewHaarDetector(cfg, resolver, nil, detector.WithModuleLoader(noopLoader))
		defer det.Close()

		if err := det.Init(ctx); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := det.InitData(ctx); err != nil {
			t.Fatalf("InitData() with the source gone error = %v", err)
		}
	})

	t.Run("BlankFrameHasNoFace", func(t *testing.T) {
		cam := capture.NewMockCamera(capture.SolidFrames(1, 640, 480), true)
		det := detector.NewHaarDetector(cfg, resolver, nil, detector.WithModuleLoader(noopLoader))

		a := app.New(app.Config{IntervalMs: 1}, cam, det)
		defer a.Close()

		if err := a.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		waitUntil(t, "face not found", func() bool { return a.Status() == app.StatusFaceNotFound })
	})
}
