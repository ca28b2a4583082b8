package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/ayusman/autoselfie/internal/app"
	"github.com/ayusman/autoselfie/internal/capture"
	"github.com/ayusman/autoselfie/internal/detector"
	"github.com/ayusman/autoselfie/internal/logging"
	"github.com/ayusman/autoselfie/internal/store"
	"github.com/ayusman/autoselfie/internal/tray"
)

var (
	outPath     string
	overlayPath string
	once        bool
	useTray     bool
	deviceID    int
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run a capture session on the camera",
	Long: `Opens the camera and waits for a well-framed face, then captures it automatically.

Press Enter to capture manually, or to retake once a frame is confirmed.
Type q and Enter to quit.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the confirmed frame to this image file")
	captureCmd.Flags().StringVar(&overlayPath, "overlay", "", "Write the last detection overlay to this image file")
	captureCmd.Flags().BoolVar(&once, "once", false, "Exit after the first confirmed frame")
	captureCmd.Flags().BoolVar(&useTray, "tray", false, "Drive the session from the system tray instead of the terminal")
	captureCmd.Flags().IntVarP(&deviceID, "device", "d", -1, "Camera device ID (overrides the config)")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.GetLogger()

	device := cfg.Camera.Device
	if deviceID >= 0 {
		device = deviceID
	}
	cam := capture.NewCamera(device)
	cam.SetResolution(cfg.Camera.Width, cfg.Camera.Height)
	cam.SetFPS(cfg.Camera.FPS)
	cam.SetMaxWidth(cfg.Camera.MaxWidth)

	var opts []detector.HaarOption
	var overlay *detector.MatSink
	switch {
	case overlayPath != "":
		w, h := cfg.Camera.Width, cfg.Camera.Height
		if cfg.Camera.MaxWidth > 0 && w > cfg.Camera.MaxWidth {
			h = h * cfg.Camera.MaxWidth / w
			w = cfg.Camera.MaxWidth
		}
		overlay = detector.NewMatSink(w, h)
		defer overlay.Close()
		opts = append(opts, detector.WithDebugSink(overlay))
	case cfg.Detector.Debug:
		opts = append(opts, detector.WithDebugSink(detector.LogSink{Logger: logger}))
	}
	det := detector.NewHaarDetector(cfg.DetectorConfig(), newResolver(logger), logger, opts...)

	appOpts := []app.Option{app.WithLogger(logger)}
	if st != nil {
		appOpts = append(appOpts, app.WithRecorder(journal(st)))
	}
	a := app.New(cfg.AppConfig(), cam, det, appOpts...)
	defer a.Close()

	statuses := make(chan app.Status, 16)
	a.OnStatusChange(func(s app.Status) {
		select {
		case statuses <- s:
		default:
		}
	})
	a.OnManualCaptureVisible(func() {
		fmt.Println("Having trouble? Press Enter to capture manually.")
	})

	if useTray {
		return runTray(ctx, a, det, statuses, overlay)
	}

	fmt.Println("Starting camera...")
	if err := a.Start(ctx); err != nil {
		return err
	}
	logger.Info("detector ready", "variant", det.Variant())
	fmt.Println("Look at the camera. Press Enter to capture, q to quit.")

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-ctx.Done():
			return finish(a, overlay)

		case s := <-statuses:
			fmt.Println(describe(s))
			if s == app.StatusConfirmation {
				if err := saveFrame(a.CapturedFrame()); err != nil {
					return err
				}
				if once {
					return finish(a, overlay)
				}
				fmt.Println("Press Enter to retake, q to quit.")
			}

		case line, ok := <-lines:
			if !ok || strings.EqualFold(strings.TrimSpace(line), "q") {
				return finish(a, overlay)
			}
			if err := onEnter(a); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}
}

// onEnter retakes when a frame is held and captures manually otherwise.
func onEnter(a *app.App) error {
	if a.Status().Captured() {
		return a.Reset()
	}
	err := a.ManualCapture()
	if errors.Is(err, capture.ErrFrameUnavailable) {
		return fmt.Errorf("no frame available yet, try again")
	}
	return err
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func describe(s app.Status) string {
	switch s {
	case app.StatusIdle:
		return "Getting ready..."
	case app.StatusPending:
		return "Center your face and move to a comfortable distance."
	case app.StatusFaceNotFound:
		return "No face found. Make sure your face is well lit."
	case app.StatusReady:
		return "Hold still..."
	case app.StatusDone:
		return "Captured!"
	case app.StatusConfirmation:
		return "Photo taken."
	default:
		return s.String()
	}
}

func finish(a *app.App, overlay *detector.MatSink) error {
	if overlay != nil {
		if !overlay.Write(overlayPath) {
			logging.GetLogger().Warn("failed to write overlay", "path", overlayPath)
		}
	}
	return a.Close()
}

// saveFrame writes f to --out when set.
func saveFrame(f *capture.Frame) error {
	if outPath == "" || f == nil {
		return nil
	}

	rgba, err := gocv.ImageToMatRGBA(f.Image)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	if err := gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR); err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}

	if !gocv.IMWrite(outPath, bgr) {
		return fmt.Errorf("failed to write %s", outPath)
	}
	fmt.Printf("Saved %s (%dx%d)\n", outPath, f.Size().X, f.Size().Y)
	return nil
}

// journal records capture events in the store.
func journal(s *store.Store) app.Recorder {
	captures := s.Captures()
	return app.RecorderFunc(func(ctx context.Context, ev app.CaptureEvent) error {
		return captures.Create(ctx, &store.Capture{
			AttemptID:  ev.AttemptID,
			Mode:       string(ev.Mode),
			Width:      ev.Width,
			Height:     ev.Height,
			CapturedAt: ev.CapturedAt,
		})
	})
}

// runTray drives the session from the system tray. It blocks until Quit.
func runTray(ctx context.Context, a *app.App, det *detector.HaarDetector, statuses <-chan app.Status, overlay *detector.MatSink) error {
	logger := logging.GetLogger()
	t := tray.New()

	t.OnCapture(func() {
		if err := a.ManualCapture(); err != nil {
			logger.Warn("manual capture failed", "error", err)
		}
	})
	t.OnRetake(func() {
		if err := a.Reset(); err != nil {
			logger.Warn("retake failed", "error", err)
		}
	})
	a.OnManualCaptureVisible(t.ShowCapture)

	startErr := make(chan error, 1)
	t.Run(func() {
		if err := a.Start(ctx); err != nil {
			startErr <- err
			t.Quit()
			return
		}
		logger.Info("detector ready", "variant", det.Variant())
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case s := <-statuses:
				t.SetStatus(describe(s), s.Captured())
				if s == app.StatusConfirmation {
					if err := saveFrame(a.CapturedFrame()); err != nil {
						logger.Error("failed to save frame", "error", err)
					}
				}
			}
		}
	})

	select {
	case err := <-startErr:
		return err
	default:
		return finish(a, overlay)
	}
}
