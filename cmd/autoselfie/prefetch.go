package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/autoselfie/internal/assets"
	"github.com/ayusman/autoselfie/internal/logging"
	"github.com/ayusman/autoselfie/internal/store"
)

var (
	materialize bool
	evict       bool
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch",
	Short: "Fetch the classifier files into the local cache",
	RunE:  runPrefetch,
}

func init() {
	prefetchCmd.Flags().BoolVar(&evict, "evict", false, "Drop the cached copies first so they are fetched again")
	prefetchCmd.Flags().BoolVar(&materialize, "materialize", false, "Also write the files into the model directory")
	rootCmd.AddCommand(prefetchCmd)
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.GetLogger()

	r := newResolver(logger)
	if r == nil {
		return fmt.Errorf("no asset source configured, set assets.base_url or assets.dir")
	}

	names := []string{
		path.Join("opencv", cfg.Detector.FaceModel),
		path.Join("opencv", cfg.Detector.EyeModel),
	}
	if evict {
		if err := requireStore(); err != nil {
			return err
		}
		for _, name := range names {
			uri := r.ResolvePath(name)
			if err := st.Assets().Delete(ctx, uri); err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to evict %s: %w", uri, err)
			}
		}
	}

	sizes, err := assets.Prefetch(ctx, r, names...)
	if err != nil {
		return err
	}

	if materialize {
		if err := os.MkdirAll(cfg.Detector.ModelDir, 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
		for _, name := range names {
			data, err := r.FetchBytes(ctx, r.ResolvePath(name))
			if err != nil {
				return err
			}
			dst := filepath.Join(cfg.Detector.ModelDir, path.Base(name))
			if err := os.WriteFile(dst, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", dst, err)
			}
			logger.Info("classifier written", "path", dst)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ASSET\tURI\tBYTES")
	fmt.Fprintln(w, "-----\t---\t-----")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\t%d\n", name, r.ResolvePath(name), sizes[name])
	}
	w.Flush()

	if st == nil {
		fmt.Println("Note: running without the database, nothing was cached.")
		return nil
	}

	cached, err := st.Assets().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cached assets: %w", err)
	}
	fmt.Printf("\n%d assets cached in %s\n", len(cached), st.Path())
	return nil
}
