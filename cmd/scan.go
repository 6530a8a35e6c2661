package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"parking-fines-service/internal/imaging"
	"parking-fines-service/internal/pipeline"
)

type scanOptions struct {
	FramesDir   string
	AnnotateDir string
	Cooldown    time.Duration
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run intrusion detection over a directory of frames",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("cooldown") {
			cfg.Trigger.Cooldown = scanOpts.Cooldown
		}
		return runScan(cmd.Context(), scanOpts)
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanOpts.FramesDir, "frames", "f", "", "Directory of PNG/JPEG/GIF frames (default: camera.frames_dir)")
	scanCmd.Flags().StringVarP(&scanOpts.AnnotateDir, "annotate-dir", "a", "", "Write annotated copies of every frame to this directory")
	scanCmd.Flags().DurationVar(&scanOpts.Cooldown, "cooldown", 1500*time.Millisecond, "Minimum time between plate extractions")
	rootCmd.AddCommand(scanCmd)
}

func runScan(ctx context.Context, opts scanOptions) error {
	dir := opts.FramesDir
	if dir == "" {
		dir = cfg.Camera.FramesDir
	}
	if dir == "" {
		return errors.New("no frame directory: pass --frames or set camera.frames_dir")
	}

	source, err := pipeline.NewDirSource(dir)
	if err != nil {
		return err
	}
	if source.Len() == 0 {
		return fmt.Errorf("no frames found in %s", dir)
	}

	if opts.AnnotateDir != "" {
		if err := os.MkdirAll(opts.AnnotateDir, 0o755); err != nil {
			return fmt.Errorf("failed to create annotate dir: %w", err)
		}
	}

	store, closeStore, err := openFineStore()
	if err != nil {
		return err
	}
	defer closeStore()

	zones, err := loadZone()
	if err != nil {
		return err
	}

	worker, err := startDetector()
	if err != nil {
		return err
	}
	if worker == nil {
		return errors.New("scan needs a detector: set detector.command")
	}
	defer worker.Close()
	worker.CloseOnDone(ctx)

	bar := progressbar.NewOptions(source.Len(),
		progressbar.OptionSetDescription("scanning frames"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	observe := func(res pipeline.FrameResult) {
		bar.Add(1)
		if res.Skipped || opts.AnnotateDir == "" {
			return
		}
		name := strings.TrimSuffix(res.Name, filepath.Ext(res.Name)) + ".png"
		out := imaging.Annotate(res.Image, zones.Snapshot(), res.Events)
		if err := imaging.Save(out, filepath.Join(opts.AnnotateDir, name)); err != nil {
			log.Warn().Err(err).Str("frame", res.Name).Msg("failed to save annotated frame")
		}
	}

	trigger := newTrigger(store)
	p := pipeline.New(worker, zones, trigger, log.With().Str("component", "pipeline").Logger(),
		pipeline.WithObserver(observe))

	runErr := p.Run(ctx, source)
	bar.Finish()

	stats := p.Stats()
	tstats := trigger.Stats()
	fmt.Fprintf(os.Stderr, "\nframes: %d (skipped %d)  intrusions: %d  fines: %d  dropped: %d  unreadable plates: %d\n",
		stats.Frames, stats.Skipped, stats.Intrusions, tstats.Triggered, tstats.Dropped, tstats.Failed)

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
