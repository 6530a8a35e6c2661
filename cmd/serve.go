package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/spf13/cobra"

	"parking-fines-service/internal/detector"
	"parking-fines-service/internal/extraction"
	httpapi "parking-fines-service/internal/http"
	"parking-fines-service/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and watch the configured frame directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides http.addr)")
	rootCmd.AddCommand(serveCmd)
}

var serveAddr string

func runServe(ctx context.Context) error {
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
	var det detector.Detector
	if worker != nil {
		defer worker.Close()
		// Unblocks a pipeline stuck waiting on the worker during shutdown.
		worker.CloseOnDone(ctx)
		det = worker
	} else {
		log.Warn().Msg("no detector configured, frame processing and still detection are disabled")
	}

	var (
		source  *pipeline.DirSource
		trigger *extraction.Trigger
		opts    []httpapi.HandlerOption
	)
	if det != nil && cfg.Camera.FramesDir != "" {
		source, err = pipeline.NewDirSource(cfg.Camera.FramesDir)
		if err != nil {
			return err
		}
		trigger = newTrigger(store)
		opts = append(opts, httpapi.WithTrigger(trigger))
	}

	handler := httpapi.NewHandler(store, zones, det, cfg, log.With().Str("component", "http").Logger(), opts...)
	router := httpapi.NewRouter(cfg, handler, log)

	addr := cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	var wg sync.WaitGroup
	if trigger != nil {
		p := pipeline.New(det, zones, trigger, log.With().Str("component", "pipeline").Logger())

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("dir", cfg.Camera.FramesDir).Int("frames", source.Len()).Msg("frame pipeline started")
			if err := p.Run(ctx, source); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("frame pipeline stopped")
				return
			}
			stats := trigger.Stats()
			log.Info().
				Uint64("frames", p.Stats().Frames).
				Uint64("triggered", stats.Triggered).
				Uint64("dropped", stats.Dropped).
				Msg("frame pipeline finished")
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	wg.Wait()
	return nil
}
