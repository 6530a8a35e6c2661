package cmd

import (
	"fmt"

	"parking-fines-service/internal/config"
	"parking-fines-service/internal/db"
	"parking-fines-service/internal/detector"
	"parking-fines-service/internal/extraction"
	"parking-fines-service/internal/ocr"
	"parking-fines-service/internal/repository"
	"parking-fines-service/internal/service"
	"parking-fines-service/internal/zone"
)

// openFineStore opens the configured blob backend. The returned func closes
// it.
func openFineStore() (*service.FineStore, func(), error) {
	blobs, closeFn, err := openBlobStore()
	if err != nil {
		return nil, nil, err
	}
	store := service.NewFineStore(blobs, log.With().Str("component", "fine_store").Logger(),
		service.WithStorageKey(cfg.Storage.Key))
	return store, closeFn, nil
}

func openBlobStore() (repository.BlobStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory storage, fines are lost on exit")
		return repository.NewMemoryBlobStore(), func() {}, nil

	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.Storage.DSN).Msg("sqlite storage opened")
		return repository.NewSQLiteBlobStore(sqlDB), func() { sqlDB.Close() }, nil

	case config.DriverPostgres:
		gormDB, err := db.Connect(cfg.Storage.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		return repository.NewGormBlobStore(gormDB), func() { sqlDB.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func loadZone() (*zone.Holder, error) {
	if cfg.Zone.File == "" {
		log.Warn().Msg("no zone file configured, intrusions are ignored until a zone is set")
		return zone.NewHolder(nil), nil
	}
	z, err := zone.LoadFile(cfg.Zone.File)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", cfg.Zone.File).Int("points", len(z)).Msg("zone loaded")
	return zone.NewHolder(z), nil
}

// startDetector launches the configured detector worker. It returns a nil
// detector when none is configured.
func startDetector() (*detector.WorkerDetector, error) {
	if cfg.Detector.Command == "" {
		return nil, nil
	}
	return detector.StartWorker(cfg.Detector.Command, cfg.Detector.Args, cfg.Detector.MinScore,
		log.With().Str("component", "detector").Logger())
}

func newTrigger(store *service.FineStore) *extraction.Trigger {
	engine := ocr.NewTesseract(ocr.Config{
		TessdataPrefix: cfg.OCR.TessdataPrefix,
		PageSegMode:    cfg.OCR.PageSegMode,
	})
	log.Info().Str("engine", engine.Version()).Msg("text engine ready")

	return extraction.NewTrigger(engine, store, extraction.Config{
		Cooldown:        cfg.Trigger.Cooldown,
		Language:        cfg.OCR.Language,
		Preprocess:      cfg.OCR.Preprocess,
		EvidenceQuality: cfg.Trigger.EvidenceQuality,
	}, log.With().Str("component", "trigger").Logger())
}
