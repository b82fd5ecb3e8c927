// Package bootstrap provides dependency initialization for the clipforge API.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/maauso/clipforge-api/internal/analyzer"
	"github.com/maauso/clipforge-api/internal/config"
	"github.com/maauso/clipforge-api/internal/media"
	"github.com/maauso/clipforge-api/internal/pipeline"
	"github.com/maauso/clipforge-api/internal/scheduler"
	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/store"
	"github.com/maauso/clipforge-api/internal/synth"
)

// Dependencies holds all initialized dependencies shared by the HTTP
// server and the scheduler's tick loop.
type Dependencies struct {
	Store     store.Store
	Analyzer  *analyzer.Analyzer
	Runner    media.Runner
	Storage   storage.Storage
	Scheduler *scheduler.Scheduler
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	storageClient, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	st := store.NewInMemoryStore(cfg.MaxConcurrentJobs)

	ffmpegPath, ffprobePath := "", ""
	if ffPath, ffErr := exec.LookPath("ffmpeg"); ffErr != nil {
		logger.Warn("ffmpeg not found in PATH; media operations may fail")
	} else {
		ffmpegPath = ffPath
		logger.Info("media runner initialized", slog.String("ffmpeg_path", ffPath))
	}
	if ffprobePath0, ffErr := exec.LookPath("ffprobe"); ffErr == nil {
		ffprobePath = ffprobePath0
	}
	runner := media.NewFFmpegRunner(ffmpegPath, ffprobePath)
	mediaAnalyzer := analyzer.New(ffmpegPath)

	credential := synth.CredentialSource(synth.StaticToken(cfg.SynthAPIKey))
	synthClient := synth.NewDownloadURLClient(credential, cfg.SynthEndpoint, cfg.SynthModelID, nil)
	logger.Info("synthesis client initialized",
		slog.String("endpoint", cfg.SynthEndpoint),
		slog.String("model_id", cfg.SynthModelID),
	)

	pipe := pipeline.New(st, synthClient, runner, storageClient, logger, pipeline.Config{
		WorkspaceBaseDir: cfg.TempDir,
	})

	sched := scheduler.New(st, pipe, storageClient, logger,
		scheduler.WithTickInterval(cfg.TickInterval),
	)

	return &Dependencies{
		Store:     st,
		Analyzer:  mediaAnalyzer,
		Runner:    runner,
		Storage:   storageClient,
		Scheduler: sched,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
