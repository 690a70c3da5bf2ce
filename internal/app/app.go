// Package app wires the configured stores, caches and the forecasting
// process into a ForecastService.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/cache"
	"github.com/andresuchdata/stockcast/internal/config"
	"github.com/andresuchdata/stockcast/internal/drive"
	"github.com/andresuchdata/stockcast/internal/engine"
	"github.com/andresuchdata/stockcast/internal/forecast"
	"github.com/andresuchdata/stockcast/internal/repository"
	"github.com/andresuchdata/stockcast/internal/repository/memory"
	"github.com/andresuchdata/stockcast/internal/repository/postgres"
	"github.com/andresuchdata/stockcast/internal/service"
	"github.com/andresuchdata/stockcast/internal/storage"
	"github.com/andresuchdata/stockcast/pkg/logger"
)

type App struct {
	Service *service.ForecastService
	Engine  *engine.Engine

	closers []func() error
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
}

// Build creates every dependency named by cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	eng := engine.New(engine.Options{
		DefaultLeadTimeDays: cfg.Engine.DefaultLeadTimeDays,
		DefaultServiceLevel: cfg.Engine.DefaultServiceLevel,
		MinUnitsPerBox:      cfg.Engine.MinUnitsPerBox,
		Workers:             cfg.Engine.Workers,
	}, logger.Component("engine"))
	a.Engine = eng

	repo, audit, err := a.buildRepositories(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Cache)
		if err != nil {
			// the service works without a cache
			log.Warn().Err(err).Msg("redis unavailable, caching disabled")
			redisClient = nil
		} else {
			a.closers = append(a.closers, redisClient.Close)
		}
	}

	lastAlerts := cache.NewMemoryLastAlertStore()
	if redisClient != nil {
		lastAlerts = cache.NewRedisLastAlertStore(redisClient, ttlSeconds(cfg.Cache.LastAlertTTLSeconds))
	}

	forecaster, err := buildForecaster(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service = service.NewForecastService(service.Deps{
		Repo:        repo,
		Audit:       audit,
		Engine:      eng,
		Cache:       cache.NewAnalysisCache(redisClient, cfg.Cache),
		LastAlerts:  lastAlerts,
		Forecaster:  forecaster,
		SaveRetries: cfg.Engine.SaveRetries,
	})
	return a, nil
}

func (a *App) buildRepositories(ctx context.Context, cfg *config.Config) (repository.AnalysisRepository, repository.AuditRepository, error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Info().Msg("using in-memory analysis store")
		return memory.NewAnalysisRepository(), memory.NewAuditRepository(), nil
	case "postgres", "":
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	blobs, err := BuildObjectStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewAnalysisRepository(db, blobs), postgres.NewAuditRepository(db), nil
}

// BuildObjectStorage returns nil for the inline driver, where documents
// stay in the database row.
func BuildObjectStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Driver {
	case "", "inline":
		return nil, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "minio":
		client, err := storage.NewMinioClient(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func buildForecaster(ctx context.Context, cfg *config.Config) (service.Forecaster, error) {
	fc := cfg.Forecast
	if fc.Command == "" {
		return nil, nil
	}

	var input forecast.InputSource
	if fc.DriveFolder != "" {
		if fc.DriveCredentialsJSON == "" {
			return nil, fmt.Errorf("FORECAST_DRIVE_FOLDER is set but GOOGLE_DRIVE_CREDENTIALS_JSON is empty")
		}
		svc, err := drive.NewService(ctx, fc.DriveCredentialsJSON)
		if err != nil {
			return nil, err
		}
		input = drive.NewInputFetcher(svc, fc.DriveFolder, fc.DriveFileName)
	}

	return forecast.NewRunner(forecast.Config{
		Command:    fc.Command,
		Args:       fc.Args,
		OutputPath: fc.OutputPath,
		Timeout:    fc.Timeout(),
		InputFlag:  fc.InputFlag,
		InputPath:  filepath.Join(cfg.App.DataDir, "forecast-input.xlsx"),
	}, input), nil
}

func ttlSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
