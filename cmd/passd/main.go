package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/api"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/config"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/notify"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/passes"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/stream"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
)

func main() {
	boot := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("passd exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	blobs, closeBlobs, err := openBlobStore(ctx, cfg.TLE, logger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	fetcher := tle.NewFetcherWithTimeout(cfg.TLE.SourceURL, cfg.TLE.FetchTimeout, logger, cfg.TLE.ExtraURLs...)
	catalogCache := tle.NewCatalogCache(fetcher, blobs, cfg.TLE.CacheTTL, logger)
	store := tle.NewStore()

	clock := clockwork.NewRealClock()
	opts := []tle.RefresherOption{tle.WithClock(clock)}
	if cfg.NATS.URL != "" {
		pub, err := notify.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, tle.WithNotifier(pub))
	}
	refresher := tle.NewRefresher(catalogCache, store, cfg.TLE.SourceURL, logger, opts...)
	scheduler := tle.NewScheduler(refresher, cfg.TLE.RefreshPeriod, cfg.TLE.RefreshMaxRetries, logger)

	metrics.RegisterCatalogAge(func() time.Duration { return store.Age(clock.Now()) })

	prop := propagation.NewPropagator(cfg.Propagation.MaxEpochAge, logger)
	svc := tracking.NewService(store, prop, cfg.Groundtrack.MaxPoints, logger)
	engine := passes.NewEngine(store, prop, cfg.Pass, logger)

	streamCfg := cfg.Stream
	streamCfg.TrustProxy = cfg.HTTP.TrustProxy
	streamer := stream.NewHandler(svc, streamCfg, logger)

	srv := api.NewServer(api.Config{
		Addr:               cfg.HTTP.Addr,
		CORSOrigins:        cfg.HTTP.CORSOrigins,
		TrustProxy:         cfg.HTTP.TrustProxy,
		Auth:               cfg.Auth,
		GroundtrackStep:    cfg.Groundtrack.Step,
		GroundtrackMinStep: cfg.Groundtrack.MinStep,
		GroundtrackMaxStep: cfg.Groundtrack.MaxStep,
		MaxPassWindow:      cfg.HTTP.MaxPassWindow,
		MaxPassIDs:         cfg.HTTP.MaxPassIDs,
	}, api.Deps{
		Tracker:   svc,
		Passes:    engine,
		Refresher: refresher,
		Streamer:  streamer,
		Catalogs:  store,
		Clock:     clock,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting passd", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.HTTPServer().Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openBlobStore returns the durable store for catalog text and its cleanup.
func openBlobStore(ctx context.Context, cfg config.TLEConfig, logger *slog.Logger) (tle.BlobStore, func(), error) {
	if cfg.CacheBackend == config.BackendPostgres {
		pg, err := tle.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("catalog cache backend", "backend", config.BackendPostgres)
		return pg, pg.Close, nil
	}
	logger.Info("catalog cache backend", "backend", config.BackendFile, "dir", cfg.CacheDir)
	return tle.NewFileStore(cfg.CacheDir, cfg.MaxFiles), func() {}, nil
}
