package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yukikurage/annotation-api/internal/config"
	"github.com/yukikurage/annotation-api/internal/database"
	"github.com/yukikurage/annotation-api/internal/payload"
	"github.com/yukikurage/annotation-api/internal/queue"
	"github.com/yukikurage/annotation-api/internal/repository"
	"github.com/yukikurage/annotation-api/internal/services"
	"github.com/yukikurage/annotation-api/internal/storage"
	"github.com/yukikurage/annotation-api/internal/telemetry"
)

const (
	metricsInterval = time.Minute
	shutdownTimeout = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the export workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := bootstrap()
		if err != nil {
			return err
		}
		defer closer.Close()
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	gin.SetMode(cfg.GinMode)

	if err := database.Migrate(); err != nil {
		return err
	}

	stopMetrics, err := telemetry.Setup(cfg.MetricsEnabled, metricsInterval)
	if err != nil {
		return err
	}
	defer stopMetrics(context.Background())

	files, err := storage.NewDisk(cfg.StorageDir, cfg.ThumbnailSize)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	exportFs := afero.NewBasePathFs(afero.NewOsFs(), cfg.ExportDir)

	payloads, err := payload.NewValidator()
	if err != nil {
		return err
	}

	db := database.GetDB()
	store := repository.NewStore(db)
	aggregator := services.NewAggregator()

	a := &app{
		store:       store,
		auth:        services.NewAuthService(store.Users()),
		tasks:       services.NewTaskService(store, aggregator, files),
		images:      services.NewImageService(store, aggregator, files, cfg.MaxUploadSize),
		annotations: services.NewAnnotationService(store, aggregator, payloads),
		reviews:     services.NewReviewService(store, aggregator),
		quality:     services.NewQualityService(store),
		exports:     services.NewExportService(store, files.Fs(), exportFs),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers := queue.New(a.exports.Process,
		queue.WithWorkers(cfg.ExportWorkers),
		queue.WithQueueSize(cfg.ExportQueueSize),
		queue.WithProcessTimeout(cfg.ExportTimeout),
	)

	var dispatcher services.Dispatcher = workers
	if cfg.ExportNotify && cfg.DBDriver == "postgres" {
		notifier, err := queue.NewNotifier(db, cfg.PostgresDSN())
		if err != nil {
			return err
		}
		defer notifier.Close()
		go notifier.Run(ctx, workers)
		dispatcher = notifier
		log.WithField("channel", queue.Channel).Info("export jobs fan out over postgres notifications")
	}
	a.exports.SetDispatcher(dispatcher)

	go recoverExports(ctx, a.exports, dispatcher, cfg.ExportStaleAfter)

	sessionStore, err := redisStore.NewStore(10, "tcp", cfg.RedisHost+":"+cfg.RedisPort, "", "", []byte(cfg.SessionSecret))
	if err != nil {
		return fmt.Errorf("failed to create redis session store: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, sessionStore, a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown incomplete")
	}
	workers.Shutdown(shutdownCtx)
	return nil
}

// recoverExports re-dispatches unfinished jobs at startup and then on a
// timer, so jobs left behind by a crashed instance are picked up again.
func recoverExports(ctx context.Context, exports *services.ExportService, dispatcher services.Dispatcher, staleAfter time.Duration) {
	sweep := func() {
		ids, err := exports.RecoverStale(staleAfter)
		if err != nil {
			log.WithError(err).Error("export recovery failed")
			return
		}
		for _, id := range ids {
			if err := dispatcher.Dispatch(ctx, id); err != nil {
				log.WithError(err).WithField("job_id", id).Warn("failed to re-dispatch export job")
			}
		}
	}

	interval := staleAfter / 2
	if interval <= 0 {
		interval = time.Minute
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
