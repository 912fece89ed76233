package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/slapcommerce/backoffice/internal/config"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
	"github.com/slapcommerce/backoffice/internal/transport/http/handlers"
	"github.com/slapcommerce/backoffice/internal/transport/http/middleware"
	"github.com/slapcommerce/backoffice/internal/usecase"
)

// openDB opens and pings the configured database.
func openDB(ctx context.Context, cfg config.Config) (*persistence.DB, error) {
	conn, err := persistence.New(ctx, persistence.Config{
		WriteDSN:          cfg.Database.WriteDSN,
		ReadDSN:           cfg.Database.ReadDSN,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return nil, err
	}
	pingCtx := ctx
	if cfg.Database.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()
	}
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func newBatcher(conn *persistence.DB, log *logrus.Logger, cfg config.Config) *persistence.Batcher {
	return persistence.NewBatcher(conn, log, persistence.BatcherConfig{
		FlushInterval: cfg.Batch.FlushInterval,
		SizeThreshold: cfg.Batch.SizeThreshold,
		MaxQueueDepth: cfg.Batch.MaxQueueDepth,
	})
}

// Run starts the HTTP command server: batcher, unit of work, dispatcher
// and the gin surface, with graceful shutdown on ctx cancellation.
func Run(ctx context.Context, cfg config.Config) error {
	start := time.Now()
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("bootstrap: db ready in %s", time.Since(start))

	batcher := newBatcher(conn, log, cfg)
	batcher.Start()
	defer batcher.Stop()

	uow := persistence.NewUnitOfWork(conn, batcher)
	service := usecase.NewService(uow, log)
	dispatcher := service.Dispatcher()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(log), gin.Recovery())
	allowBypassIdemKey := cfg.Env != "prod"
	handler := handlers.NewHandler(
		log,
		dispatcher,
		uow,
		conn,
		persistence.NewScheduleReader(conn),
		persistence.NewIdempotencyReader(conn),
	)
	routerBuilder := handlers.NewRouter(handler)
	routerBuilder.RegisterRoutes(router, middleware.IdempotencyRequired(allowBypassIdemKey))

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("bootstrap: server listening on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	return nil
}

func buildLogger(cfg config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch cfg.Log.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	case "console", "":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return nil, errors.New("log format error: supported values are console or json")
	}
	return log, nil
}
