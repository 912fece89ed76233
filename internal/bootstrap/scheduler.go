package bootstrap

import (
	"context"
	"time"

	"github.com/slapcommerce/backoffice/internal/config"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
	"github.com/slapcommerce/backoffice/internal/scheduler"
	"github.com/slapcommerce/backoffice/internal/usecase"
)

// RunScheduler starts the due-schedule poller against both task
// sources and blocks until ctx is cancelled.
func RunScheduler(ctx context.Context, cfg config.Config) error {
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

	poller := scheduler.NewPoller(log, scheduler.Config{
		PollInterval:   cfg.Scheduler.PollInterval,
		BatchSize:      cfg.Scheduler.BatchSize,
		HandlerTimeout: cfg.Scheduler.HandlerTimeout,
	},
		scheduler.NewScheduleSource(uow, log, cfg.Scheduler.MaxRetries),
		scheduler.NewPendingScheduleSource(uow, log, cfg.Scheduler.MaxRetries),
	)
	usecase.BindScheduler(poller, dispatcher)

	poller.Start()
	log.Infof("scheduler: polling every %s", cfg.Scheduler.PollInterval)

	<-ctx.Done()
	poller.Stop()
	return nil
}
