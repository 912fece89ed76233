package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slapcommerce/backoffice/internal/domain/repository"
)

// Config tunes the schedule poller. Retry limits live on the task
// sources, which own the retry bookkeeping.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	HandlerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	return c
}

// Poller drives time-triggered commands. One timer, one goroutine: each
// tick fetches due tasks from every source and processes them
// sequentially, so two schedules never race each other inside one
// process. It is an owned background task with an explicit Start/Stop
// lifecycle.
type Poller struct {
	log      *logrus.Logger
	cfg      Config
	sources  []TaskSource
	handlers map[string]Handler
	now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewPoller(log *logrus.Logger, cfg Config, sources ...TaskSource) *Poller {
	return &Poller{
		log:      log,
		cfg:      cfg.withDefaults(),
		sources:  sources,
		handlers: make(map[string]Handler),
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Register binds a command type to its handler. Tasks with an
// unregistered command type fail terminally on first fetch.
func (p *Poller) Register(commandType string, h Handler) {
	p.handlers[commandType] = h
}

func (p *Poller) Start() {
	go p.run()
}

// Stop waits for an in-flight tick to finish before returning.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) run() {
	defer close(p.doneCh)
	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
			p.Tick(context.Background())
			timer.Reset(p.cfg.PollInterval)
		}
	}
}

// Tick runs one poll cycle. Exposed so callers with their own clock
// (tests, manual drains) can drive the poller without waiting out the
// interval.
func (p *Poller) Tick(ctx context.Context) {
	now := p.now()
	for _, src := range p.sources {
		tasks, err := src.Due(ctx, now, p.cfg.BatchSize)
		if err != nil {
			p.log.WithError(err).WithField("source", src.Name()).Warn("fetching due tasks failed")
			continue
		}
		for _, task := range tasks {
			p.process(ctx, src, task)
		}
	}
}

func (p *Poller) process(ctx context.Context, src TaskSource, task Task) {
	logger := p.log.WithFields(logrus.Fields{
		"task_id":        task.ID,
		"command_type":   task.CommandType,
		"target_id":      task.TargetID,
		"source":         src.Name(),
		"correlation_id": task.CorrelationID,
	})

	handler, ok := p.handlers[task.CommandType]
	if !ok {
		logger.Error("no handler registered for scheduled command")
		cause := fmt.Errorf("%w: %s", repository.ErrNoHandler, task.CommandType)
		if err := src.FailTerminal(ctx, task, cause); err != nil {
			logger.WithError(err).Error("recording unroutable task failed")
		}
		return
	}

	current, err := src.Verify(ctx, task)
	if err != nil {
		logger.WithError(err).Warn("task verification failed")
		return
	}
	if !current {
		logger.Info("task changed since fetch, skipping")
		return
	}

	hctx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	err = handler.Execute(hctx, task)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("scheduled command failed")
		if ferr := src.Fail(ctx, task, err); ferr != nil {
			logger.WithError(ferr).Error("recording task failure failed")
		}
		return
	}

	if err := src.Complete(ctx, task); err != nil {
		logger.WithError(err).Error("recording task completion failed")
		return
	}
	logger.Info("scheduled command executed")
}
