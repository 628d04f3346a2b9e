package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/robfig/cron/v3"
)

// PeriodicBackfillService runs the backfill on a cron schedule so the backlog
// drains without manual runs
type PeriodicBackfillService struct {
	backfill *BackfillService
	schedule string
	limit    int

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPeriodicBackfillService creates a new periodic backfill service
func NewPeriodicBackfillService(backfill *BackfillService, schedule string, limit int) *PeriodicBackfillService {
	return &PeriodicBackfillService{
		backfill: backfill,
		schedule: schedule,
		limit:    limit,
	}
}

// Start schedules backfill runs. Runs never overlap: a tick that fires while
// the previous run is still going is skipped.
func (p *PeriodicBackfillService) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil // Already running
	}

	// Runs fire long after Start returns and must log through a context logger
	ctx = logging.EnsureLogger(ctx)
	l := cronLogger{ctx: ctx}

	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	if _, err := c.AddFunc(p.schedule, func() { p.run(ctx) }); err != nil {
		return fmt.Errorf("invalid backfill schedule %q: %w", p.schedule, err)
	}

	c.Start()
	p.cron = c
	p.running = true

	logging.Infow(ctx, "Started periodic backfill", "schedule", p.schedule, "limit", p.limit)
	return nil
}

// Stop cancels future runs and waits for a run in progress to finish
func (p *PeriodicBackfillService) Stop() {
	p.mu.Lock()
	c := p.cron
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cron = nil
	p.mu.Unlock()

	<-c.Stop().Done()
}

// IsRunning returns whether periodic backfill is active
func (p *PeriodicBackfillService) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PeriodicBackfillService) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := p.backfill.RunBackfill(runCtx, p.limit); err != nil {
		logging.Warnw(ctx, "Periodic backfill failed", "error", err)
	}
}

// cronLogger sends the scheduler's own messages, such as skipped ticks and
// recovered panics, to the context logger
type cronLogger struct {
	ctx context.Context
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debugw(c.ctx, "Cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Errorw(c.ctx, "Cron: "+msg, append(keysAndValues, "error", err)...)
}
