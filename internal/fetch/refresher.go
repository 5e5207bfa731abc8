package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/marketplace/internal/app/metrics"
	"github.com/R3E-Network/marketplace/internal/app/system"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

var _ system.Service = (*CatalogRefresher)(nil)

// CatalogRefresher re-fetches the catalog on a cron schedule so long-lived
// views pick up new listings without a restart.
type CatalogRefresher struct {
	catalog  *CatalogFetcher
	schedule string
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewCatalogRefresher creates a refresher for schedule, a standard five-field
// cron spec or a descriptor such as "@every 1m".
func NewCatalogRefresher(catalog *CatalogFetcher, schedule string, log *logger.Logger) (*CatalogRefresher, error) {
	if log == nil {
		log = logger.NewDefault("catalog-refresher")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse catalog schedule %q: %w", schedule, err)
	}
	return &CatalogRefresher{
		catalog:  catalog,
		schedule: schedule,
		timeout:  time.Minute,
		log:      log,
	}, nil
}

func (r *CatalogRefresher) Name() string { return "catalog-refresher" }

func (r *CatalogRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule catalog refresh: %w", err)
	}
	c.Start()

	r.cron = c
	r.cancel = cancel
	r.running = true
	r.log.WithField("schedule", r.schedule).Info("catalog refresher started")
	return nil
}

func (r *CatalogRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c, cancel := r.cron, r.cancel
	r.running = false
	r.cron = nil
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("catalog refresher stopped")
	return nil
}

// tick refreshes the catalog and waits for the outcome so it can be counted.
func (r *CatalogRefresher) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	gen := r.catalog.Refresh()
	if gen == 0 {
		gen = r.catalog.Load()
	}
	st, err := r.catalog.Wait(ctx, gen)
	if err != nil {
		r.log.WithError(err).Warn("catalog refresh did not settle")
		metrics.RecordCatalogRefresh(false)
		return
	}
	metrics.RecordCatalogRefresh(st.Status == Loaded)
	if st.Status == Failed {
		r.log.WithField("error", st.Err.Message).Warn("catalog refresh failed")
	}
}
