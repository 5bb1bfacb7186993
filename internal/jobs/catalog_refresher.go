package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
)

// CategoryRefresher is the part of catalog.Service the job drives.
type CategoryRefresher interface {
	RefreshCategories(ctx context.Context) (*nextgen.MasterCodes, error)
}

// CatalogRefresher periodically re-fetches the master code categories so the
// gateway cache stays warm.
type CatalogRefresher struct {
	logger   *zap.Logger
	catalog  CategoryRefresher
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCatalogRefresher constructs a background job that runs every interval.
func NewCatalogRefresher(logger *zap.Logger, catalog CategoryRefresher, interval time.Duration) *CatalogRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogRefresher{
		logger:   logger,
		catalog:  catalog,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start warms the cache once, then refreshes on every tick until Stop is
// called or ctx is canceled. It blocks.
func (r *CatalogRefresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("catalog_refresher.disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("catalog_refresher.started", zap.Duration("interval", r.interval))
	r.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("catalog_refresher.stopped", zap.String("reason", "manual stop"))
			return
		case <-ctx.Done():
			r.logger.Info("catalog_refresher.stopped", zap.String("reason", "context canceled"))
			return
		}
	}
}

// Stop halts the refresher. Safe to call more than once.
func (r *CatalogRefresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// runOnce executes one refresh cycle. Failures are logged; the next tick retries.
func (r *CatalogRefresher) runOnce(ctx context.Context) {
	start := time.Now()
	codes, err := r.catalog.RefreshCategories(ctx)
	if err != nil {
		r.logger.Error("catalog_refresher.refresh_failed",
			zap.String("kind", nextgen.KindOf(err).String()),
			zap.Error(err))
		return
	}
	r.logger.Info("catalog_refresher.success",
		zap.Int("categories", codes.TotalCount),
		zap.Duration("duration", time.Since(start)))
}
