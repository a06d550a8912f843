package jobs

import (
	"context"
	"time"

	"crosspay.backend/pkg/logger"
	"go.uber.org/zap"
)

// RemoteSyncer reconciles local payment history against the indexer
type RemoteSyncer interface {
	FetchRemoteDeposits(ctx context.Context) error
}

// HistorySyncJob periodically merges indexer deposits into the payment history
type HistorySyncJob struct {
	syncer   RemoteSyncer
	interval time.Duration
	stop     chan struct{}
}

func NewHistorySyncJob(syncer RemoteSyncer, interval time.Duration) *HistorySyncJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &HistorySyncJob{
		syncer:   syncer,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (j *HistorySyncJob) Start(ctx context.Context) {
	logger.Info(ctx, "Starting payment history sync job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Payment history sync job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Payment history sync job stopped")
			return
		case <-ticker.C:
			j.syncOnce(ctx)
		}
	}
}

func (j *HistorySyncJob) Stop() {
	close(j.stop)
}

func (j *HistorySyncJob) syncOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, j.interval)
	defer cancel()

	if err := j.syncer.FetchRemoteDeposits(runCtx); err != nil {
		logger.Warn(ctx, "Payment history sync failed", zap.Error(err))
		return
	}
	logger.Debug(ctx, "Payment history synced")
}
