package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"stablepay.backend/pkg/logger"
)

// FlowExpirer abandons flows whose confirmation window has passed
type FlowExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// FlowExpiryJob periodically abandons stale DECIDED/CONFIRM flows
type FlowExpiryJob struct {
	expirer  FlowExpirer
	interval time.Duration
	stop     chan struct{}
}

func NewFlowExpiryJob(expirer FlowExpirer, interval time.Duration) *FlowExpiryJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FlowExpiryJob{
		expirer:  expirer,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (j *FlowExpiryJob) Start(ctx context.Context) {
	logger.Info(ctx, "Starting flow expiry job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Flow expiry job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Flow expiry job stopped")
			return
		case <-ticker.C:
			j.processStaleFlows(ctx)
		}
	}
}

func (j *FlowExpiryJob) Stop() {
	close(j.stop)
}

func (j *FlowExpiryJob) processStaleFlows(ctx context.Context) {
	expired, err := j.expirer.ExpireStale(ctx)
	if err != nil {
		logger.Error(ctx, "Error expiring stale flows", zap.Error(err))
		return
	}
	if expired == 0 {
		return
	}
	logger.Info(ctx, "Abandoned stale flows", zap.Int("count", expired))
}
