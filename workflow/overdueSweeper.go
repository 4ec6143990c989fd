package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/dispatchbooks/agents_backend/config"
	"github.com/sirupsen/logrus"
)

const overdueSweepLockKey = "lock:overdue-sweep"

// StartOverdueSweeper runs the overdue scan on a fixed tick until ctx is
// cancelled. Interval via PAYOUT_SWEEP_INTERVAL_SECONDS (default 300).
func StartOverdueSweeper(ctx context.Context, logger *logrus.Logger) {
	interval := time.Duration(config.IntFromEnv("PAYOUT_SWEEP_INTERVAL_SECONDS", 300)) * time.Second
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := RunOverdueSweep(ctx, logger, time.Now()); err != nil {
					config.LogError(logger, "overdueSweeper.go", "StartOverdueSweeper", "RunOverdueSweep", nil, err)
				}
			}
		}
	}()
}

// RunOverdueSweep surfaces unpaid payouts past the overdue window for
// escalation. A redis lock keeps one instance sweeping at a time; if
// redis is unavailable the sweep proceeds without the guard (the sweep
// only logs, so a duplicate run is harmless noise).
func RunOverdueSweep(ctx context.Context, logger *logrus.Logger, now time.Time) (int, error) {
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, overdueSweepLockKey, 60*time.Second, nil)
		if err == redislock.ErrNotObtained {
			// another instance is sweeping
			return 0, nil
		} else if err != nil {
			logger.WithFields(logrus.Fields{
				"module": "overdueSweeper.go",
			}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		} else {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					logger.WithFields(logrus.Fields{
						"module": "overdueSweeper.go",
					}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		}
	}

	payouts, err := ListOverduePayouts(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, p := range payouts {
		logger.WithFields(logrus.Fields{
			"module":            "overdueSweeper.go",
			"payout_id":         p.ID,
			"order_id":          p.OrderId,
			"delivery_agent_id": p.DeliveryAgentId,
			"status":            p.Status,
			"score":             p.ComplianceScore(),
			"age_hours":         int(now.Sub(p.CreatedAt).Hours()),
		}).Warn("payout overdue for escalation")
	}

	return len(payouts), nil
}
