package service

import (
	"context"
	"time"

	"turn-coordinator/internal/lock"
	"turn-coordinator/internal/metrics"
)

// withGameLock runs fn under the (ns, gameID) lock and records how long the
// caller waited for it.
func withGameLock(ctx context.Context, locks lock.Coordinator, m *metrics.Metrics, ns lock.Namespace, gameID uint, fn func(ctx context.Context) error) error {
	start := time.Now()
	return locks.WithLock(ctx, ns, gameID, func(ctx context.Context) error {
		m.LockWait(string(ns), time.Since(start))
		return fn(ctx)
	})
}
