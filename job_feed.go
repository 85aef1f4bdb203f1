package main

import (
	"context"
	"time"
)

// pollLoop refreshes the template every blockWait and whenever kaspad
// announces a new one. Failures keep the same cadence.
func (jm *JobManager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(jm.blockWait)
	defer ticker.Stop()
	for {
		minInterval := jobRefreshMinInterval
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-jm.kick:
			minInterval = 0
		}
		if err := jm.refreshJobCtxMinInterval(ctx, minInterval); err != nil && ctx.Err() != nil {
			return
		}
	}
}
