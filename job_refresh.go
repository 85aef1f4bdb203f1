package main

import (
	"context"
	"time"

	"github.com/kaspanet/kaspad/app/appmessage"
)

func (jm *JobManager) refreshJobCtx(ctx context.Context) error {
	return jm.refreshJobCtxMinInterval(ctx, jobRefreshMinInterval)
}

func (jm *JobManager) refreshJobCtxMinInterval(ctx context.Context, minInterval time.Duration) error {
	jm.refreshMu.Lock()
	defer jm.refreshMu.Unlock()
	if minInterval > 0 && time.Since(jm.lastRefreshAttempt) < minInterval {
		return nil
	}
	jm.lastRefreshAttempt = time.Now()

	tpl, err := jm.node.GetBlockTemplate(ctx)
	if err != nil {
		if jm.recordJobError(err) {
			logger.Warn("block template fetch failed; serving current job", "component", "jobs", "node", jm.node.EndpointLabel(), "error", err)
		}
		return err
	}
	return jm.refreshFromTemplate(tpl)
}

// refreshFromTemplate builds and broadcasts a job unless the template hashes
// to the same pre-PoW header as the current job.
func (jm *JobManager) refreshFromTemplate(tpl *appmessage.RPCBlock) error {
	jm.mu.RLock()
	cur := jm.curJob
	id := jm.nextID + 1
	jm.mu.RUnlock()

	job, err := buildJob(id, tpl)
	if err != nil {
		jm.recordJobError(err)
		logger.Error("build job", "component", "jobs", "error", err)
		return err
	}
	if cur != nil && cur.PrePowHash.Equal(job.PrePowHash) {
		jm.recordJobSuccess(time.Now())
		return nil
	}

	jm.mu.Lock()
	jm.nextID = id
	jm.curJob = job
	jm.mu.Unlock()

	jm.recordJobSuccess(job.CreatedAt)
	if debugLogging {
		logger.Debug("new job", "component", "jobs", "job_id", job.ID, "daa_score", job.DAAScore, "bits", job.Bits, "txs", len(job.Block.Transactions))
	}
	jm.broadcastJob(job)
	return nil
}
