package main

import (
	"context"
	"strings"
	"time"
)

// recordJobError stores err and reports whether it is the first failure
// since the last success, so callers only log transitions.
func (jm *JobManager) recordJobError(err error) bool {
	if err == nil {
		return false
	}
	jm.lastErrMu.Lock()
	defer jm.lastErrMu.Unlock()
	first := jm.lastErr == nil
	jm.lastErr = err
	jm.lastErrAt = time.Now()
	jm.appendJobFeedError(err.Error())
	return first
}

func (jm *JobManager) appendJobFeedError(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	jm.jobFeedErrHistory = append(jm.jobFeedErrHistory, msg)
	if len(jm.jobFeedErrHistory) > jobFeedErrorHistorySize {
		jm.jobFeedErrHistory = jm.jobFeedErrHistory[len(jm.jobFeedErrHistory)-jobFeedErrorHistorySize:]
	}
}

// recordJobSuccess marks a successful fetch, including one that produced no
// new job because the template was unchanged.
func (jm *JobManager) recordJobSuccess(at time.Time) {
	jm.lastErrMu.Lock()
	hadErr := jm.lastErr != nil
	jm.lastErr = nil
	jm.lastErrAt = time.Time{}
	jm.lastJobSuccess = at
	if hadErr {
		jm.appendJobFeedError("event: job feed recovered (node " + jm.node.EndpointLabel() + ")")
	}
	jm.lastErrMu.Unlock()
	if hadErr {
		logger.Info("job feed recovered", "component", "jobs", "node", jm.node.EndpointLabel())
	}
}

func (jm *JobManager) FeedStatus() JobFeedStatus {
	jm.lastErrMu.RLock()
	lastErr := jm.lastErr
	lastErrAt := jm.lastErrAt
	lastSuccess := jm.lastJobSuccess
	errorHistory := append([]string(nil), jm.jobFeedErrHistory...)
	jm.lastErrMu.RUnlock()

	cur := jm.CurrentJob()
	if lastSuccess.IsZero() && cur != nil {
		lastSuccess = cur.CreatedAt
	}
	return JobFeedStatus{
		Ready:        cur != nil,
		LastSuccess:  lastSuccess,
		LastError:    lastErr,
		LastErrorAt:  lastErrAt,
		ErrorHistory: errorHistory,
	}
}

// Start launches the dispatcher and the poll loop. It returns once the
// first refresh has been attempted.
func (jm *JobManager) Start(ctx context.Context) {
	go jm.notificationWorker(ctx)

	if err := jm.node.OnNewBlockTemplate(jm.signalNewTemplate); err != nil {
		logger.Warn("new block template notifications unavailable; polling only", "component", "jobs", "error", err)
	}

	if err := jm.refreshJobCtx(ctx); err != nil {
		logger.Error("initial job refresh error", "component", "jobs", "error", err)
	}

	go jm.pollLoop(ctx)
}

func (jm *JobManager) signalNewTemplate() {
	select {
	case jm.kick <- struct{}{}:
	default:
	}
}
