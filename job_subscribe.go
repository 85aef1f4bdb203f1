package main

import "context"

func (jm *JobManager) CurrentJob() *Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.curJob
}

func (jm *JobManager) Ready() bool {
	return jm.CurrentJob() != nil
}

func (jm *JobManager) Subscribe() chan *Job {
	ch := make(chan *Job, jobSubscriberBuffer)
	jm.subsMu.Lock()
	jm.subs[ch] = struct{}{}
	jm.subsMu.Unlock()
	return ch
}

func (jm *JobManager) Unsubscribe(ch chan *Job) {
	jm.subsMu.Lock()
	if _, ok := jm.subs[ch]; ok {
		delete(jm.subs, ch)
		close(ch)
	}
	jm.subsMu.Unlock()
}

func (jm *JobManager) broadcastJob(job *Job) {
	select {
	case jm.notifyQueue <- job:
	default:
		logger.Warn("notification queue full, falling back to sync broadcast", "component", "jobs")
		jm.broadcastJobSync(job)
	}
}

// sendJobNonBlocking attempts to deliver the latest job to a subscriber channel
// without blocking. If the channel is full, it drops one pending job and retries
// so the subscriber converges to the newest template.
func sendJobNonBlocking(ch chan *Job, job *Job) (dropped bool) {
	select {
	case ch <- job:
		return false
	default:
	}

	select {
	case <-ch:
		dropped = true
	default:
	}
	select {
	case ch <- job:
	default:
		dropped = true
	}
	return dropped
}

func (jm *JobManager) broadcastJobSync(job *Job) {
	// Held across the sends so Unsubscribe cannot close a channel mid-send.
	jm.subsMu.Lock()
	dropped := 0
	subscribers := len(jm.subs)
	for ch := range jm.subs {
		if sendJobNonBlocking(ch, job) {
			dropped++
		}
	}
	jm.subsMu.Unlock()

	if dropped > 0 {
		logger.Warn("job broadcast dropped stale updates", "component", "jobs", "job_id", job.ID, "subscribers", subscribers, "dropped", dropped)
	}
}

// notificationWorker is the only writer to subscriber channels during normal
// operation, which keeps job ids in order for every subscriber.
func (jm *JobManager) notificationWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jm.notifyQueue:
			jm.broadcastJobSync(job)
		}
	}
}
