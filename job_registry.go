package main

import "sync"

// shareKey identifies a share within one job. The nonce already carries the
// session's extranonce, so it alone is unique per unit of work.
type shareKey struct {
	nonce uint64
}

type jobEntry struct {
	job    *Job
	shares map[shareKey]struct{}
}

// jobRegistry keeps the maxJobs most recent jobs of one instance together
// with the shares seen against each. Slots are reused ring-style; an entry
// only matches when its stored id equals the requested one.
type jobRegistry struct {
	mu      sync.RWMutex
	slots   [maxJobs]*jobEntry
	latest  *Job
	evicted uint64
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{}
}

// add stores job and evicts whatever occupied its slot. Jobs must arrive in
// increasing id order; anything else is ignored.
func (r *jobRegistry) add(job *Job) bool {
	if job == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest != nil && job.ID <= r.latest.ID {
		return false
	}
	slot := job.ID % maxJobs
	if r.slots[slot] != nil {
		r.evicted++
	}
	r.slots[slot] = &jobEntry{job: job, shares: make(map[shareKey]struct{})}
	r.latest = job
	return true
}

func (r *jobRegistry) entryLocked(id uint64) *jobEntry {
	if r.latest != nil && id+maxJobs <= r.latest.ID {
		return nil
	}
	e := r.slots[id%maxJobs]
	if e == nil || e.job.ID != id {
		return nil
	}
	return e
}

func (r *jobRegistry) lookup(id uint64) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entryLocked(id)
	if e == nil {
		return nil, false
	}
	return e.job, true
}

func (r *jobRegistry) seen(id uint64, key shareKey) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entryLocked(id)
	if e == nil {
		return errStaleShare
	}
	if _, dup := e.shares[key]; dup {
		return errDuplicateShare
	}
	return nil
}

// record marks key as used for job id. It re-checks under the write lock so
// two racing submits of the same nonce cannot both be accepted.
func (r *jobRegistry) record(id uint64, key shareKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entryLocked(id)
	if e == nil {
		return errStaleShare
	}
	if _, dup := e.shares[key]; dup {
		return errDuplicateShare
	}
	e.shares[key] = struct{}{}
	return nil
}

func (r *jobRegistry) current() *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

func (r *jobRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.slots {
		if e != nil {
			n++
		}
	}
	return n
}
