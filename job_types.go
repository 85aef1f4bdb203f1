package main

import (
	"sync"
	"time"
)

const (
	jobSubscriberBuffer     = 4
	jobNotifyQueueDepth     = 64
	jobFeedErrorHistorySize = 3
	// Minimum spacing between two template fetches triggered back to back by
	// the ticker and a node notification.
	jobRefreshMinInterval = 50 * time.Millisecond
)

// JobManager is the single template poller. It is owned by the primary
// instance and publishes every new Job to all subscribed instances.
type JobManager struct {
	node      nodeAPI
	blockWait time.Duration

	mu     sync.RWMutex
	curJob *Job
	nextID uint64

	subs   map[chan *Job]struct{}
	subsMu sync.Mutex

	lastErrMu         sync.RWMutex
	lastErr           error
	lastErrAt         time.Time
	lastJobSuccess    time.Time
	jobFeedErrHistory []string

	refreshMu          sync.Mutex
	lastRefreshAttempt time.Time

	notifyQueue chan *Job
	// kick is signalled by node new-template notifications.
	kick chan struct{}
}

func NewJobManager(node nodeAPI, blockWait time.Duration) *JobManager {
	if blockWait <= 0 {
		blockWait = defaultBlockWait
	}
	return &JobManager{
		node:        node,
		blockWait:   blockWait,
		subs:        make(map[chan *Job]struct{}),
		notifyQueue: make(chan *Job, jobNotifyQueueDepth),
		kick:        make(chan struct{}, 1),
	}
}

type JobFeedStatus struct {
	Ready        bool
	LastSuccess  time.Time
	LastError    error
	LastErrorAt  time.Time
	ErrorHistory []string
}
