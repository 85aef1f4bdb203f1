package main

import "time"

const bridgeSoftwareName = "kaspaBridge"

const (
	// maxJobs bounds the per-instance job history used for late shares.
	maxJobs = 32
	// maxExtranonceValue is the largest 2-byte extranonce token.
	maxExtranonceValue = 65535

	clientTimeout       = 5 * time.Minute
	immediateJobDelay   = 100 * time.Millisecond
	stratumWriteTimeout = 10 * time.Second
	readBufferSize      = 8192
	// Outbound messages a session may have queued before it is dropped.
	outboundQueueDepth = readBufferSize / 128

	varDiffInterval = 10 * time.Second
	statsInterval   = 10 * time.Second

	defaultSharesPerMin  = 20
	defaultMinShareDiff  = 8192
	defaultStratumPort   = ":5555"
	defaultKaspadAddress = "localhost:16110"
	defaultBlockWait     = time.Second
	defaultDataDir       = "data"

	defaultMaxAcceptsPerSecond = 500
	defaultMaxAcceptBurst      = 1000

	// Per-session submit limiter.
	submitRatePerSecond = 100
	submitRateBurst     = 20
)

// Stratum error codes.
const (
	stratumErrOther         = 20
	stratumErrJobNotFound   = 21
	stratumErrDuplicate     = 22
	stratumErrLowDifficulty = 23
	stratumErrUnauthorized  = 24
	stratumErrNotSubscribed = 25
)
