package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

const (
	// Concurrent pushJob / vardiff calls per instance.
	fanOutWorkers = 64

	sessionDrainTimeout    = 10 * time.Second
	reconnectPruneInterval = time.Minute
)

// instanceDeps are the process-wide collaborators shared by every instance.
type instanceDeps struct {
	node    nodeAPI
	ledger  *foundBlockLedger
	pending *pendingSubmissionStore
	discord *discordNotifier
}

// instance is one stratum listener with its own registry, extranonce pool
// and sessions.
type instance struct {
	num        int
	cfg        ResolvedInstance
	printStats bool
	dataDir    string
	log        scopedLogger
	ownLog     *simpleLogger

	registry  *jobRegistry
	allocator *extranonceAllocator
	validator *shareValidator
	metrics   *instanceMetrics

	acceptLimiter *acceptRateLimiter
	reconnects    *reconnectTracker

	// poller is set on the primary instance only.
	poller *JobManager

	sessions      *sessionSet
	nextSessionID atomic.Uint64
	sessionWG     sync.WaitGroup

	listenMu sync.Mutex
	listener net.Listener
	started  time.Time
}

func newInstance(global Config, cfg ResolvedInstance, deps instanceDeps) *instance {
	num := cfg.Index + 1
	in := &instance{
		num:           num,
		cfg:           cfg,
		printStats:    global.PrintStats,
		dataDir:       global.DataDir,
		registry:      newJobRegistry(),
		allocator:     newExtranonceAllocator(),
		metrics:       newInstanceMetrics(num),
		acceptLimiter: newAcceptRateLimiter(global.MaxAcceptsPerSecond, defaultMaxAcceptBurst),
		reconnects:    newReconnectTracker(global.ReconnectBanThreshold, reconnectWindow, reconnectBanDuration),
		sessions:      newSessionSet(),
	}
	base := logger
	if cfg.LogToFile != global.LogToFile {
		// The instance overrides file logging, so it gets its own sink.
		in.ownLog = newSimpleLogger()
		if debugLogging {
			in.ownLog.setLevel(logLevelDebug)
		}
		file := newRollingFileWriter("")
		if cfg.LogToFile {
			file = newRollingFileWriter(instanceLogFilePath(global.DataDir, num, time.Now()))
		}
		in.ownLog.configureWriters(file, os.Stdout)
		base = in.ownLog
	}
	in.log = newScopedLogger(base, "instance", num)
	in.validator = &shareValidator{
		instance: num,
		registry: in.registry,
		node:     deps.node,
		ledger:   deps.ledger,
		pending:  deps.pending,
		discord:  deps.discord,
		metrics:  in.metrics,
	}
	return in
}

func (in *instance) removeSession(s *session) {
	in.sessions.Remove(s)
}

// Addr is the bound listener address, or nil before run has bound it.
func (in *instance) Addr() net.Addr {
	in.listenMu.Lock()
	defer in.listenMu.Unlock()
	if in.listener == nil {
		return nil
	}
	return in.listener.Addr()
}

func (in *instance) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", in.cfg.StratumPort)
	if err != nil {
		return nil, fmt.Errorf("%w: instance %d: listen %s: %v", errInstanceFatal, in.num, in.cfg.StratumPort, err)
	}
	in.listenMu.Lock()
	in.listener = ln
	in.listenMu.Unlock()
	return ln, nil
}

// run binds the listener and serves until ctx ends or a fatal error occurs.
// jobs is this instance's subscription to the template poller.
func (in *instance) run(ctx context.Context, jobs <-chan *Job) error {
	ln, err := in.listen()
	if err != nil {
		return err
	}
	return in.serve(ctx, ln, jobs)
}

func (in *instance) serve(parent context.Context, ln net.Listener, jobs <-chan *Job) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	in.started = time.Now()
	if in.ownLog != nil {
		defer in.ownLog.Stop()
	}

	in.log.Info("stratum listening", "addr", ln.Addr().String(), "min_share_diff", in.cfg.MinShareDiff,
		"var_diff", in.cfg.VarDiff, "shares_per_min", in.cfg.SharesPerMin, "pow2_clamp", in.cfg.Pow2Clamp, "primary", in.cfg.Primary)
	if in.poller != nil {
		in.log.Info("starting block template poller", "block_wait", in.poller.blockWait, "node", in.poller.node.EndpointLabel())
		in.poller.Start(ctx)
	}

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	fail := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		in.jobLoop(ctx, jobs)
	}()
	if in.cfg.VarDiff {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.varDiffLoop(ctx)
		}()
	}
	if in.printStats {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.statsLoop(ctx)
		}()
	}
	if in.reconnects != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.pruneLoop(ctx)
		}()
	}
	if in.cfg.PromPort != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.log.Info("prometheus listening", "addr", in.cfg.PromPort)
			if err := in.metrics.serveMetrics(ctx, in.cfg.PromPort); err != nil {
				fail(fmt.Errorf("%w: instance %d: prometheus %s: %v", errInstanceFatal, in.num, in.cfg.PromPort, err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	in.acceptLoop(ctx, ln)
	cancel()
	in.drainSessions()
	wg.Wait()

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatalErr
}

func (in *instance) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		if !in.acceptLimiter.wait(ctx) {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			in.log.Error("accept error", "error", err)
			continue
		}
		disableTCPNagle(conn)

		remote := conn.RemoteAddr().String()
		if in.reconnects != nil {
			host, _, errSplit := net.SplitHostPort(remote)
			if errSplit != nil {
				host = remote
			}
			if !in.reconnects.allow(host, time.Now()) {
				in.log.Warn("rejecting miner for reconnect churn", "remote", remote, "host", host)
				_ = conn.Close()
				continue
			}
		}
		in.serveConn(ctx, conn)
	}
}

// serveConn starts a session for conn and returns immediately.
func (in *instance) serveConn(ctx context.Context, conn net.Conn) *session {
	s := newSession(in, conn, in.nextSessionID.Add(1))
	in.sessions.Add(s)
	in.metrics.SessionOpened()
	in.sessionWG.Add(1)
	go func() {
		defer in.sessionWG.Done()
		s.run(ctx)
	}()
	return s
}

func (in *instance) drainSessions() {
	for _, s := range in.sessions.Snapshot() {
		s.close("shutdown")
	}
	done := make(chan struct{})
	go func() {
		in.sessionWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(sessionDrainTimeout):
		in.log.Warn("timed out waiting for miners to drain", "remaining", in.sessions.Count())
	}
}

// jobLoop stores every job from the poller and pushes it to the sessions.
func (in *instance) jobLoop(ctx context.Context, jobs <-chan *Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			in.publish(job)
		}
	}
}

func (in *instance) publish(job *Job) {
	if !in.registry.add(job) {
		return
	}
	in.metrics.SetCurrentJob(job.ID)

	swg := sizedwaitgroup.New(fanOutWorkers)
	for _, s := range in.sessions.Snapshot() {
		swg.Add()
		go func(s *session) {
			defer swg.Done()
			s.pushJob(job)
		}(s)
	}
	swg.Wait()
}

func (in *instance) varDiffLoop(ctx context.Context) {
	ticker := time.NewTicker(varDiffInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			in.varDiffTick(now)
		}
	}
}

// varDiffTick evaluates every mining session once.
func (in *instance) varDiffTick(now time.Time) int {
	target := float64(in.cfg.SharesPerMin)
	var changed atomic.Int32
	swg := sizedwaitgroup.New(fanOutWorkers)
	for _, s := range in.sessions.Snapshot() {
		swg.Add()
		go func(s *session) {
			defer swg.Done()
			oldDiff, newDiff, ok := s.evaluateVarDiff(now, target)
			if !ok {
				return
			}
			changed.Add(1)
			in.metrics.RecordVardiff(s.Worker(), oldDiff, newDiff)
		}(s)
	}
	swg.Wait()
	return int(changed.Load())
}

func (in *instance) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(reconnectPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := in.reconnects.prune(now); n > 0 && debugLogging {
				in.log.Debug("pruned reconnect entries", "removed", n, "tracked", in.reconnects.size())
			}
		}
	}
}

func disableTCPNagle(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			logger.Debug("set tcp no-delay failed (ignored)", "error", err)
		}
	}
}
