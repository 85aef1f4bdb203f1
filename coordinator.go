package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// logBanner prints the resolved configuration once at startup.
func logBanner(cfg Config, instances []ResolvedInstance) {
	plural := ""
	if len(instances) > 1 {
		plural = "s"
	}
	logger.Info("----------------------------------")
	logger.Info("initializing bridge (" + strconv.Itoa(len(instances)) + " instance" + plural + ")")
	logger.Info("kaspad", "address", cfg.KaspadAddress, "shared", true)
	logger.Info("settings",
		"block_wait", cfg.BlockWaitTime,
		"print_stats", cfg.PrintStats,
		"var_diff", cfg.VarDiff,
		"shares_per_min", cfg.SharesPerMin,
		"var_diff_stats", cfg.VarDiffStats,
		"pow2_clamp", cfg.Pow2Clamp,
		"extranonce", "auto-detected per client",
		"health_check", cfg.HealthCheckPort,
		"data_dir", cfg.DataDir,
	)
	for _, inst := range instances {
		attrs := []any{"stratum", inst.StratumPort, "min_diff", inst.MinShareDiff, "var_diff", inst.VarDiff, "shares_per_min", inst.SharesPerMin, "log_to_file", inst.LogToFile}
		if inst.PromPort != "" {
			attrs = append(attrs, "prom", inst.PromPort)
		}
		if inst.Primary {
			attrs = append(attrs, "primary", true)
		}
		logger.Info("instance "+strconv.Itoa(inst.Index+1), attrs...)
	}
	logger.Info("----------------------------------")
}

type serviceErrors struct {
	mu   sync.Mutex
	errs []error
}

func (e *serviceErrors) add(err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func (e *serviceErrors) join() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}

// runService runs every configured instance against one shared node until
// ctx ends. The first instance failure cancels the others; all failures are
// returned joined.
func runService(ctx context.Context, cfg Config, node nodeAPI) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	resolved := resolveInstances(cfg)
	logBanner(cfg, resolved)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	discord, err := newDiscordNotifier(cfg.DiscordWebhookURL)
	if err != nil {
		return err
	}
	discord.start(ctx)

	ledger, err := openFoundBlockLedger(ledgerPathFromDataDir(cfg.DataDir))
	if err != nil {
		logger.Warn("found-block ledger disabled", "component", "blocks", "error", err)
		ledger = nil
	}
	logRecentFoundBlocks(ledger, recentFoundBlocksAtStartup)
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("close found-block ledger", "component", "blocks", "error", err)
		}
	}()

	pending := newPendingSubmissionStore(pendingSubmissionsPath(cfg.DataDir))
	if n := len(pending.Pending()); n > 0 {
		logger.Warn("replaying pending block submissions", "component", "blocks", "count", n)
	}
	pending.Start(ctx, node)

	deps := instanceDeps{node: node, ledger: ledger, pending: pending, discord: discord}
	instances := make([]*instance, 0, len(resolved))
	listeners := make([]net.Listener, 0, len(resolved))
	closeListeners := func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}
	for _, rc := range resolved {
		in := newInstance(cfg, rc, deps)
		ln, err := in.listen()
		if err != nil {
			closeListeners()
			return err
		}
		instances = append(instances, in)
		listeners = append(listeners, ln)
	}

	jobMgr := NewJobManager(node, cfg.BlockWaitTime)
	instances[0].poller = jobMgr

	var healthLn net.Listener
	if cfg.HealthCheckPort != "" {
		healthLn, err = net.Listen("tcp", cfg.HealthCheckPort)
		if err != nil {
			closeListeners()
			return fmt.Errorf("%w: health check listen %s: %v", errInstanceFatal, cfg.HealthCheckPort, err)
		}
	}

	subs := make([]chan *Job, len(instances))
	for i := range instances {
		subs[i] = jobMgr.Subscribe()
	}
	defer func() {
		for _, ch := range subs {
			jobMgr.Unsubscribe(ch)
		}
	}()

	var (
		wg   sync.WaitGroup
		errs serviceErrors
	)
	for i, in := range instances {
		wg.Add(1)
		go func(in *instance, ln net.Listener, jobs chan *Job) {
			defer wg.Done()
			if err := in.serve(ctx, ln, jobs); err != nil {
				logger.Error("instance failed", "instance", in.num, "error", err)
				errs.add(err)
				cancel()
			}
		}(in, listeners[i], subs[i])
	}
	if healthLn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("health check listening", "addr", healthLn.Addr().String())
			if err := serveHealth(ctx, healthLn, jobMgr); err != nil {
				errs.add(fmt.Errorf("%w: health check: %v", errInstanceFatal, err))
				cancel()
			}
		}()
	}

	logger.Info("all instances started", "count", len(instances))
	wg.Wait()

	if err := errs.join(); err != nil {
		return err
	}
	logger.Info("all instances stopped")
	return nil
}
