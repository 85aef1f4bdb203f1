package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// A feed error is tolerated while the current job is younger than this.
const healthStaleJobGrace = 2 * time.Minute

type bridgeHealth struct {
	Healthy bool
	Reason  string
	Detail  string
}

func bridgeHealthStatus(jobMgr *JobManager, now time.Time) bridgeHealth {
	if now.IsZero() {
		now = time.Now()
	}
	if jobMgr == nil {
		return bridgeHealth{Reason: "no job manager"}
	}

	job := jobMgr.CurrentJob()
	fs := jobMgr.FeedStatus()

	if job == nil {
		if fs.LastError != nil {
			return bridgeHealth{Reason: "node/job feed error", Detail: strings.TrimSpace(fs.LastError.Error())}
		}
		return bridgeHealth{Reason: "no job template available"}
	}
	if fs.LastError != nil && now.Sub(job.CreatedAt) >= healthStaleJobGrace {
		return bridgeHealth{Reason: "node/job feed error", Detail: strings.TrimSpace(fs.LastError.Error())}
	}
	return bridgeHealth{Healthy: true, Detail: "job " + job.IDString() + " " + formatUptime(now.Sub(job.CreatedAt))}
}

func (h bridgeHealth) body() string {
	if h.Healthy {
		return "ok " + h.Detail + "\n"
	}
	if h.Detail != "" {
		return "unhealthy: " + h.Reason + ": " + h.Detail + "\n"
	}
	return "unhealthy: " + h.Reason + "\n"
}

func healthHandler(jobMgr *JobManager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := bridgeHealthStatus(jobMgr, time.Now())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !h.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(h.body()))
	})
}

// serveHealth answers every request on ln until ctx ends.
func serveHealth(ctx context.Context, ln net.Listener, jobMgr *JobManager) error {
	srv := &http.Server{
		Handler:           healthHandler(jobMgr),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
