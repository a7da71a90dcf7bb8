// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package sweeper runs the compiled-template cache sweeps on a cron
// schedule, so entries nobody renders any more are released even when no
// render triggers a sweep.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// SweepFunc removes stale and expired cache entries.
type SweepFunc func() (stale, expired int, err error)

// Sweeper schedules a SweepFunc.
type Sweeper struct {
	cron  *cron.Cron
	sweep SweepFunc
	runs  atomic.Int64
}

// New returns a sweeper running sweep on spec, a standard five-field cron
// expression or a descriptor such as "@every 10m".
func New(spec string, sweep SweepFunc) (*Sweeper, error) {
	if sweep == nil {
		return nil, fmt.Errorf("sweeper: sweep func is required")
	}
	log := slogLogger{}
	s := &Sweeper{
		// Recover must sit inside SkipIfStillRunning, which only releases
		// its slot when the wrapped job returns normally.
		cron:  cron.New(cron.WithChain(cron.SkipIfStillRunning(log), cron.Recover(log)), cron.WithLogger(log)),
		sweep: sweep,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", spec, err)
	}
	slog.Info("cache sweep scheduled", "spec", spec)
	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop ends the schedule and waits for a running sweep to finish or ctx
// to be done.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce() {
	stale, expired, err := s.sweep()
	s.runs.Add(1)
	if err != nil {
		slog.Warn("cache sweep failed", "error", err)
		return
	}
	if stale+expired > 0 {
		slog.Info("cache swept", "stale", stale, "expired", expired)
	}
}

// Runs returns how many sweeps have run.
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
