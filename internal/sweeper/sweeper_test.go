// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("@every 1m", nil); err == nil {
		t.Error("expected error for nil sweep func")
	}
	noop := func() (int, int, error) { return 0, 0, nil }
	if _, err := New("not a schedule", noop); err == nil {
		t.Error("expected error for invalid schedule")
	}
	for _, spec := range []string{"@every 10m", "*/5 * * * *", "@hourly"} {
		if _, err := New(spec, noop); err != nil {
			t.Errorf("New(%q): %v", spec, err)
		}
	}
}

func TestRunOnce(t *testing.T) {
	var calls atomic.Int32
	s, err := New("@every 1h", func() (int, int, error) {
		if calls.Add(1) == 2 {
			return 0, 0, errors.New("locked")
		}
		return 1, 2, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	s.RunOnce()
	s.RunOnce()
	if calls.Load() != 2 || s.Runs() != 2 {
		t.Errorf("calls=%d runs=%d, want 2/2", calls.Load(), s.Runs())
	}
}

func TestSchedule(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New("@every 1s", func() (int, int, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, 0, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled sweep did not run")
	}
}

func TestRecoversPanic(t *testing.T) {
	ran := make(chan struct{}, 2)
	s, err := New("@every 1s", func() (int, int, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		panic("sweep bug")
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop(context.Background())

	// The schedule survives a panicking run.
	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(3 * time.Second):
			t.Fatalf("run %d did not happen", i+1)
		}
	}
}
