// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialio

import (
	"context"
	"testing"
	"time"
)

func TestPerformanceMonitor_StopsOnCancel(t *testing.T) {
	m := &PerformanceMonitor{
		MemoryCheckInterval: 5 * time.Millisecond,
		MemoryThresholdMB:   1 << 30, // effectively unreachable
		GoroutineThreshold:  1 << 20,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("Run() did not return after ctx expired")
	}
}

func TestPerformanceMonitor_DisabledWithZeroIntervals(t *testing.T) {
	m := &PerformanceMonitor{}
	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("Run() with zero intervals should return immediately")
	}
}
