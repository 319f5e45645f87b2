// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialio

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// PerformanceMonitor periodically samples process memory and
// goroutine counts and logs a warning when either crosses its
// configured threshold. It is the Go-native replacement for the
// original Python server's psutil-based memory/CPU polling: the Go
// runtime already exposes the introspection psutil would otherwise
// be shelling out for.
type PerformanceMonitor struct {
	MemoryCheckInterval time.Duration
	CPUCheckInterval    time.Duration
	MemoryThresholdMB   uint64
	GoroutineThreshold  int
}

// Run blocks, sampling at the shorter of the two configured intervals,
// until ctx is canceled. An interval of zero disables that check.
func (m *PerformanceMonitor) Run(ctx context.Context) {
	interval := m.MemoryCheckInterval
	if m.CPUCheckInterval > 0 && (interval == 0 || m.CPUCheckInterval < interval) {
		interval = m.CPUCheckInterval
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *PerformanceMonitor) sample() {
	if m.MemoryCheckInterval > 0 && m.MemoryThresholdMB > 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		allocMB := ms.Alloc / (1024 * 1024)
		if allocMB >= m.MemoryThresholdMB {
			slog.Warn("serialio: memory threshold exceeded", "alloc_mb", allocMB, "threshold_mb", m.MemoryThresholdMB)
		}
	}
	if m.CPUCheckInterval > 0 && m.GoroutineThreshold > 0 {
		if n := runtime.NumGoroutine(); n >= m.GoroutineThreshold {
			slog.Warn("serialio: goroutine threshold exceeded", "goroutines", n, "threshold", m.GoroutineThreshold)
		}
	}
}
