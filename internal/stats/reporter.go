// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package stats runs the periodic aggregate + per-slave statistics
// dump spec.md §5 describes, grounded on the original Python server's
// _start_stats_reporting/_log_statistics.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-industrial-server/internal/store"
)

// DefaultInterval is spec.md §6's stats_interval default.
const DefaultInterval = 60 * time.Second

// Reporter periodically logs aggregate and per-slave request counters.
type Reporter struct {
	Store    *store.Store
	Interval time.Duration
	Log      *slog.Logger
}

// NewReporter returns a Reporter over st, logging through log (or
// slog.Default if nil) every interval (or DefaultInterval if <= 0).
func NewReporter(st *store.Store, interval time.Duration, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{Store: st, Interval: interval, Log: log}
}

// Run blocks, logging a stats snapshot every r.Interval, until ctx is
// canceled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	var totalReq, totalOK, totalFailed uint64

	ids := r.Store.IDs()
	snapshots := make(map[byte]store.StatsSnapshot, len(ids))
	for _, id := range ids {
		sl, ok := r.Store.Get(id)
		if !ok {
			continue
		}
		snap := sl.Stats.Snapshot()
		snapshots[id] = snap
		totalReq += snap.TotalRequests
		totalOK += snap.Successful
		totalFailed += snap.Failed
	}

	successRate := 0.0
	if totalReq > 0 {
		successRate = float64(totalOK) / float64(totalReq) * 100
	}
	r.Log.Info("server statistics",
		"total_requests", totalReq,
		"success_rate_pct", successRate,
		"failed", totalFailed,
		"slaves", len(ids),
	)

	for _, id := range ids {
		snap, ok := snapshots[id]
		if !ok || snap.TotalRequests == 0 {
			continue
		}
		slaveSuccessRate := float64(snap.Successful) / float64(snap.TotalRequests) * 100
		r.Log.Info("slave statistics",
			"slave", id,
			"total_requests", snap.TotalRequests,
			"success_rate_pct", slaveSuccessRate,
			"bytes_sent", snap.BytesSent,
			"bytes_received", snap.BytesReceived,
		)
	}
}
