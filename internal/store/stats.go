// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import "sync/atomic"

// Stats holds per-slave counters, updated from worker goroutines and
// read by the periodic stats reporter. All fields are accessed through
// sync/atomic so that 64-bit reads never tear on 32-bit platforms and
// no separate lock is needed alongside the slave's data lock.
type Stats struct {
	totalRequests   atomic.Uint64
	successful      atomic.Uint64
	failed          atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	lastRequestUnix atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats, safe to log or
// serialize without holding any lock.
type StatsSnapshot struct {
	TotalRequests   uint64
	Successful      uint64
	Failed          uint64
	BytesSent       uint64
	BytesReceived   uint64
	LastRequestUnix int64
}

// IncSuccess records one successfully handled request.
func (s *Stats) IncSuccess() {
	s.totalRequests.Add(1)
	s.successful.Add(1)
}

// IncFailed records one rejected or failed request.
func (s *Stats) IncFailed() {
	s.totalRequests.Add(1)
	s.failed.Add(1)
}

// ReconcileWriteFailure moves one already-recorded success over to
// failed, for a response that Handle counted as successful before the
// write to the wire was discovered to have failed. total_requests is
// left untouched since it was already counted once.
func (s *Stats) ReconcileWriteFailure() {
	s.successful.Add(^uint64(0))
	s.failed.Add(1)
}

// AddBytesReceived accumulates bytes read off the wire for this slave.
func (s *Stats) AddBytesReceived(n int) {
	s.bytesReceived.Add(uint64(n))
}

// AddBytesSent accumulates bytes written to the wire for this slave.
func (s *Stats) AddBytesSent(n int) {
	s.bytesSent.Add(uint64(n))
}

// Touch records the wall-clock time (Unix seconds) of the request that
// just completed.
func (s *Stats) Touch(unixNow int64) {
	s.lastRequestUnix.Store(unixNow)
}

// Snapshot copies out the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalRequests:   s.totalRequests.Load(),
		Successful:      s.successful.Load(),
		Failed:          s.failed.Load(),
		BytesSent:       s.bytesSent.Load(),
		BytesReceived:   s.bytesReceived.Load(),
		LastRequestUnix: s.lastRequestUnix.Load(),
	}
}
