// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-industrial-server/internal/dispatch"
	"github.com/ffutop/modbus-industrial-server/internal/store"
)

const (
	// QueueCapacity is the bounded work queue size from spec.md §5.
	QueueCapacity = 100
	// DefaultWorkers is the worker pool size from spec.md §5.
	DefaultWorkers = 4
	// ShutdownJoinTimeout bounds how long Run waits for the reader and
	// worker pool to exit once ctx is canceled, per spec.md §5.
	ShutdownJoinTimeout = 5 * time.Second
)

// Engine wires one reader goroutine, a bounded work queue, a fixed
// worker pool, and the dispatcher together, matching spec.md §5's
// concurrency model. The Driver's own internal mutex (see driver.go)
// serves as the single writer lane: ReadFull and Write both hold it,
// so two responses never interleave on the wire and a write cannot
// race a read on the half-duplex line.
type Engine struct {
	Driver     *Driver
	Reader     *FrameReader
	Dispatcher *dispatch.Dispatcher
	Store      *store.Store
	Workers    int
}

// NewEngine returns an Engine with spec.md's default worker count; set
// Workers directly afterward to override it.
func NewEngine(driver *Driver, d *dispatch.Dispatcher, st *store.Store) *Engine {
	return &Engine{
		Driver:     driver,
		Reader:     NewFrameReader(driver),
		Dispatcher: d,
		Store:      st,
		Workers:    DefaultWorkers,
	}
}

// Run opens the port, then blocks until ctx is canceled, running the
// reader loop and worker pool. It returns once shutdown has completed
// or ShutdownJoinTimeout has elapsed, whichever comes first.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Driver.Open(ctx); err != nil {
		return err
	}

	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queue := make(chan []byte, QueueCapacity)

	// runCtx is canceled either by the caller (graceful shutdown) or by
	// the reader hitting an unrecoverable port error (spec.md §7: a
	// persistent port failure propagates to shutdown).
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.readLoop(runCtx, cancel, queue)
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.workerLoop(runCtx, queue)
		}()
	}

	<-runCtx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownJoinTimeout):
		slog.Warn("serialio: shutdown join timeout exceeded, abandoning resources")
	}
	return e.Driver.Close()
}

func (e *Engine) readLoop(ctx context.Context, cancel context.CancelFunc, queue chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, ok, err := e.Reader.ReadFrame(ctx)
		if err != nil {
			slog.Error("serialio: reader could not reconnect, triggering shutdown", "err", err)
			cancel()
			return
		}
		if !ok {
			continue
		}

		select {
		case queue <- frame:
		default:
			slog.Warn("serialio: work queue full, dropping frame", "slave", frame[0])
			if sl, ok := e.Store.Get(frame[0]); ok {
				sl.Stats.IncFailed()
			}
		}
	}
}

func (e *Engine) workerLoop(ctx context.Context, queue <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-queue:
			if !ok {
				return
			}
			resp, shouldReply := e.Dispatcher.Handle(frame)
			if !shouldReply {
				continue
			}
			if err := e.Driver.Write(ctx, resp); err != nil {
				slog.Error("serialio: write failed", "err", err)
				// A partial/failed write is fatal for this response
				// (spec.md §5): the frame is dropped and the slave's
				// stats must mark a failure. Handle already recorded
				// this request as successful or as an exception before
				// the write was attempted, so a success needs to be
				// reconciled over to failed; an exception response was
				// already counted as failed and needs no further change.
				if sl, ok := e.Store.Get(resp[0]); ok {
					if len(resp) > 1 && resp[1]&0x80 == 0 {
						sl.Stats.ReconcileWriteFailure()
					}
				}
			}
		}
	}
}
