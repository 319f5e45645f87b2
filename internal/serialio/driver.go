// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serialio owns the single serial line this server listens on:
// the port handle with its reconnect procedure, the frame reader built
// on the rtu package's length inference, and the reader/worker-pool/
// writer-lane engine described in spec.md §5.
package serialio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

// Config describes the serial line this server owns, per spec.md §6's
// `serial` section.
type Config struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string // "N", "E", "O"
	StopBits int
	Timeout  time.Duration // per-read timeout, spec.md §5 default 1s

	// RS485 knobs, carried through to grid-x/serial the way
	// transport/rtu/serial.go's serialPort embeds serial.Config.
	RS485              bool
	DelayRtsBeforeSend time.Duration
	DelayRtsAfterSend  time.Duration
	RtsHighDuringSend  bool
	RtsHighAfterSend   bool
	RxDuringTx         bool
}

func (c Config) toSerialConfig() *serial.Config {
	return &serial.Config{
		Address:  c.Port,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
		Timeout:  c.Timeout,
		RS485: serial.RS485Config{
			Enabled:            c.RS485,
			DelayRtsBeforeSend: c.DelayRtsBeforeSend,
			DelayRtsAfterSend:  c.DelayRtsAfterSend,
			RtsHighDuringSend:  c.RtsHighDuringSend,
			RtsHighAfterSend:   c.RtsHighAfterSend,
			RxDuringTx:         c.RxDuringTx,
		},
	}
}

const (
	maxOpenRetries = 5
	retryDelay     = 2 * time.Second
)

// Driver owns the one open serial port, reconnecting on read/write
// failure per spec.md §4.5. Reads and writes against the underlying
// port are each serialized by mu so a reconnect never races a read
// with an in-flight write.
type Driver struct {
	cfg Config

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewDriver returns a Driver that has not yet opened its port.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// NewDriverWithPort returns a Driver already wrapping an open port,
// skipping serial.Open entirely. Used by tests to drive the reader and
// engine against a mockPort instead of real hardware.
func NewDriverWithPort(port io.ReadWriteCloser) *Driver {
	return &Driver{port: port}
}

// Open opens the serial port, retrying up to maxOpenRetries times at a
// fixed delay, per spec.md §4.5. It returns an error only after every
// retry has been exhausted or ctx is done.
func (d *Driver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open(ctx)
}

func (d *Driver) open(ctx context.Context) error {
	if d.port != nil {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= maxOpenRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		port, err := serial.Open(d.cfg.toSerialConfig())
		if err == nil {
			d.port = port
			return nil
		}
		lastErr = err
		slog.Warn("serialio: open failed, retrying", "port", d.cfg.Port, "attempt", attempt+1, "err", err)
	}
	return fmt.Errorf("serialio: open %s after %d retries: %w", d.cfg.Port, maxOpenRetries, lastErr)
}

// Close closes the underlying port, if open.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.close()
}

func (d *Driver) close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// ReadByte reads exactly one byte. On an I/O failure the port is
// reopened and the read is not repeated. It returns errTimeout when no
// byte arrived (read timeout, or a failed read followed by a successful
// reconnect) and the reopen error when reconnection itself fails, so
// the caller can distinguish "no byte this time" from "the port is gone".
func (d *Driver) ReadByte(ctx context.Context) (byte, error) {
	buf := make([]byte, 1)
	n, err := d.readFull(ctx, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errTimeout
	}
	return buf[0], nil
}

// ReadFull reads exactly len(buf) bytes, returning early (with the
// bytes read so far and a nil error) if the per-read timeout elapses
// partway through, per spec.md §4.2's "short reads abandon the frame".
func (d *Driver) ReadFull(ctx context.Context, buf []byte) (int, error) {
	return d.readFull(ctx, buf)
}

func (d *Driver) readFull(ctx context.Context, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureOpen(ctx); err != nil {
		return 0, err
	}

	total := 0
	for total < len(buf) {
		n, err := d.port.Read(buf[total:])
		total += n
		if err != nil {
			if isTimeout(err) {
				return total, nil
			}
			slog.Warn("serialio: read failed, reconnecting", "err", err)
			d.close()
			if reErr := d.open(ctx); reErr != nil {
				return total, reErr
			}
			return total, nil
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}

// Write writes the full frame, flushing synchronously. A partial
// write is treated as fatal for this response, per spec.md §4.5: the
// caller counts it as a failure and moves on.
func (d *Driver) Write(ctx context.Context, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureOpen(ctx); err != nil {
		return err
	}
	n, err := d.port.Write(frame)
	if err != nil {
		slog.Warn("serialio: write failed, reconnecting", "err", err)
		d.close()
		return fmt.Errorf("serialio: write: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("serialio: partial write %d/%d bytes", n, len(frame))
	}
	return nil
}

func (d *Driver) ensureOpen(ctx context.Context) error {
	if d.port != nil {
		return nil
	}
	return d.open(ctx)
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

var errTimeout = fmt.Errorf("serialio: read timeout")
