// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialio

import (
	"context"
	"log/slog"

	"github.com/ffutop/modbus-industrial-server/modbus/rtu"
)

// FrameReader implements spec.md §4.2's procedure for demarcating one
// RTU frame on top of a Driver: read the two-byte header, extend it
// until CalculateRequestLength can resolve the total frame length for
// the function code in play, then read the remainder.
type FrameReader struct {
	driver *Driver
}

// NewFrameReader returns a FrameReader over driver.
func NewFrameReader(driver *Driver) *FrameReader {
	return &FrameReader{driver: driver}
}

// ReadFrame returns one complete frame (ok == true), or ok == false if
// the in-flight frame was abandoned (short read, unsupported function
// code) and the caller should simply try again. err is non-nil only
// when the underlying port could not be reconnected.
func (r *FrameReader) ReadFrame(ctx context.Context) (frame []byte, ok bool, err error) {
	header := make([]byte, 2)
	n, err := r.driver.ReadFull(ctx, header)
	if err != nil {
		return nil, false, err
	}
	if n < 2 {
		return nil, false, nil
	}

	funcCode := header[1]
	hdrSize := rtu.HeaderSize(funcCode)
	if hdrSize > len(header) {
		extra := make([]byte, hdrSize-len(header))
		n, err := r.driver.ReadFull(ctx, extra)
		if err != nil {
			return nil, false, err
		}
		header = append(header, extra[:n]...)
		if len(header) < hdrSize {
			return nil, false, nil
		}
	}

	total, err := rtu.CalculateRequestLength(funcCode, header)
	if err != nil {
		slog.Warn("serialio: unsupported function, discarding frame", "func", funcCode, "err", err)
		return nil, false, nil
	}

	full := make([]byte, total)
	copy(full, header)
	if total > len(header) {
		n, err := r.driver.ReadFull(ctx, full[len(header):])
		if err != nil {
			return nil, false, err
		}
		if len(header)+n != total {
			return nil, false, nil
		}
	}
	return full, true, nil
}
