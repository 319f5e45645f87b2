// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package dispatch implements the request dispatcher: CRC
// verification, slave lookup, function-code decoding, and the nine
// request handlers, per spec.md §4.4.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/ffutop/modbus-industrial-server/internal/persistence"
	"github.com/ffutop/modbus-industrial-server/internal/store"
	"github.com/ffutop/modbus-industrial-server/modbus"
	"github.com/ffutop/modbus-industrial-server/modbus/crc"
)

// Dispatcher turns raw RTU frames into raw RTU responses against a
// slave store, optionally mirroring writes into a persistence backend.
type Dispatcher struct {
	Store   *store.Store
	Persist persistence.Storage
	Log     *slog.Logger
}

// New returns a Dispatcher over st, optionally backed by persist (nil
// is not accepted; pass persistence.NewMemoryStorage() for "none").
func New(st *store.Store, persist persistence.Storage, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{Store: st, Persist: persist, Log: log}
}

// Handle implements spec.md §4.4's dispatch procedure over one raw RTU
// frame (slave id, function code, data, CRC). It returns the raw
// response frame to write to the wire and whether one should be
// written at all — CRC-invalid and framing-rejected requests never
// get a reply.
func (d *Dispatcher) Handle(frame []byte) (response []byte, shouldReply bool) {
	// Step 1: reject frames shorter than the smallest possible ADU.
	if len(frame) < 4 {
		return nil, false
	}

	slaveID := frame[0]
	funcCode := frame[1]

	// Step 2: CRC verification. A mismatch is dropped silently and
	// never touches the addressed slave's counters — per spec.md §8
	// scenario 2, a CRC-invalid frame is treated as not addressed at
	// all, not as a failed request.
	if !crc.Verify(frame) {
		d.Log.Warn("modbus: CRC mismatch, dropping frame", "slave", slaveID)
		return nil, false
	}

	// Step 3: locate the slave.
	sl, ok := d.Store.Get(slaveID)
	if !ok {
		d.Log.Warn("modbus: unknown slave", "slave", slaveID)
		return buildException(slaveID, funcCode, modbus.ExceptionCodeGatewayTargetDeviceFailed), true
	}

	// Step 4: bytes-received accounting.
	sl.Stats.AddBytesReceived(len(frame))
	now := time.Now().Unix()

	data := frame[2 : len(frame)-2]
	respData, exc, ok := d.dispatchFunction(sl, funcCode, data)

	var resp []byte
	if ok {
		resp = buildSuccess(slaveID, funcCode, respData)
		sl.Stats.IncSuccess()
	} else {
		resp = buildException(slaveID, funcCode, exc)
		sl.Stats.IncFailed()
	}
	sl.Stats.AddBytesSent(len(resp))
	sl.Stats.Touch(now)
	return resp, true
}

// dispatchFunction decodes funcCode and invokes the matching handler.
// Handlers return (responseData, 0, true) on success or
// (nil, exceptionCode, false) on failure; dispatchFunction itself only
// handles the "function code not supported at all" branch.
func (d *Dispatcher) dispatchFunction(sl *store.Slave, funcCode byte, data []byte) ([]byte, modbus.Exception, bool) {
	switch funcCode {
	case modbus.FuncCodeReadCoils:
		return d.handleReadCoils(sl, data)
	case modbus.FuncCodeReadDiscreteInputs:
		return d.handleReadDiscreteInputs(sl, data)
	case modbus.FuncCodeReadHoldingRegisters:
		return d.handleReadHoldingRegisters(sl, data)
	case modbus.FuncCodeReadInputRegisters:
		return d.handleReadInputRegisters(sl, data)
	case modbus.FuncCodeWriteSingleCoil:
		return d.handleWriteSingleCoil(sl, data)
	case modbus.FuncCodeWriteSingleRegister:
		return d.handleWriteSingleRegister(sl, data)
	case modbus.FuncCodeWriteMultipleCoils:
		return d.handleWriteMultipleCoils(sl, data)
	case modbus.FuncCodeWriteMultipleRegisters:
		return d.handleWriteMultipleRegisters(sl, data)
	case modbus.FuncCodeReadFileRecord:
		return d.handleReadFileRecord(sl, data)
	default:
		return nil, modbus.ExceptionCodeIllegalFunction, false
	}
}

func buildSuccess(slaveID, funcCode byte, data []byte) []byte {
	frame := make([]byte, 0, 2+len(data)+2)
	frame = append(frame, slaveID, funcCode)
	frame = append(frame, data...)
	return crc.Append(frame)
}

func buildException(slaveID, funcCode byte, exc modbus.Exception) []byte {
	frame := []byte{slaveID, funcCode | 0x80, byte(exc)}
	return crc.Append(frame)
}
