// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu implements the Modbus RTU wire framing: function-code
// directed length inference (spec.md §4.2) in place of the idle-gap
// timer the original protocol relies on.
package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-industrial-server/modbus"
)

// ErrUnsupportedFunction is returned by CalculateRequestLength when the
// function code byte does not belong to any frame shape this server
// knows how to demarcate. The caller drops the in-flight frame and
// keeps reading, per spec.md §4.2 step 2.
type ErrUnsupportedFunction struct {
	FunctionCode byte
}

func (e *ErrUnsupportedFunction) Error() string {
	return fmt.Sprintf("modbus: unsupported function code 0x%02X", e.FunctionCode)
}

// ErrShortHeader is returned when CalculateRequestLength needs more
// header bytes than it was given to determine the byte-count field of
// a variable-length request.
type ErrShortHeader struct {
	Need, Got int
}

func (e *ErrShortHeader) Error() string {
	return fmt.Sprintf("modbus: need %d header bytes, got %d", e.Need, e.Got)
}

// CalculateRequestLength returns the total length of an RTU request
// ADU (slave id + function code + data + CRC), given the function code
// and as much of the header as has been read so far.
//
//   - 0x01, 0x02, 0x03, 0x04, 0x05, 0x06: fixed 8 bytes total.
//   - 0x0F, 0x10: header is [slaveID, func, addr(2), quantity(2),
//     byteCount(1)] — 7 bytes — then byteCount+2 more.
//   - 0x14: header is [slaveID, func, byteCount(1)] — 3 bytes — then
//     byteCount+2 more.
//   - anything else: ErrUnsupportedFunction.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		return 8, nil

	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// [slaveID, func, addr(2), quantity(2), byteCount] = 7 bytes.
		if len(header) < 7 {
			return 0, &ErrShortHeader{Need: 7, Got: len(header)}
		}
		byteCount := int(header[6])
		return 7 + byteCount + 2, nil

	case modbus.FuncCodeReadFileRecord:
		// [slaveID, func, byteCount] = 3 bytes.
		if len(header) < 3 {
			return 0, &ErrShortHeader{Need: 3, Got: len(header)}
		}
		byteCount := int(header[2])
		return 3 + byteCount + 2, nil

	default:
		return 0, &ErrUnsupportedFunction{FunctionCode: funcCode}
	}
}

// HeaderSize returns how many bytes of header (including slave id and
// function code) CalculateRequestLength needs before it can resolve the
// full frame length for funcCode. Unsupported codes need none beyond
// the function code itself, since the frame is abandoned immediately.
func HeaderSize(funcCode byte) int {
	switch funcCode {
	case modbus.FuncCodeWriteMultipleCoils, modbus.FuncCodeWriteMultipleRegisters:
		return 7
	case modbus.FuncCodeReadFileRecord:
		return 3
	default:
		return 2
	}
}
