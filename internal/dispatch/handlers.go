// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package dispatch

import (
	"encoding/binary"

	"github.com/ffutop/modbus-industrial-server/internal/store"
	"github.com/ffutop/modbus-industrial-server/modbus"
	"github.com/ffutop/modbus-industrial-server/modbus/rtu"
)

// handleReadCoils implements §4.4.1 for function code 0x01.
func (d *Dispatcher) handleReadCoils(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	address, quantity, ok := decodeAddrQuantity(data)
	if !ok || quantity < 1 || quantity > rtu.MaxReadBits {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	bits, err := sl.ReadCoils(address, quantity)
	if err != nil {
		return nil, modbus.ExceptionCodeIllegalDataAddress, false
	}
	return prefixByteCount(bits), 0, true
}

// handleReadDiscreteInputs implements §4.4.1 for function code 0x02.
func (d *Dispatcher) handleReadDiscreteInputs(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	address, quantity, ok := decodeAddrQuantity(data)
	if !ok || quantity < 1 || quantity > rtu.MaxReadBits {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	bits, err := sl.ReadDiscreteInputs(address, quantity)
	if err != nil {
		return nil, modbus.ExceptionCodeIllegalDataAddress, false
	}
	return prefixByteCount(bits), 0, true
}

// handleReadHoldingRegisters implements §4.4.2 for function code 0x03.
func (d *Dispatcher) handleReadHoldingRegisters(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	address, quantity, ok := decodeAddrQuantity(data)
	if !ok || quantity < 1 || quantity > rtu.MaxReadRegisters {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	words, err := sl.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, modbus.ExceptionCodeIllegalDataAddress, false
	}
	return prefixByteCount(words), 0, true
}

// handleReadInputRegisters implements §4.4.2 for function code 0x04.
func (d *Dispatcher) handleReadInputRegisters(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	address, quantity, ok := decodeAddrQuantity(data)
	if !ok || quantity < 1 || quantity > rtu.MaxReadRegisters {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	words, err := sl.ReadInputRegisters(address, quantity)
	if err != nil {
		return nil, modbus.ExceptionCodeIllegalDataAddress, false
	}
	return prefixByteCount(words), 0, true
}

// handleWriteSingleCoil implements §4.4.3 for function code 0x05. The
// response echoes the request bytes with a freshly computed CRC (the
// caller rebuilds the frame and appends CRC unconditionally, so
// returning the same address/value pair here is enough to produce that
// echo — see DESIGN.md OQ-2).
func (d *Dispatcher) handleWriteSingleCoil(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	if len(data) != 4 {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	address := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	var on bool
	switch value {
	case 0xFF00:
		on = true
	case 0x0000:
		on = false
	default:
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}

	sl.WriteSingleCoil(address, on)
	d.Persist.OnWrite(d.Store, sl.ID, store.KindCoil, address, 1)

	echo := make([]byte, 4)
	copy(echo, data)
	return echo, 0, true
}

// handleWriteSingleRegister implements §4.4.4 for function code 0x06.
func (d *Dispatcher) handleWriteSingleRegister(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	if len(data) != 4 {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	address := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	sl.WriteSingleRegister(address, value)
	d.Persist.OnWrite(d.Store, sl.ID, store.KindHolding, address, 1)

	echo := make([]byte, 4)
	copy(echo, data)
	return echo, 0, true
}

// handleWriteMultipleCoils implements §4.4.5 for function code 0x0F.
func (d *Dispatcher) handleWriteMultipleCoils(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	if len(data) < 5 {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	byteCount := data[4]
	payload := data[5:]

	if quantity < 1 || quantity > rtu.MaxWriteCoils {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	if int(byteCount) != (int(quantity)+7)/8 || len(payload) != int(byteCount) {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}

	if err := sl.WriteMultipleCoils(address, quantity, payload); err != nil {
		return nil, modbus.ExceptionCodeIllegalDataAddress, false
	}
	d.Persist.OnWrite(d.Store, sl.ID, store.KindCoil, address, quantity)

	return addrQuantityResponse(address, quantity), 0, true
}

// handleWriteMultipleRegisters implements §4.4.6 for function code 0x10.
func (d *Dispatcher) handleWriteMultipleRegisters(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	if len(data) < 5 {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	byteCount := data[4]
	payload := data[5:]

	if quantity < 1 || quantity > rtu.MaxWriteRegisters {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	if int(byteCount) != int(quantity)*2 || len(payload) != int(byteCount) {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}

	if err := sl.WriteMultipleRegisters(address, quantity, payload); err != nil {
		return nil, modbus.ExceptionCodeIllegalDataAddress, false
	}
	d.Persist.OnWrite(d.Store, sl.ID, store.KindHolding, address, quantity)

	return addrQuantityResponse(address, quantity), 0, true
}

// handleReadFileRecord implements §4.4.7 for function code 0x14.
func (d *Dispatcher) handleReadFileRecord(sl *store.Slave, data []byte) ([]byte, modbus.Exception, bool) {
	// data = [byte_count, reference_type, file_number(2), record_number(2), record_length(2)] = 8 bytes.
	if len(data) != 8 {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}
	byteCount := data[0]
	referenceType := data[1]
	fileNumber := binary.BigEndian.Uint16(data[2:4])
	recordNumber := binary.BigEndian.Uint16(data[4:6])
	recordLength := binary.BigEndian.Uint16(data[6:8])

	if byteCount != rtu.FileRecordByteCount || referenceType != rtu.FileRecordRefType {
		return nil, modbus.ExceptionCodeIllegalDataValue, false
	}

	body := sl.ReadFileRecord(fileNumber, recordNumber, recordLength)

	fileResponseLength := len(body) + 1
	responseDataLength := fileResponseLength + 1

	resp := make([]byte, 0, 2+len(body))
	resp = append(resp, byte(responseDataLength), byte(fileResponseLength), referenceType)
	resp = append(resp, body...)
	return resp, 0, true
}

func decodeAddrQuantity(data []byte) (address, quantity uint16, ok bool) {
	if len(data) != 4 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4]), true
}

func prefixByteCount(body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(len(body))
	copy(out[1:], body)
	return out
}

func addrQuantityResponse(address, quantity uint16) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], address)
	binary.BigEndian.PutUint16(out[2:4], quantity)
	return out
}
