// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Slave is one emulated device: an identifier, descriptive metadata,
// four sparse register/coil maps, a file-record space, and its own
// statistics. Every sub-store is a map rather than a dense array so
// that "absent" and "present with value zero" stay distinguishable,
// per spec.md §9.
type Slave struct {
	ID          byte
	Name        string
	Description string

	mu       sync.RWMutex
	holding  map[uint16]uint16
	input    map[uint16]uint16
	coils    map[uint16]bool
	discrete map[uint16]bool
	files    map[FileKey][]byte

	Stats Stats
}

func newSlave(id byte, name, description string) *Slave {
	return &Slave{
		ID:          id,
		Name:        name,
		Description: description,
		holding:     make(map[uint16]uint16),
		input:       make(map[uint16]uint16),
		coils:       make(map[uint16]bool),
		discrete:    make(map[uint16]bool),
		files:       make(map[FileKey][]byte),
	}
}

// ErrAddressOverflow is returned when address+quantity-1 would wrap
// past the 16-bit key space.
var ErrAddressOverflow = fmt.Errorf("store: address range overflows 16-bit key space")

func rangeOK(address, quantity uint16) error {
	if int(address)+int(quantity)-1 > 0xFFFF {
		return ErrAddressOverflow
	}
	return nil
}

// ReadCoils packs quantity coils starting at address into Modbus
// bit-packed bytes: bit 0 of the first byte is the lowest address,
// trailing bits in the last byte are zero. Absent keys read as false.
func (s *Slave) ReadCoils(address, quantity uint16) ([]byte, error) {
	return s.readBits(s.coils, address, quantity)
}

// ReadDiscreteInputs is ReadCoils over the discrete-input sub-store.
func (s *Slave) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	return s.readBits(s.discrete, address, quantity)
}

func (s *Slave) readBits(table map[uint16]bool, address, quantity uint16) ([]byte, error) {
	if err := rangeOK(address, quantity); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byteCount := (int(quantity) + 7) / 8
	out := make([]byte, byteCount)
	for i := 0; i < int(quantity); i++ {
		if table[address+uint16(i)] {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out, nil
}

// WriteSingleCoil sets coils[address] from a wire value that must be
// exactly 0xFF00 (on) or 0x0000 (off); the caller validates that
// before calling.
func (s *Slave) WriteSingleCoil(address uint16, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coils[address] = on
}

// WriteMultipleCoils unpacks Modbus bit-packed data into coils starting
// at address, quantity bits wide.
func (s *Slave) WriteMultipleCoils(address, quantity uint16, data []byte) error {
	if err := rangeOK(address, quantity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < int(quantity); i++ {
		bit := (data[i/8] >> uint(i%8)) & 1
		s.coils[address+uint16(i)] = bit != 0
	}
	return nil
}

// ReadHoldingRegisters returns quantity 16-bit values starting at
// address, big-endian, high byte first. Absent keys read as zero.
func (s *Slave) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return s.readWords(s.holding, address, quantity)
}

// ReadInputRegisters is ReadHoldingRegisters over the input-register
// sub-store.
func (s *Slave) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return s.readWords(s.input, address, quantity)
}

func (s *Slave) readWords(table map[uint16]uint16, address, quantity uint16) ([]byte, error) {
	if err := rangeOK(address, quantity); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(out[i*2:], table[address+uint16(i)])
	}
	return out, nil
}

// WriteSingleRegister sets holding[address] = value.
func (s *Slave) WriteSingleRegister(address, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holding[address] = value
}

// WriteMultipleRegisters decodes quantity big-endian 16-bit values from
// data and stores them starting at address.
func (s *Slave) WriteMultipleRegisters(address, quantity uint16, data []byte) error {
	if err := rangeOK(address, quantity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < int(quantity); i++ {
		s.holding[address+uint16(i)] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

// ReadFileRecord returns the stored bytes for (file, record) normalized
// to exactly 2*recordLength bytes by truncation or trailing-zero
// padding. A record that was never written produces an empty payload,
// independent of recordLength — normalization only applies to a record
// that actually exists, per spec.md §4.4.7's empty-record case.
func (s *Slave) ReadFileRecord(file, record, recordLength uint16) []byte {
	s.mu.RLock()
	raw, ok := s.files[FileKey{File: file, Record: record}]
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	out := make([]byte, int(recordLength)*2)
	copy(out, raw)
	return out
}

// WriteFileRecord stores raw bytes for (file, record), replacing any
// previous content. It is an administrative operation; no wire
// function code in this server writes file records.
func (s *Slave) WriteFileRecord(file, record uint16, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.files[FileKey{File: file, Record: record}] = cp
}

func (s *Slave) setRaw(kind Kind, addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindHolding:
		s.holding[addr] = value
	case KindInput:
		s.input[addr] = value
	case KindCoil:
		s.coils[addr] = value != 0
	case KindDiscrete:
		s.discrete[addr] = value != 0
	}
}

// Data is the snapshot shape returned by the slave-data query interface
// of spec.md §6 (get_slave_data): everything about one slave, copied
// out from under its lock.
type Data struct {
	SlaveID          byte
	Name             string
	Description      string
	HoldingRegisters map[uint16]uint16
	InputRegisters   map[uint16]uint16
	Coils            map[uint16]bool
	DiscreteInputs   map[uint16]bool
	Files            map[FileKey][]byte
	Stats            StatsSnapshot
}

// Snapshot copies out the slave's full current state for the
// administrative query interface. Absent keys are simply absent from
// the returned maps, preserving the absent-vs-zero distinction.
func (s *Slave) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Data{
		SlaveID:          s.ID,
		Name:             s.Name,
		Description:      s.Description,
		HoldingRegisters: make(map[uint16]uint16, len(s.holding)),
		InputRegisters:   make(map[uint16]uint16, len(s.input)),
		Coils:            make(map[uint16]bool, len(s.coils)),
		DiscreteInputs:   make(map[uint16]bool, len(s.discrete)),
		Files:            make(map[FileKey][]byte, len(s.files)),
		Stats:            s.Stats.Snapshot(),
	}
	for k, v := range s.holding {
		d.HoldingRegisters[k] = v
	}
	for k, v := range s.input {
		d.InputRegisters[k] = v
	}
	for k, v := range s.coils {
		d.Coils[k] = v
	}
	for k, v := range s.discrete {
		d.DiscreteInputs[k] = v
	}
	for k, v := range s.files {
		cp := make([]byte, len(v))
		copy(cp, v)
		d.Files[k] = cp
	}
	return d
}

// Restore copies every key in data into the slave's sub-stores,
// replacing the value of a key already present; keys absent from data
// are left as they are. It is used to repopulate a freshly constructed
// Slave from a prior persistence snapshot.
func (s *Slave) Restore(data Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range data.HoldingRegisters {
		s.holding[k] = v
	}
	for k, v := range data.InputRegisters {
		s.input[k] = v
	}
	for k, v := range data.Coils {
		s.coils[k] = v
	}
	for k, v := range data.DiscreteInputs {
		s.discrete[k] = v
	}
	for k, v := range data.Files {
		cp := make([]byte, len(v))
		copy(cp, v)
		s.files[k] = cp
	}
}

// SlaveData locates a slave by id and returns its snapshot, matching
// spec.md §6's get_slave_data(id) interface: absent when unknown.
func (s *Store) SlaveData(id byte) (Data, bool) {
	sl, ok := s.Get(id)
	if !ok {
		return Data{}, false
	}
	return sl.Snapshot(), true
}
