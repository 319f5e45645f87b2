// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence gives the slave store an optional, swappable
// backing store: memory (none), file, mmap, or SQL. Every backend
// implements the same narrow Storage interface so the caller does not
// know or care which one is configured.
package persistence

import "github.com/ffutop/modbus-industrial-server/internal/store"

// SlaveSnapshot is the serializable shape of one slave's data, used by
// every backend below in place of store.Data (which carries live
// statistics that have no business on disk).
type SlaveSnapshot struct {
	SlaveID          byte
	Name             string
	Description      string
	HoldingRegisters map[uint16]uint16
	InputRegisters   map[uint16]uint16
	Coils            map[uint16]bool
	DiscreteInputs   map[uint16]bool
	Files            map[store.FileKey][]byte
}

func fromData(d store.Data) SlaveSnapshot {
	return SlaveSnapshot{
		SlaveID:          d.SlaveID,
		Name:             d.Name,
		Description:      d.Description,
		HoldingRegisters: d.HoldingRegisters,
		InputRegisters:   d.InputRegisters,
		Coils:            d.Coils,
		DiscreteInputs:   d.DiscreteInputs,
		Files:            d.Files,
	}
}

func (s SlaveSnapshot) toData() store.Data {
	return store.Data{
		SlaveID:          s.SlaveID,
		Name:             s.Name,
		Description:      s.Description,
		HoldingRegisters: s.HoldingRegisters,
		InputRegisters:   s.InputRegisters,
		Coils:            s.Coils,
		DiscreteInputs:   s.DiscreteInputs,
		Files:            s.Files,
	}
}

// Storage persists the slave store's data model across restarts. Load
// is called once at startup to repopulate a Store; OnWrite is called
// by the dispatcher after every successful write request from the wire
// so real-time backends (file, mmap, SQL) can flush immediately.
// Administrative writes through Store.Update do not trigger OnWrite.
type Storage interface {
	// Load returns every previously persisted slave snapshot. An empty
	// (possibly nil) slice and a nil error means "nothing persisted yet".
	Load() ([]SlaveSnapshot, error)

	// Save writes the full current state of every slave in s.
	Save(s *store.Store) error

	// OnWrite is called after a successful write to slaveID's kind
	// sub-store at [address, address+quantity). Backends that persist
	// synchronously re-read the current value from s.
	OnWrite(s *store.Store, slaveID byte, kind store.Kind, address, quantity uint16)
}
