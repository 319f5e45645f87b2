// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-industrial-server/internal/store"
)

// SQLStorage persists per-register rows through database/sql, driven
// by the mattn/go-sqlite3 driver registered under "sqlite3" in
// main.go. Unlike the teacher's single-slave schema, every row carries
// a slave_id column so one database backs every configured slave.
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
}

// NewSQLStorage returns a SQLStorage that opens driver/dsn lazily on
// the first Load, Save or OnWrite call.
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{driver: driver, dsn: dsn}
}

func (s *SQLStorage) open() error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("persistence: open %s: %w", s.driver, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("persistence: init schema: %w", err)
	}
	s.db = db
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS modbus_registers (
			slave_id   INTEGER,
			table_type INTEGER,
			address    INTEGER,
			value      INTEGER,
			PRIMARY KEY (slave_id, table_type, address)
		);
		CREATE TABLE IF NOT EXISTS modbus_file_records (
			slave_id INTEGER,
			file_number INTEGER,
			record_number INTEGER,
			data BLOB,
			PRIMARY KEY (slave_id, file_number, record_number)
		);
		CREATE TABLE IF NOT EXISTS modbus_slaves (
			slave_id INTEGER PRIMARY KEY,
			name TEXT,
			description TEXT
		);
	`)
	return err
}

// Load reads every row back into one SlaveSnapshot per distinct
// slave_id.
func (s *SQLStorage) Load() ([]SlaveSnapshot, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	bySlave := make(map[byte]*SlaveSnapshot)
	get := func(id byte) *SlaveSnapshot {
		if snap, ok := bySlave[id]; ok {
			return snap
		}
		snap := &SlaveSnapshot{
			SlaveID:          id,
			HoldingRegisters: make(map[uint16]uint16),
			InputRegisters:   make(map[uint16]uint16),
			Coils:            make(map[uint16]bool),
			DiscreteInputs:   make(map[uint16]bool),
			Files:            make(map[store.FileKey][]byte),
		}
		bySlave[id] = snap
		return snap
	}

	nameRows, err := s.db.Query(`SELECT slave_id, name, description FROM modbus_slaves`)
	if err != nil {
		return nil, fmt.Errorf("persistence: query modbus_slaves: %w", err)
	}
	for nameRows.Next() {
		var id int
		var name, desc string
		if err := nameRows.Scan(&id, &name, &desc); err != nil {
			nameRows.Close()
			return nil, err
		}
		snap := get(byte(id))
		snap.Name, snap.Description = name, desc
	}
	nameRows.Close()

	regRows, err := s.db.Query(`SELECT slave_id, table_type, address, value FROM modbus_registers`)
	if err != nil {
		return nil, fmt.Errorf("persistence: query modbus_registers: %w", err)
	}
	for regRows.Next() {
		var id, tableType, addr, val int
		if err := regRows.Scan(&id, &tableType, &addr, &val); err != nil {
			regRows.Close()
			return nil, err
		}
		snap := get(byte(id))
		switch store.Kind(tableType) {
		case store.KindHolding:
			snap.HoldingRegisters[uint16(addr)] = uint16(val)
		case store.KindInput:
			snap.InputRegisters[uint16(addr)] = uint16(val)
		case store.KindCoil:
			snap.Coils[uint16(addr)] = val != 0
		case store.KindDiscrete:
			snap.DiscreteInputs[uint16(addr)] = val != 0
		}
	}
	regRows.Close()

	fileRows, err := s.db.Query(`SELECT slave_id, file_number, record_number, data FROM modbus_file_records`)
	if err != nil {
		return nil, fmt.Errorf("persistence: query modbus_file_records: %w", err)
	}
	for fileRows.Next() {
		var id, file, record int
		var data []byte
		if err := fileRows.Scan(&id, &file, &record, &data); err != nil {
			fileRows.Close()
			return nil, err
		}
		snap := get(byte(id))
		snap.Files[store.FileKey{File: uint16(file), Record: uint16(record)}] = data
	}
	fileRows.Close()

	out := make([]SlaveSnapshot, 0, len(bySlave))
	for _, snap := range bySlave {
		out = append(out, *snap)
	}
	return out, nil
}

// Save upserts every slave's metadata and every present register/file
// record; it does not delete rows for keys the in-memory model has
// since dropped, matching the teacher's additive-only upsert policy.
func (s *SQLStorage) Save(st *store.Store) error {
	if err := s.open(); err != nil {
		return err
	}
	for _, id := range st.IDs() {
		sl, ok := st.Get(id)
		if !ok {
			continue
		}
		d := sl.Snapshot()
		if err := s.upsertSlave(d); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStorage) upsertSlave(d store.Data) error {
	if _, err := s.db.Exec(
		`INSERT INTO modbus_slaves (slave_id, name, description) VALUES (?, ?, ?)
		 ON CONFLICT(slave_id) DO UPDATE SET name=excluded.name, description=excluded.description`,
		d.SlaveID, d.Name, d.Description); err != nil {
		return fmt.Errorf("persistence: upsert slave %d: %w", d.SlaveID, err)
	}
	for addr, v := range d.HoldingRegisters {
		if err := s.upsertRegister(d.SlaveID, store.KindHolding, addr, int64(v)); err != nil {
			return err
		}
	}
	for addr, v := range d.InputRegisters {
		if err := s.upsertRegister(d.SlaveID, store.KindInput, addr, int64(v)); err != nil {
			return err
		}
	}
	for addr, v := range d.Coils {
		if err := s.upsertRegister(d.SlaveID, store.KindCoil, addr, boolToInt(v)); err != nil {
			return err
		}
	}
	for addr, v := range d.DiscreteInputs {
		if err := s.upsertRegister(d.SlaveID, store.KindDiscrete, addr, boolToInt(v)); err != nil {
			return err
		}
	}
	for key, data := range d.Files {
		if err := s.upsertFileRecord(d.SlaveID, key, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStorage) upsertRegister(slaveID byte, kind store.Kind, addr uint16, val int64) error {
	_, err := s.db.Exec(
		`INSERT INTO modbus_registers (slave_id, table_type, address, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(slave_id, table_type, address) DO UPDATE SET value=excluded.value`,
		slaveID, int(kind), addr, val)
	return err
}

func (s *SQLStorage) upsertFileRecord(slaveID byte, key store.FileKey, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO modbus_file_records (slave_id, file_number, record_number, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(slave_id, file_number, record_number) DO UPDATE SET data=excluded.data`,
		slaveID, key.File, key.Record, data)
	return err
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// OnWrite upserts just the changed range, re-reading current values
// from s so a single write request persists in one small batch rather
// than a full-store rewrite.
func (s *SQLStorage) OnWrite(st *store.Store, slaveID byte, kind store.Kind, address, quantity uint16) {
	if err := s.open(); err != nil {
		slog.Error("persistence: sql open failed", "err", err)
		return
	}
	sl, ok := st.Get(slaveID)
	if !ok {
		return
	}

	for i := 0; i < int(quantity); i++ {
		addr := address + uint16(i)
		var val int64
		switch kind {
		case store.KindHolding:
			b, _ := sl.ReadHoldingRegisters(addr, 1)
			val = int64(b[0])<<8 | int64(b[1])
		case store.KindInput:
			b, _ := sl.ReadInputRegisters(addr, 1)
			val = int64(b[0])<<8 | int64(b[1])
		case store.KindCoil:
			b, _ := sl.ReadCoils(addr, 1)
			val = boolToInt(b[0]&1 != 0)
		case store.KindDiscrete:
			b, _ := sl.ReadDiscreteInputs(addr, 1)
			val = boolToInt(b[0]&1 != 0)
		}
		if err := s.upsertRegister(slaveID, kind, addr, val); err != nil {
			slog.Error("persistence: sql upsert failed", "slave", slaveID, "kind", kind, "addr", addr, "err", err)
		}
	}
}

// Close closes the underlying database handle.
func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
