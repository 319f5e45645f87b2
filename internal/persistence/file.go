// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-industrial-server/internal/store"
)

// FileStorage persists every slave's sparse sub-stores as a single gob
// blob, rewritten in full on every OnWrite. A dense byte layout (the
// teacher's approach) cannot represent "absent" keys, so the sparse
// maps are snapshotted instead of memory-mapped onto fixed offsets.
type FileStorage struct {
	path string
	file *os.File
}

// NewFileStorage returns a FileStorage backed by the file at path,
// created if it does not already exist.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load opens (creating if necessary) the backing file and decodes its
// gob-encoded snapshot list. An empty or missing file yields no error
// and zero snapshots.
func (fs *FileStorage) Load() ([]SlaveSnapshot, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", fs.path, err)
	}
	fs.file = f

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("persistence: read %s: %w", fs.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var snapshots []SlaveSnapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snapshots); err != nil {
		return nil, fmt.Errorf("persistence: decode %s: %w", fs.path, err)
	}
	return snapshots, nil
}

// Save rewrites the backing file with the current state of every slave
// in s.
func (fs *FileStorage) Save(s *store.Store) error {
	return fs.sync(s)
}

// OnWrite rewrites the backing file in full. The store's sparse maps
// make incremental on-disk updates impractical; spec.md only requires
// that writes survive a restart, not that persistence be cheap.
func (fs *FileStorage) OnWrite(s *store.Store, slaveID byte, kind store.Kind, address, quantity uint16) {
	if err := fs.sync(s); err != nil {
		slog.Error("persistence: file sync failed", "err", err)
	}
}

func (fs *FileStorage) sync(s *store.Store) error {
	if fs.file == nil {
		return nil
	}

	snapshots := collect(s)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshots); err != nil {
		return fmt.Errorf("persistence: encode: %w", err)
	}

	if err := fs.file.Truncate(0); err != nil {
		return fmt.Errorf("persistence: truncate: %w", err)
	}
	if _, err := fs.file.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("persistence: write: %w", err)
	}
	return fs.file.Sync()
}

// Close releases the backing file handle.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	return fs.file.Close()
}

func collect(s *store.Store) []SlaveSnapshot {
	ids := s.IDs()
	out := make([]SlaveSnapshot, 0, len(ids))
	for _, id := range ids {
		sl, ok := s.Get(id)
		if !ok {
			continue
		}
		out = append(out, fromData(sl.Snapshot()))
	}
	return out
}
