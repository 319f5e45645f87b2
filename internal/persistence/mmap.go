// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/ffutop/modbus-industrial-server/internal/store"
)

// MmapStorage persists the gob-encoded snapshot list through a
// memory-mapped file region instead of syscall.Mmap/Msync directly,
// using github.com/edsrzf/mmap-go for the map/unmap/flush calls.
//
// The region holds a 4-byte little-endian length prefix followed by
// the gob payload, remapped to a larger size whenever the payload
// grows past the current mapping.
type MmapStorage struct {
	path   string
	file   *os.File
	region mmap.MMap
}

// NewMmapStorage returns an MmapStorage backed by the file at path.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

const mmapLenPrefix = 4

// Load opens (creating if necessary) the backing file, maps it, and
// decodes its length-prefixed gob payload. An empty file yields no
// snapshots.
func (ms *MmapStorage) Load() ([]SlaveSnapshot, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", ms.path, err)
	}
	ms.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() < mmapLenPrefix {
		if err := f.Truncate(mmapLenPrefix); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: truncate %s: %w", ms.path, err)
		}
	}

	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: mmap %s: %w", ms.path, err)
	}
	ms.region = region

	n := binary.LittleEndian.Uint32(region[:mmapLenPrefix])
	if n == 0 {
		return nil, nil
	}
	if int(n)+mmapLenPrefix > len(region) {
		return nil, fmt.Errorf("persistence: corrupt length prefix in %s", ms.path)
	}

	var snapshots []SlaveSnapshot
	r := bytes.NewReader(region[mmapLenPrefix : mmapLenPrefix+int(n)])
	if err := gob.NewDecoder(r).Decode(&snapshots); err != nil {
		return nil, fmt.Errorf("persistence: decode %s: %w", ms.path, err)
	}
	return snapshots, nil
}

// Save re-encodes and flushes the current state of every slave in s.
func (ms *MmapStorage) Save(s *store.Store) error {
	return ms.sync(s)
}

// OnWrite re-encodes and flushes, mirroring FileStorage's real-time
// full-rewrite policy.
func (ms *MmapStorage) OnWrite(s *store.Store, slaveID byte, kind store.Kind, address, quantity uint16) {
	if err := ms.sync(s); err != nil {
		slog.Error("persistence: mmap sync failed", "err", err)
	}
}

func (ms *MmapStorage) sync(s *store.Store) error {
	if ms.region == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(collect(s)); err != nil {
		return fmt.Errorf("persistence: encode: %w", err)
	}
	payload := buf.Bytes()
	need := mmapLenPrefix + len(payload)

	if need > len(ms.region) {
		if err := ms.region.Unmap(); err != nil {
			return fmt.Errorf("persistence: unmap: %w", err)
		}
		if err := ms.file.Truncate(int64(need)); err != nil {
			return fmt.Errorf("persistence: truncate: %w", err)
		}
		region, err := mmap.Map(ms.file, mmap.RDWR, 0)
		if err != nil {
			return fmt.Errorf("persistence: remap: %w", err)
		}
		ms.region = region
	}

	binary.LittleEndian.PutUint32(ms.region[:mmapLenPrefix], uint32(len(payload)))
	copy(ms.region[mmapLenPrefix:], payload)
	return ms.region.Flush()
}

// Close unmaps and closes the backing file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.region != nil {
		err = ms.region.Unmap()
		ms.region = nil
	}
	if ms.file != nil {
		if cerr := ms.file.Close(); err == nil {
			err = cerr
		}
		ms.file = nil
	}
	return err
}

var _ io.Closer = (*MmapStorage)(nil)
