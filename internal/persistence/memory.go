// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/modbus-industrial-server/internal/store"

// MemoryStorage is a no-op backend: nothing survives a restart. It is
// the default, used when persistence.backend is empty or "memory".
type MemoryStorage struct{}

// NewMemoryStorage returns a Storage that persists nothing.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (MemoryStorage) Load() ([]SlaveSnapshot, error) { return nil, nil }

func (MemoryStorage) Save(*store.Store) error { return nil }

func (MemoryStorage) OnWrite(*store.Store, byte, store.Kind, uint16, uint16) {}
