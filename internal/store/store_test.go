// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import (
	"errors"
	"testing"
)

func TestStoreAddRemove(t *testing.T) {
	s := New(2)

	if _, err := s.Add(0, "bad", ""); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Add(0) error = %v, want ErrInvalidID", err)
	}
	if _, err := s.Add(248, "bad", ""); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("Add(248) error = %v, want ErrInvalidID", err)
	}

	if _, err := s.Add(1, "a", "first"); err != nil {
		t.Fatalf("Add(1) unexpected error: %v", err)
	}
	if _, err := s.Add(1, "a", "dup"); !errors.Is(err, ErrIDInUse) {
		t.Fatalf("Add(1) dup error = %v, want ErrIDInUse", err)
	}
	if _, err := s.Add(2, "b", "second"); err != nil {
		t.Fatalf("Add(2) unexpected error: %v", err)
	}
	if _, err := s.Add(3, "c", "third"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Add(3) error = %v, want ErrCapacityExceeded", err)
	}

	if got := s.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	s.Remove(1)
	if got := s.Len(); got != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", got)
	}
	if _, ok := s.Get(1); ok {
		t.Fatalf("Get(1) found a slave after Remove")
	}

	// Removing an absent id is a no-op, not an error.
	s.Remove(99)
}

func TestSlaveCoilsRoundTrip(t *testing.T) {
	s := New(0)
	sl, err := s.Add(1, "x", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Absent coils read as false.
	bits, err := sl.ReadCoils(0, 8)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	if bits[0] != 0 {
		t.Fatalf("ReadCoils on absent keys = %08b, want all zero", bits[0])
	}

	sl.WriteSingleCoil(0, true)
	sl.WriteSingleCoil(3, true)

	bits, err = sl.ReadCoils(0, 8)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	want := byte(1<<0 | 1<<3)
	if bits[0] != want {
		t.Fatalf("ReadCoils = %08b, want %08b", bits[0], want)
	}
}

func TestSlaveWriteMultipleCoils(t *testing.T) {
	s := New(0)
	sl, _ := s.Add(1, "x", "")

	// 10 coils packed into 2 bytes: 0b00000101, 0b00000001 -> bits 0,2,8 set.
	if err := sl.WriteMultipleCoils(0, 10, []byte{0x05, 0x01}); err != nil {
		t.Fatalf("WriteMultipleCoils: %v", err)
	}

	got, err := sl.ReadCoils(0, 10)
	if err != nil {
		t.Fatalf("ReadCoils: %v", err)
	}
	want := []byte{0x05, 0x01}
	if got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ReadCoils = %v, want %v", got, want)
	}
}

func TestSlaveHoldingRegistersRoundTrip(t *testing.T) {
	s := New(0)
	sl, _ := s.Add(1, "x", "")

	sl.WriteSingleRegister(2014, 0x3F80)

	got, err := sl.ReadHoldingRegisters(2014, 2)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	// Register 2014 present, 2015 absent (reads 0).
	want := []byte{0x3F, 0x80, 0x00, 0x00}
	if string(got) != string(want) {
		t.Fatalf("ReadHoldingRegisters = %x, want %x", got, want)
	}
}

func TestSlaveWriteMultipleRegisters(t *testing.T) {
	s := New(0)
	sl, _ := s.Add(1, "x", "")

	data := []byte{0x00, 0x0A, 0x00, 0x14}
	if err := sl.WriteMultipleRegisters(100, 2, data); err != nil {
		t.Fatalf("WriteMultipleRegisters: %v", err)
	}

	got, err := sl.ReadHoldingRegisters(100, 2)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("ReadHoldingRegisters = %x, want %x", got, data)
	}
}

func TestSlaveFileRecordTruncateAndPad(t *testing.T) {
	s := New(0)
	sl, _ := s.Add(1, "x", "")

	sl.WriteFileRecord(9, 1, []byte("ABCD"))

	// record_length = 4 -> 8 bytes expected, source is 4 bytes -> zero pad.
	got := sl.ReadFileRecord(9, 1, 4)
	want := []byte{'A', 'B', 'C', 'D', 0, 0, 0, 0}
	if string(got) != string(want) {
		t.Fatalf("ReadFileRecord pad = %x, want %x", got, want)
	}

	// record_length = 1 -> 2 bytes expected, source is longer -> truncate.
	got = sl.ReadFileRecord(9, 1, 1)
	want = []byte{'A', 'B'}
	if string(got) != string(want) {
		t.Fatalf("ReadFileRecord truncate = %x, want %x", got, want)
	}

	// Absent record reads as empty, independent of record_length.
	got = sl.ReadFileRecord(9, 2, 2)
	if len(got) != 0 {
		t.Fatalf("ReadFileRecord absent = %x, want empty", got)
	}
}

func TestStoreUpdateAdministrative(t *testing.T) {
	s := New(0)
	sl, _ := s.Add(1, "x", "")

	if err := s.Update(1, KindHolding, 5, 42); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := sl.ReadHoldingRegisters(5, 1)
	if got[1] != 42 {
		t.Fatalf("holding[5] = %d, want 42", got[1])
	}

	if err := s.Update(1, KindCoil, 0, 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	bits, _ := sl.ReadCoils(0, 1)
	if bits[0]&1 == 0 {
		t.Fatalf("coil[0] not set after Update")
	}

	if err := s.Update(2, KindHolding, 0, 1); !errors.Is(err, ErrUnknownSlave) {
		t.Fatalf("Update on unknown slave error = %v, want ErrUnknownSlave", err)
	}
}

func TestSlaveSnapshotDistinguishesAbsentFromZero(t *testing.T) {
	s := New(0)
	sl, _ := s.Add(1, "x", "desc")
	sl.WriteSingleRegister(10, 0)

	data := sl.Snapshot()
	if v, ok := data.HoldingRegisters[10]; !ok || v != 0 {
		t.Fatalf("holding[10] present-and-zero lost in snapshot: ok=%v v=%v", ok, v)
	}
	if _, ok := data.HoldingRegisters[11]; ok {
		t.Fatalf("holding[11] should be absent from the snapshot, found present")
	}
}

func TestStatsCounters(t *testing.T) {
	var st Stats
	st.IncSuccess()
	st.IncSuccess()
	st.IncFailed()
	st.AddBytesReceived(8)
	st.AddBytesSent(5)
	st.Touch(1700000000)

	snap := st.Snapshot()
	if snap.TotalRequests != 3 {
		t.Fatalf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.Successful != 2 || snap.Failed != 1 {
		t.Fatalf("Successful=%d Failed=%d, want 2/1", snap.Successful, snap.Failed)
	}
	if snap.BytesReceived != 8 || snap.BytesSent != 5 {
		t.Fatalf("bytes received=%d sent=%d, want 8/5", snap.BytesReceived, snap.BytesSent)
	}
	if snap.LastRequestUnix != 1700000000 {
		t.Fatalf("LastRequestUnix = %d, want 1700000000", snap.LastRequestUnix)
	}
}
