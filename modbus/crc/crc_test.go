// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"testing"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestAppendAndVerify(t *testing.T) {
	frame := Append([]byte{0x01, 0x03, 0x07, 0xDE, 0x00, 0x02})
	if !Verify(frame) {
		t.Fatalf("Verify() = false for freshly appended frame %x", frame)
	}

	corrupt := append([]byte(nil), frame...)
	corrupt[len(corrupt)-1] ^= 0xFF
	if Verify(corrupt) {
		t.Fatalf("Verify() = true for corrupted frame %x", corrupt)
	}
}

func TestVerifyShortFrame(t *testing.T) {
	if Verify([]byte{0x01}) {
		t.Fatalf("Verify() = true for a frame shorter than a CRC")
	}
}
