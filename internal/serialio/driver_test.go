// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialio

import (
	"bytes"
	"context"
	"testing"
)

func TestDriver_ReadFullExact(t *testing.T) {
	port := &mockPort{Reader: bytes.NewReader([]byte{0xAA, 0xBB, 0xCC}), Writer: &bytes.Buffer{}}
	d := NewDriverWithPort(port)

	buf := make([]byte, 3)
	n, err := d.ReadFull(context.Background(), buf)
	if err != nil || n != 3 {
		t.Fatalf("ReadFull() = %d, %v; want 3, nil", n, err)
	}
	if !bytes.Equal(buf, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("ReadFull() buf = % X", buf)
	}
}

func TestDriver_ReadFullTimeoutReturnsPartial(t *testing.T) {
	reader := &timeoutReader{r: bytes.NewReader([]byte{0xAA})}
	port := &mockPort{Reader: reader, Writer: &bytes.Buffer{}}
	d := NewDriverWithPort(port)

	buf := make([]byte, 4)
	n, err := d.ReadFull(context.Background(), buf)
	if err != nil || n != 1 {
		t.Fatalf("ReadFull() = %d, %v; want 1, nil", n, err)
	}
}

func TestDriver_WriteFull(t *testing.T) {
	out := &bytes.Buffer{}
	port := &mockPort{Reader: bytes.NewReader(nil), Writer: out}
	d := NewDriverWithPort(port)

	frame := []byte{0x01, 0x03, 0x02, 0x00, 0x01}
	if err := d.Write(context.Background(), frame); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if !bytes.Equal(out.Bytes(), frame) {
		t.Fatalf("written = % X, want % X", out.Bytes(), frame)
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(timeoutErr{}) {
		t.Fatalf("isTimeout(timeoutErr{}) = false, want true")
	}
	if isTimeout(errTimeout) {
		t.Fatalf("isTimeout(errTimeout) = true, want false (errTimeout has no Timeout() method)")
	}
}
