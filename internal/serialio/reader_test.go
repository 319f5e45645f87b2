// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialio

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/ffutop/modbus-industrial-server/modbus/crc"
)

// mockPort pairs an io.Reader and io.Writer behind a no-op Close, the
// same shape transport/rtu/server_test.go uses to drive a scan loop
// without real hardware.
type mockPort struct {
	io.Reader
	io.Writer
}

func (m *mockPort) Close() error { return nil }

// timeoutErr simulates the per-read timeout a real serial port reports
// when no more bytes arrive in time, as opposed to bytes.Reader's
// io.EOF (which would make the driver think the port itself closed).
type timeoutErr struct{}

func (timeoutErr) Error() string { return "serialio: simulated read timeout" }
func (timeoutErr) Timeout() bool { return true }

// timeoutReader wraps a bytes.Reader so that running out of input
// reports timeoutErr instead of io.EOF.
type timeoutReader struct{ r *bytes.Reader }

func (t *timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err == io.EOF {
		return n, timeoutErr{}
	}
	return n, err
}

func TestFrameReader_FixedLengthFrame(t *testing.T) {
	frame := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	driver := NewDriverWithPort(&mockPort{Reader: bytes.NewReader(frame), Writer: &bytes.Buffer{}})
	r := NewFrameReader(driver)

	got, ok, err := r.ReadFrame(context.Background())
	if err != nil || !ok {
		t.Fatalf("ReadFrame() = %v, %v, %v", got, ok, err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("ReadFrame() = % X, want % X", got, frame)
	}
}

func TestFrameReader_WriteMultipleRegistersFrame(t *testing.T) {
	frame := crc.Append([]byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x11, 0x22, 0x33, 0x44})
	driver := NewDriverWithPort(&mockPort{Reader: bytes.NewReader(frame), Writer: &bytes.Buffer{}})
	r := NewFrameReader(driver)

	got, ok, err := r.ReadFrame(context.Background())
	if err != nil || !ok {
		t.Fatalf("ReadFrame() = %v, %v, %v", got, ok, err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("ReadFrame() = % X, want % X", got, frame)
	}
}

func TestFrameReader_ReadFileRecordFrame(t *testing.T) {
	frame := crc.Append([]byte{0x01, 0x14, 0x07, 0x06, 0x00, 0x09, 0x00, 0x06, 0x00, 0x02})
	driver := NewDriverWithPort(&mockPort{Reader: bytes.NewReader(frame), Writer: &bytes.Buffer{}})
	r := NewFrameReader(driver)

	got, ok, err := r.ReadFrame(context.Background())
	if err != nil || !ok {
		t.Fatalf("ReadFrame() = %v, %v, %v", got, ok, err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("ReadFrame() = % X, want % X", got, frame)
	}
}

func TestFrameReader_UnsupportedFunctionDiscarded(t *testing.T) {
	driver := NewDriverWithPort(&mockPort{Reader: bytes.NewReader([]byte{0x01, 0x63}), Writer: &bytes.Buffer{}})
	r := NewFrameReader(driver)

	_, ok, err := r.ReadFrame(context.Background())
	if err != nil || ok {
		t.Fatalf("ReadFrame() on unsupported function = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestFrameReader_ShortHeaderAbandoned(t *testing.T) {
	// Function 0x10 needs 7 header bytes to resolve a length; only 4 arrive.
	reader := &timeoutReader{r: bytes.NewReader([]byte{0x01, 0x10, 0x00, 0x01})}
	driver := NewDriverWithPort(&mockPort{Reader: reader, Writer: &bytes.Buffer{}})
	r := NewFrameReader(driver)

	_, ok, err := r.ReadFrame(context.Background())
	if err != nil || ok {
		t.Fatalf("ReadFrame() on short header = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}
