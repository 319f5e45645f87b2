// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "testing"

func TestCalculateRequestLength(t *testing.T) {
	tests := []struct {
		name     string
		funcCode byte
		header   []byte
		want     int
		wantErr  bool
	}{
		{"ReadHoldingRegisters", 0x03, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 8, false},
		{"WriteSingleRegister", 0x06, []byte{0x01, 0x06, 0x00, 0x00, 0xAA, 0xBB}, 8, false},
		{"WriteMultipleRegisters_ShortHeader", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01}, 0, true},
		{"WriteMultipleRegisters_Valid", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01, 0x02}, 7 + 2 + 2, false},
		{"ReadFileRecord_ShortHeader", 0x14, []byte{0x01, 0x14}, 0, true},
		{"ReadFileRecord_Valid", 0x14, []byte{0x01, 0x14, 0x07}, 3 + 7 + 2, false},
		{"UnknownFunction", 0x99, []byte{0x01, 0x99}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateRequestLength(tt.funcCode, tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("calculateRequestLength() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("calculateRequestLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeaderSize(t *testing.T) {
	tests := []struct {
		funcCode byte
		want     int
	}{
		{0x03, 2},
		{0x06, 2},
		{0x0F, 7},
		{0x10, 7},
		{0x14, 3},
		{0x99, 2},
	}
	for _, tt := range tests {
		if got := HeaderSize(tt.funcCode); got != tt.want {
			t.Errorf("HeaderSize(0x%02X) = %d, want %d", tt.funcCode, got, tt.want)
		}
	}
}
