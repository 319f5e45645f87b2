// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modbus_server_config.json")

	cfg, _, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.BaudRate != 9600 || cfg.Serial.Parity != "N" {
		t.Fatalf("defaults not applied: %+v", cfg.Serial)
	}
	if cfg.Server.MaxSlaves != 10 || cfg.Server.StatsInterval != 60 {
		t.Fatalf("defaults not applied: %+v", cfg.Server)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
}

func TestLoad_ExistingFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.json")
	content := `{"serial":{"port":"/dev/ttyS5","baudrate":19200},"server":{"max_slaves":3}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, _, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyS5" || cfg.Serial.BaudRate != 19200 {
		t.Fatalf("overrides not applied: %+v", cfg.Serial)
	}
	if cfg.Server.MaxSlaves != 3 {
		t.Fatalf("override not applied: %+v", cfg.Server)
	}
	// Untouched keys still fall back to defaults.
	if cfg.Server.StatsInterval != 60 {
		t.Fatalf("default not preserved alongside override: %+v", cfg.Server)
	}
}

func TestLoad_FlagOverridesPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modbus_server_config.json")
	cfg, _, err := Load(path, []string{"--port", "/dev/ttyACM0"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyACM0" {
		t.Fatalf("Serial.Port = %q, want /dev/ttyACM0", cfg.Serial.Port)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"CRITICAL", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
