// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package config loads the JSON configuration file described in
// spec.md §6: serial line parameters, server limits, and the
// performance-monitor intervals, with viper supplying defaults,
// first-run file creation, and a file-change hook (Loader.Watch) that
// hands a re-read Config to a caller-supplied callback.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultPath is the config file path spec.md §6 says is created with
// defaults on first run.
const DefaultPath = "modbus_server_config.json"

// SerialConfig is the `serial` section of spec.md §6's config table.
type SerialConfig struct {
	Port     string  `mapstructure:"port"`
	BaudRate int     `mapstructure:"baudrate"`
	ByteSize int     `mapstructure:"bytesize"`
	Parity   string  `mapstructure:"parity"`
	StopBits int     `mapstructure:"stopbits"`
	Timeout  float64 `mapstructure:"timeout"` // seconds
}

// ReadTimeout returns the serial line's per-read timeout as a
// time.Duration from the config's float-seconds representation.
func (c SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

// ServerConfig is the `server` section.
type ServerConfig struct {
	MaxSlaves     int    `mapstructure:"max_slaves"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	StatsInterval int    `mapstructure:"stats_interval"`
}

// StatsIntervalDuration returns the configured stats reporting period.
func (c ServerConfig) StatsIntervalDuration() time.Duration {
	return time.Duration(c.StatsInterval) * time.Second
}

// PerformanceConfig is the `performance` section.
type PerformanceConfig struct {
	MemoryCheckInterval int    `mapstructure:"memory_check_interval"`
	CPUCheckInterval    int    `mapstructure:"cpu_check_interval"`
	MemoryThresholdMB   uint64 `mapstructure:"memory_threshold_mb"`
	GoroutineThreshold  int    `mapstructure:"goroutine_threshold"`
}

// PersistenceConfig selects the optional backing store for the slave
// data model, per DESIGN.md's OQ-5: an additive section the table
// in spec.md §6 is silent on, not one it excludes. Backend is one of
// "memory" (default, no persistence), "file", "mmap", or "sqlite".
type PersistenceConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// SlaveConfig seeds one slave at startup, per DESIGN.md's OQ-1: an
// optional array the table in spec.md §6 is silent on, not one it
// excludes, carrying forward the original Python server's
// create_example_slave bootstrap.
type SlaveConfig struct {
	ID               byte              `mapstructure:"id"`
	Name             string            `mapstructure:"name"`
	Description      string            `mapstructure:"description"`
	HoldingRegisters map[string]uint16 `mapstructure:"holding_registers"`
	InputRegisters   map[string]uint16 `mapstructure:"input_registers"`
	Coils            map[string]bool   `mapstructure:"coils"`
	DiscreteInputs   map[string]bool   `mapstructure:"discrete_inputs"`
}

// Config is the full configuration tree.
type Config struct {
	Serial      SerialConfig      `mapstructure:"serial"`
	Server      ServerConfig      `mapstructure:"server"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Slaves      []SlaveConfig     `mapstructure:"slaves"`
}

// Loader owns the viper instance backing a Config so WatchConfig
// callbacks can re-unmarshal against the same source.
type Loader struct {
	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baudrate", 9600)
	v.SetDefault("serial.bytesize", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stopbits", 1)
	v.SetDefault("serial.timeout", 1.0)

	v.SetDefault("server.max_slaves", 10)
	v.SetDefault("server.log_level", "INFO")
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.stats_interval", 60)

	v.SetDefault("performance.memory_check_interval", 60)
	v.SetDefault("performance.cpu_check_interval", 60)
	v.SetDefault("performance.memory_threshold_mb", 400)
	v.SetDefault("performance.goroutine_threshold", 80)

	v.SetDefault("persistence.backend", "memory")
	v.SetDefault("persistence.path", "modbus_server.db")
}

// registerFlags binds the CLI overrides grounded on the teacher's root
// config.go pflag set: --config/-c, --port, --log-level.
func registerFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to the JSON config file.")
	fs.String("port", "", "Override serial.port.")
	fs.String("log-level", "", "Override server.log_level.")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bind := map[string]string{
		"port":      "serial.port",
		"log-level": "server.log_level",
	}
	for flagName, key := range bind {
		f := fs.Lookup(flagName)
		if f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("config: bind flag %s: %w", flagName, err)
			}
		}
	}
	return nil
}

// Load reads configFile (DefaultPath if empty and no --config flag was
// given), merging in defaults and writing a default file to disk if
// none exists yet, per spec.md §6 and the original Python server's
// _load_config. A missing file is not an error. args is normally
// os.Args[1:].
func Load(configFile string, args []string) (*Config, *Loader, error) {
	fs := pflag.NewFlagSet("modbus-industrial-server", pflag.ContinueOnError)
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if err := bindFlags(v, fs); err != nil {
		return nil, nil, err
	}

	if cf := fs.Lookup("config"); cf != nil && cf.Value.String() != "" {
		configFile = cf.Value.String()
	}
	if configFile == "" {
		configFile = DefaultPath
	}
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
		slog.Info("config: no config file found, writing defaults", "path", configFile)
		if werr := v.SafeWriteConfigAs(configFile); werr != nil {
			slog.Warn("config: could not write default config", "path", configFile, "err", werr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, &Loader{v: v}, nil
}

// Watch installs a viper.WatchConfig callback that re-unmarshals the
// config file and invokes onChange with the fresh value whenever the
// file is edited on disk. Watch applies nothing itself: which of the
// fresh values take effect is decided entirely by onChange.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.WatchConfig()
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			slog.Warn("config: reload failed, keeping previous values", "err", err)
			return
		}
		slog.Info("config: reloaded", "log_level", cfg.Server.LogLevel, "stats_interval", cfg.Server.StatsInterval)
		onChange(&cfg)
	})
}

// SlogLevel maps spec.md §6's five textual levels onto slog's four,
// collapsing CRITICAL into Error per SPEC_FULL.md's ambient-stack note.
func SlogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
