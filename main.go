// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ffutop/modbus-industrial-server/internal/config"
	"github.com/ffutop/modbus-industrial-server/internal/dispatch"
	"github.com/ffutop/modbus-industrial-server/internal/persistence"
	"github.com/ffutop/modbus-industrial-server/internal/serialio"
	"github.com/ffutop/modbus-industrial-server/internal/stats"
	"github.com/ffutop/modbus-industrial-server/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cfg, loader, err := config.Load("", os.Args[1:])
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Server)
	slog.Info("Starting Modbus RTU industrial server...")

	persist, closer, err := openPersistence(cfg.Persistence)
	if err != nil {
		slog.Error("Failed to open persistence backend", "backend", cfg.Persistence.Backend, "err", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	st := store.New(cfg.Server.MaxSlaves)
	if err := loadSlaves(st, persist, cfg.Slaves); err != nil {
		slog.Error("Failed to populate slave store", "err", err)
		os.Exit(1)
	}

	d := dispatch.New(st, persist, slog.Default())

	driver := serialio.NewDriver(serialio.Config{
		Port:     cfg.Serial.Port,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.ByteSize,
		Parity:   cfg.Serial.Parity,
		StopBits: cfg.Serial.StopBits,
		Timeout:  cfg.Serial.ReadTimeout(),
	})
	engine := serialio.NewEngine(driver, d, st)

	reporter := stats.NewReporter(st, cfg.Server.StatsIntervalDuration(), slog.Default())
	monitor := &serialio.PerformanceMonitor{
		MemoryCheckInterval: time.Duration(cfg.Performance.MemoryCheckInterval) * time.Second,
		CPUCheckInterval:    time.Duration(cfg.Performance.CPUCheckInterval) * time.Second,
		MemoryThresholdMB:   cfg.Performance.MemoryThresholdMB,
		GoroutineThreshold:  cfg.Performance.GoroutineThreshold,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The reload callback only stores the new stats interval on
	// reporter.Interval. Reporter.Run reads Interval once when it starts,
	// so a running reporter keeps its original period; a changed
	// log_level is not applied either.
	if loader != nil {
		loader.Watch(func(fresh *config.Config) {
			reporter.Interval = fresh.Server.StatsIntervalDuration()
		})
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			slog.Error("Serial engine stopped with error", "err", err)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		slog.Info("Shutting down...")
	case <-ctx.Done():
		slog.Error("Shutting down after a fatal engine error")
	}
	cancel()
	wg.Wait()

	if persist != nil {
		if err := persist.Save(st); err != nil {
			slog.Warn("Failed to save final slave state", "err", err)
		}
	}
	slog.Info("Goodbye.")
}

func setupLogger(cfg config.ServerConfig) {
	opts := &slog.HandlerOptions{Level: config.SlogLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.LogFile != "" && cfg.LogFile != "-" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openPersistence selects the backend named by cfg.Backend, returning
// the Storage to hand to the dispatcher and, for backends that hold an
// open file or database handle, an io.Closer to clean up on shutdown.
func openPersistence(cfg config.PersistenceConfig) (persistence.Storage, io.Closer, error) {
	switch cfg.Backend {
	case "", "memory":
		return persistence.NewMemoryStorage(), nil, nil
	case "file":
		fs := persistence.NewFileStorage(cfg.Path)
		return fs, fs, nil
	case "mmap":
		ms := persistence.NewMmapStorage(cfg.Path)
		return ms, ms, nil
	case "sqlite":
		ss := persistence.NewSQLStorage("sqlite3", cfg.Path)
		return ss, ss, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}

// loadSlaves repopulates st from whatever persist.Load returns, then
// adds any slave named in seed that persist did not already restore,
// per DESIGN.md's OQ-1 config-seed bootstrap.
func loadSlaves(st *store.Store, persist persistence.Storage, seed []config.SlaveConfig) error {
	snapshots, err := persist.Load()
	if err != nil {
		return fmt.Errorf("load persisted slaves: %w", err)
	}
	restored := make(map[byte]bool, len(snapshots))
	for _, snap := range snapshots {
		data := store.Data{
			SlaveID:          snap.SlaveID,
			Name:             snap.Name,
			Description:      snap.Description,
			HoldingRegisters: snap.HoldingRegisters,
			InputRegisters:   snap.InputRegisters,
			Coils:            snap.Coils,
			DiscreteInputs:   snap.DiscreteInputs,
			Files:            snap.Files,
		}
		if _, err := st.AddFromSnapshot(snap.SlaveID, snap.Name, snap.Description, data); err != nil {
			return fmt.Errorf("restore slave %d: %w", snap.SlaveID, err)
		}
		restored[snap.SlaveID] = true
	}

	for _, sc := range seed {
		if restored[sc.ID] {
			continue
		}
		if _, err := st.Add(sc.ID, sc.Name, sc.Description); err != nil {
			return fmt.Errorf("seed slave %d: %w", sc.ID, err)
		}
		if err := seedRegisters(st, sc); err != nil {
			return fmt.Errorf("seed slave %d registers: %w", sc.ID, err)
		}
	}
	return nil
}

// seedRegisters applies a SlaveConfig's optional starting values
// through the same administrative Store.Update path the slave-data
// query/update interface uses, rather than reaching into the slave
// directly.
func seedRegisters(st *store.Store, sc config.SlaveConfig) error {
	for addrStr, v := range sc.HoldingRegisters {
		addr, err := parseAddr(addrStr)
		if err != nil {
			return err
		}
		if err := st.Update(sc.ID, store.KindHolding, addr, v); err != nil {
			return err
		}
	}
	for addrStr, v := range sc.InputRegisters {
		addr, err := parseAddr(addrStr)
		if err != nil {
			return err
		}
		if err := st.Update(sc.ID, store.KindInput, addr, v); err != nil {
			return err
		}
	}
	for addrStr, v := range sc.Coils {
		addr, err := parseAddr(addrStr)
		if err != nil {
			return err
		}
		if err := st.Update(sc.ID, store.KindCoil, addr, boolToUint16(v)); err != nil {
			return err
		}
	}
	for addrStr, v := range sc.DiscreteInputs {
		addr, err := parseAddr(addrStr)
		if err != nil {
			return err
		}
		if err := st.Update(sc.ID, store.KindDiscrete, addr, boolToUint16(v)); err != nil {
			return err
		}
	}
	return nil
}

func boolToUint16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func parseAddr(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid register address %q: %w", s, err)
	}
	return uint16(n), nil
}
