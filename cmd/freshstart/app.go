package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/freshstart/freshstart/internal/progress"
	"github.com/freshstart/freshstart/internal/store/backup"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/db"
	storesync "github.com/freshstart/freshstart/internal/store/sync"
)

// exitGrace bounds the exit flush of a command.
const exitGrace = 5 * time.Second

// app wires the storage stack for one command invocation.
type app struct {
	cache    *cache.Dir
	durable  *db.Store
	exporter *backup.Exporter
	manager  *storesync.Manager
	engine   *progress.Engine
}

func newApp() (*app, error) {
	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	dir, err := cache.OpenDir(cfg.CacheDir(), cfg.Cache.QuotaBytes)
	if err != nil {
		return nil, err
	}
	durable := db.New(cfg.DatabasePath(), cfg.Durable.Version)
	exporter := backup.NewExporter(dir, cfg.BackupDir(), logs.Logger("backup"))
	manager := storesync.New(dir, durable, storesync.Options{
		Cooldown:    cfg.Sync.Cooldown,
		BlockedWait: cfg.Sync.BlockedWait,
		Exporter:    exporter,
		Logger:      logs.Logger("sync"),
	})
	engine := progress.New(dir, progress.Options{
		PerDayRate:  cfg.Progress.PerDayRate,
		SessionSize: cfg.Progress.SessionSize,
		Items:       cfg.Progress.Items,
		DurationCap: cfg.Progress.DurationCap,
		Logger:      logs.Logger("progress"),
	})
	return &app{
		cache:    dir,
		durable:  durable,
		exporter: exporter,
		manager:  manager,
		engine:   engine,
	}, nil
}

// run opens the app, restores the cache, runs fn and flushes on the way
// out with a page-change trigger.
func run(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if _, err := a.manager.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore cache: %w", err)
	}

	fnErr := fn(ctx, a)

	a.manager.Notify(storesync.TriggerPageChange)
	waitCtx, cancel := context.WithTimeout(context.Background(), exitGrace)
	defer cancel()
	if err := a.manager.WaitContext(waitCtx); err != nil {
		logs.Logger("freshstart").Printf("Exit flush did not finish: %v", err)
	}
	return fnErr
}

// session starts a session without changing the recorded mode.
func (a *app) session() (*progress.Session, error) {
	return a.engine.NewSession("")
}
