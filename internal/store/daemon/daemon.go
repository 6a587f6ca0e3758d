package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/sync"
)

// Notifier receives triggers. *sync.Manager implements it.
type Notifier interface {
	Notify(trigger sync.Trigger) bool
	WaitContext(ctx context.Context) error
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a dataset key must stay quiet before
	// its change fires a page-change flush
	DebounceInterval time.Duration

	// FlushInterval fires a periodic flush. Zero disables it.
	FlushInterval time.Duration

	// ShutdownGrace bounds how long the unload flush may delay exit
	ShutdownGrace time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 250 * time.Millisecond,
		ShutdownGrace:    5 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon turns lifecycle events into sync triggers.
type Daemon struct {
	manager Notifier
	dir     CacheDir
	config  *Config

	watcher       *CacheWatcher
	scheduler     *gocron.Scheduler
	changeQueue   map[string]time.Time // cache key -> last write
	changeQueueMu gosync.Mutex
	signals       chan os.Signal
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a daemon for a manager and its cache directory.
func New(manager Notifier, dir CacheDir, config *Config) (*Daemon, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if dir == nil {
		return nil, fmt.Errorf("cache directory cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := NewCacheWatcher(dir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		manager:     manager,
		dir:         dir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		signals:     make(chan os.Signal, 4),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation. It blocks until a termination
// signal arrives or ctx is cancelled, and flushes once more on the way
// out.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.watcher.Start(); err != nil {
		return err
	}
	d.config.Logger.Printf("Watching: %s", d.dir.Path())

	if d.config.FlushInterval > 0 {
		d.scheduler = gocron.NewScheduler(time.UTC)
		_, err := d.scheduler.Every(d.config.FlushInterval).WaitForSchedule().Do(func() {
			d.manager.Notify(sync.TriggerInterval)
		})
		if err != nil {
			_ = d.watcher.Stop()
			return fmt.Errorf("failed to schedule periodic flush: %w", err)
		}
		d.scheduler.StartAsync()
		d.config.Logger.Printf("Periodic flush every %s", d.config.FlushInterval)
	}

	signal.Notify(d.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(d.signals)

	d.wg.Add(2)
	go d.watchCacheEvents()
	go d.processChangeQueue()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown requested")
			d.unload()
			return d.Stop()

		case <-d.ctx.Done():
			return nil

		case sig := <-d.signals:
			if d.HandleSignal(sig) {
				return d.Stop()
			}
		}
	}
}

// HandleSignal maps a signal to a trigger. It reports whether the daemon
// should stop.
func (d *Daemon) HandleSignal(sig os.Signal) bool {
	switch sig {
	case syscall.SIGUSR1:
		d.config.Logger.Println("Session hidden")
		d.manager.Notify(sync.TriggerHidden)
		return false
	case syscall.SIGINT, syscall.SIGTERM:
		d.config.Logger.Printf("Received %s", sig)
		d.unload()
		return true
	default:
		return false
	}
}

// unload fires the unload trigger and gives the flush up to the shutdown
// grace to finish.
func (d *Daemon) unload() {
	started := d.manager.Notify(sync.TriggerUnload)
	if !started || d.config.ShutdownGrace <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.config.ShutdownGrace)
	defer cancel()
	if err := d.manager.WaitContext(ctx); err != nil {
		d.config.Logger.Printf("Warning: unload flush still running after %s", d.config.ShutdownGrace)
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.scheduler != nil {
		d.scheduler.Stop()
	}

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchCacheEvents turns watcher events into triggers.
func (d *Daemon) watchCacheEvents() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handleCacheEvent(ev)

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// handleCacheEvent fires a mode change immediately and queues dataset
// writes for debouncing. Removals and other keys are ignored.
func (d *Daemon) handleCacheEvent(ev CacheEvent) {
	if ev.Op != OpWrite {
		return
	}
	if ev.Key == store.ModeKey {
		d.config.Logger.Println("Mode changed")
		d.manager.Notify(sync.TriggerModeChange)
		return
	}
	if _, err := store.ParseDataset(ev.Key); err != nil {
		return
	}
	d.queueChange(ev.Key)
}

// queueChange records a write to a dataset key.
func (d *Daemon) queueChange(key string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[key] = d.now()
}

// processChangeQueue drains settled changes on every debounce tick.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges fires one page-change flush for every key that has
// been quiet for the debounce interval. Keys stay queued when the manager
// refuses the trigger.
func (d *Daemon) processPendingChanges() bool {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := d.now()
	var settled []string
	for key, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) >= d.config.DebounceInterval {
			settled = append(settled, key)
		}
	}
	if len(settled) == 0 {
		return false
	}

	if !d.manager.Notify(sync.TriggerPageChange) {
		return false
	}
	for _, key := range settled {
		delete(d.changeQueue, key)
	}
	d.config.Logger.Printf("Flushing after changes to %v", settled)
	return true
}

// Pending returns the number of queued dataset changes.
func (d *Daemon) Pending() int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	return len(d.changeQueue)
}
