// Package loadtest exercises the storage stack under concurrent study
// sessions.
//
// Each simulated session promotes items, appends events and flags items
// for improvement against a shared directory cache, firing a page-change
// trigger after every operation. The sync manager gates those triggers
// with its cooldown and flushes to a real SQLite store, so a run measures
// operation latency, flush latency and how many triggers the guard
// collapsed.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/freshstart/freshstart/internal/progress"
	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/db"
	storesync "github.com/freshstart/freshstart/internal/store/sync"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// Config controls a load test run. Zero values select defaults.
type Config struct {
	Sessions         int           // concurrent sessions
	OpsPerSession    int           // operations per session
	Items            int           // progress rows seeded
	Cooldown         time.Duration // sync cooldown
	SprintDay        int           // sprint day the sessions study on
	Logger           *log.Logger
	IncludeDurations bool // keep raw durations in the report
}

// DefaultConfig returns the configuration used by the bench command.
func DefaultConfig() Config {
	return Config{
		Sessions:      20,
		OpsPerSession: 25,
		Items:         progress.DefaultItems,
		Cooldown:      50 * time.Millisecond,
		SprintDay:     30,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Sessions <= 0 {
		c.Sessions = d.Sessions
	}
	if c.OpsPerSession <= 0 {
		c.OpsPerSession = d.OpsPerSession
	}
	if c.Items <= 0 {
		c.Items = d.Items
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.SprintDay <= 0 {
		c.SprintDay = d.SprintDay
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// Environment is a populated storage stack rooted in one directory.
type Environment struct {
	Home    string
	Cache   *cache.Dir
	Durable *db.Store
	Manager *storesync.Manager
	Engine  *progress.Engine

	cfg Config
}

// Setup creates a cache directory and database under home, saves a
// profile whose start date puts today on cfg.SprintDay, seeds the mutable
// datasets and persists them.
func Setup(ctx context.Context, home string, cfg Config) (*Environment, error) {
	cfg.applyDefaults()

	dir, err := cache.OpenDir(filepath.Join(home, "cache"), cache.DefaultQuota)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	durable := db.New(filepath.Join(home, "loadtest.db"), db.LatestVersion)
	manager := storesync.New(dir, durable, storesync.Options{
		Cooldown: cfg.Cooldown,
		Logger:   cfg.Logger,
	})
	engine := progress.New(dir, progress.Options{
		Items:  cfg.Items,
		Logger: cfg.Logger,
	})

	start := time.Now().UTC().AddDate(0, 0, -(cfg.SprintDay - 1))
	if _, err := engine.SaveProfile(progress.Profile{
		Nickname:  "loadtest",
		StartDate: start.Format("2006-01-02"),
	}); err != nil {
		return nil, err
	}

	seed := map[store.Dataset]string{
		store.UserData: tabular.SeedProgress(cfg.Items),
		store.Improves: tabular.NewDocument(tabular.ImprovesSchema).String(),
		store.Events:   tabular.NewDocument(tabular.EventSchema).String(),
	}
	for d, text := range seed {
		if err := dir.Set(d.String(), text); err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", d, err)
		}
	}

	result, err := manager.Persist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to persist seed data: %w", err)
	}
	if result.Failed() {
		return nil, fmt.Errorf("failed to persist seed data: %w", result.Err)
	}

	return &Environment{
		Home:    home,
		Cache:   dir,
		Durable: durable,
		Manager: manager,
		Engine:  engine,
		cfg:     cfg,
	}, nil
}

// SetupTemp is Setup in a fresh temporary directory. Close removes it.
func SetupTemp(ctx context.Context, cfg Config) (*Environment, error) {
	home, err := os.MkdirTemp("", "freshstart-loadtest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	env, err := Setup(ctx, home, cfg)
	if err != nil {
		os.RemoveAll(home)
		return nil, err
	}
	return env, nil
}

// Close waits for in-flight flushes and removes the environment's
// directory.
func (env *Environment) Close() error {
	env.Manager.Wait()
	return os.RemoveAll(env.Home)
}

// LatencyStats captures latency percentiles for one kind of operation.
type LatencyStats struct {
	Min       time.Duration   `json:"min"`
	Max       time.Duration   `json:"max"`
	Mean      time.Duration   `json:"mean"`
	P50       time.Duration   `json:"p50"`
	P95       time.Duration   `json:"p95"`
	P99       time.Duration   `json:"p99"`
	Count     int             `json:"count"`
	Errors    int             `json:"errors"`
	Durations []time.Duration `json:"-"`
}

// Report is the outcome of a run.
type Report struct {
	Sessions      int           `json:"sessions"`
	OpsPerSession int           `json:"ops_per_session"`
	Elapsed       time.Duration `json:"elapsed"`
	Ops           *LatencyStats `json:"ops"`
	Flushes       *LatencyStats `json:"flushes"`
	Triggers      int           `json:"triggers"`
	Accepted      int           `json:"accepted"` // triggers that started a flush
	Consistent    bool          `json:"consistent"`
}

// Throughput returns completed operations per second.
func (r *Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops.Count) / r.Elapsed.Seconds()
}

// Run drives cfg.Sessions concurrent sessions of cfg.OpsPerSession
// operations each, then forces a final flush and checks that the durable
// store matches the cache.
func (env *Environment) Run(ctx context.Context) (*Report, error) {
	cfg := env.cfg

	var (
		mu        sync.Mutex
		opDurs    []time.Duration
		opErrors  int
		flushDurs []time.Duration
		flushErrs int
		triggers  int
		accepted  int
	)

	env.Manager.OnEvent(func(ev storesync.Event) {
		if ev.Kind != storesync.EventFlushFinished || ev.Result == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if ev.Result.Trigger == storesync.TriggerPersist {
			return
		}
		flushDurs = append(flushDurs, ev.Result.Finished.Sub(ev.Result.Started))
		if ev.Result.Failed() {
			flushErrs++
		}
	})

	started := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Sessions; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			sess, err := env.Engine.NewSession("")
			if err != nil {
				mu.Lock()
				opErrors += cfg.OpsPerSession
				mu.Unlock()
				cfg.Logger.Printf("Session %d failed to start: %v", worker, err)
				return
			}
			rng := rand.New(rand.NewPCG(uint64(worker), uint64(started.UnixNano())))

			for j := 0; j < cfg.OpsPerSession; j++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				opStart := time.Now()
				err := env.operation(sess, rng)
				dur := time.Since(opStart)
				ok := env.Manager.Notify(storesync.TriggerPageChange)

				mu.Lock()
				opDurs = append(opDurs, dur)
				if err != nil {
					opErrors++
					cfg.Logger.Printf("Session %d op %d failed: %v", worker, j, err)
				}
				triggers++
				if ok {
					accepted++
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(started)

	if err := env.Manager.WaitContext(ctx); err != nil {
		return nil, err
	}
	consistent, err := env.VerifyConsistency(ctx)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	ops := computeLatencyStats(opDurs)
	ops.Errors = opErrors
	flushes := computeLatencyStats(flushDurs)
	flushes.Errors = flushErrs
	if !cfg.IncludeDurations {
		ops.Durations = nil
		flushes.Durations = nil
	}

	return &Report{
		Sessions:      cfg.Sessions,
		OpsPerSession: cfg.OpsPerSession,
		Elapsed:       elapsed,
		Ops:           ops,
		Flushes:       flushes,
		Triggers:      triggers,
		Accepted:      accepted,
		Consistent:    consistent,
	}, nil
}

// operation performs one randomly chosen study operation. Sessions
// share the cache, so concurrent read-modify-write cycles may overwrite
// each other; the last writer wins.
func (env *Environment) operation(sess *progress.Session, rng *rand.Rand) error {
	id := rng.IntN(env.cfg.Items) + 1
	switch rng.IntN(3) {
	case 0:
		_, err := env.Engine.Promote(sess, id)
		return err
	case 1:
		return env.Engine.RecordEvent(sess, tabular.Event{
			ItemID:        id,
			Action:        tabular.ActionReview,
			Result:        fmt.Sprintf("%.2f", rng.Float64()),
			Duration:      rng.IntN(90),
			ActivePassive: "A",
		})
	default:
		_, err := env.Engine.AddImprove(id)
		return err
	}
}

// VerifyConsistency forces a flush of the mutable datasets and reports
// whether each durable record now equals the cached text.
func (env *Environment) VerifyConsistency(ctx context.Context) (bool, error) {
	result, err := env.Manager.Persist(ctx, store.MutableDatasets()...)
	if err != nil {
		return false, fmt.Errorf("failed to flush: %w", err)
	}
	if result.Failed() {
		return false, fmt.Errorf("failed to flush: %w", result.Err)
	}

	for _, d := range store.MutableDatasets() {
		cached, ok, err := env.Cache.Get(d.String())
		if err != nil {
			return false, err
		}
		rec, found, err := env.Durable.GetRecord(ctx, d, store.CurrentRecordID)
		if err != nil {
			return false, err
		}
		if ok != found || rec.Data != cached {
			env.cfg.Logger.Printf("Dataset %s differs after flush (cached %d bytes, durable %d bytes)",
				d, len(cached), len(rec.Data))
			return false, nil
		}
	}
	return true, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(durations)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Count:     len(durations),
		Durations: sorted,
	}
}

// Print writes the latency statistics under a title.
func (s *LatencyStats) Print(w io.Writer, title string) {
	fmt.Fprintf(w, "%s:\n", title)
	fmt.Fprintf(w, "  Count:         %d\n", s.Count)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
