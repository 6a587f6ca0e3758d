package loadtest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/freshstart/freshstart/internal/store"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()
	env, err := Setup(ctx, t.TempDir(), Config{Items: 50})
	if err != nil {
		t.Fatalf("Failed to set up environment: %v", err)
	}

	rows, err := env.Engine.Progress()
	if err != nil {
		t.Fatalf("Failed to read progress: %v", err)
	}
	if len(rows) != 50 {
		t.Errorf("Expected 50 progress rows, got %d", len(rows))
	}

	sess, err := env.Engine.NewSession("")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	if !sess.HasSprintDay || sess.SprintDay != 30 {
		t.Errorf("Expected sprint day 30, got %d (available %v)", sess.SprintDay, sess.HasSprintDay)
	}

	for _, d := range store.MutableDatasets() {
		if _, ok, err := env.Durable.GetRecord(ctx, d, store.CurrentRecordID); err != nil || !ok {
			t.Errorf("Expected seeded durable record for %s (found %v, err %v)", d, ok, err)
		}
	}
}

func TestRun_Small(t *testing.T) {
	ctx := context.Background()
	env, err := Setup(ctx, t.TempDir(), Config{
		Sessions:      4,
		OpsPerSession: 10,
		Items:         100,
		Cooldown:      10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to set up environment: %v", err)
	}

	report, err := env.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Ops.Count != 40 {
		t.Errorf("Expected 40 operations, got %d", report.Ops.Count)
	}
	if report.Ops.Errors != 0 {
		t.Errorf("Expected no operation errors, got %d", report.Ops.Errors)
	}
	if report.Triggers != 40 {
		t.Errorf("Expected 40 triggers, got %d", report.Triggers)
	}
	if report.Accepted < 1 || report.Accepted > report.Triggers {
		t.Errorf("Expected 1..%d accepted triggers, got %d", report.Triggers, report.Accepted)
	}
	if report.Flushes.Errors != 0 {
		t.Errorf("Expected no flush errors, got %d", report.Flushes.Errors)
	}
	if !report.Consistent {
		t.Error("Expected durable store to match cache after final flush")
	}
	if report.Throughput() <= 0 {
		t.Errorf("Expected positive throughput, got %f", report.Throughput())
	}

	t.Logf("%d ops in %v, %d/%d triggers flushed", report.Ops.Count, report.Elapsed, report.Accepted, report.Triggers)
}

func TestRun_CooldownCollapsesTriggers(t *testing.T) {
	ctx := context.Background()
	env, err := Setup(ctx, t.TempDir(), Config{
		Sessions:      2,
		OpsPerSession: 20,
		Items:         20,
		Cooldown:      time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to set up environment: %v", err)
	}

	report, err := env.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The seeding Persist does not start the cooldown window, so exactly
	// one gated flush gets through.
	if report.Accepted != 1 {
		t.Errorf("Expected 1 accepted trigger with an hour cooldown, got %d", report.Accepted)
	}
	if !report.Consistent {
		t.Error("Expected durable store to match cache after final flush")
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durs []time.Duration
	for i := 100; i >= 1; i-- {
		durs = append(durs, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durs)

	if stats.Count != 100 {
		t.Errorf("Expected count 100, got %d", stats.Count)
	}
	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("Expected min 1ms max 100ms, got %v %v", stats.Min, stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("Expected P50 51ms, got %v", stats.P50)
	}
	if stats.P95 != 96*time.Millisecond {
		t.Errorf("Expected P95 96ms, got %v", stats.P95)
	}
	if stats.P99 != 100*time.Millisecond {
		t.Errorf("Expected P99 100ms, got %v", stats.P99)
	}
	if stats.Mean != 50500*time.Microsecond {
		t.Errorf("Expected mean 50.5ms, got %v", stats.Mean)
	}
	if durs[0] != 100*time.Millisecond {
		t.Error("Input slice was reordered")
	}

	if empty := computeLatencyStats(nil); empty.Count != 0 {
		t.Errorf("Expected empty stats, got %+v", empty)
	}
}

func TestLatencyStats_Print(t *testing.T) {
	var buf bytes.Buffer
	computeLatencyStats([]time.Duration{time.Millisecond}).Print(&buf, "Flushes")

	out := buf.String()
	for _, want := range []string{"Flushes:", "Count:         1", "Max:           1ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}
