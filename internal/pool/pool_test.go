package pool

import (
	"context"
	"math"
	"testing"
	"time"

	"diceopt/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.WorkerCount = 3
	cfg.StagnationSeconds = 0
	cfg.SaveIntervalSeconds = 1
	cfg.StaggerDelay = time.Millisecond
	return cfg
}

func TestNew_ClampsWorkerCountMinimum(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkerCount = 1
	p := New(6, cfg, nil)
	if len(p.slots) != 2 {
		t.Errorf("len(slots) = %d, want 2 (clamped minimum)", len(p.slots))
	}
}

func TestPauseResume(t *testing.T) {
	p := New(6, testConfig(t), nil)
	if p.Paused() {
		t.Fatal("new pool should not start paused")
	}
	p.Pause()
	if !p.Paused() {
		t.Error("Paused() = false after Pause()")
	}
	p.Resume()
	if p.Paused() {
		t.Error("Paused() = true after Resume()")
	}
}

func TestRun_CompletesWithinTimeoutAndLeavesValidCanonicalSlot(t *testing.T) {
	cfg := testConfig(t)
	p := New(6, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := p.Snapshot()
	if snap.SlotIndex != cfg.WorkerCount-1 {
		t.Errorf("Snapshot.SlotIndex = %d, want %d", snap.SlotIndex, cfg.WorkerCount-1)
	}
	if math.IsInf(snap.BestStress, 1) || math.IsNaN(snap.BestStress) {
		t.Errorf("Snapshot.BestStress = %v, want a finite value", snap.BestStress)
	}
}

func TestSnapshot_BeforeRunReportsInfinity(t *testing.T) {
	p := New(6, testConfig(t), nil)
	snap := p.Snapshot()
	if !math.IsInf(snap.BestStress, 1) {
		t.Errorf("Snapshot.BestStress before Run = %v, want +Inf", snap.BestStress)
	}
}
