// Command dice runs the headless die-face optimizer: it spins up the
// worker pool for a chosen side count, optionally exits once the canonical
// best has stagnated for a configured number of seconds, and can emit the
// resulting geometry as a binary STL solid.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"diceopt/internal/config"
	"diceopt/internal/die"
	"diceopt/internal/history"
	"diceopt/internal/logger"
	"diceopt/internal/pool"
	"diceopt/internal/stl"
	"diceopt/internal/vec3"
)

var version = "dev"

func main() {
	sideCount := flag.Int("s", 0, "even number of die sides (required)")
	exitStagnation := flag.Int64("t", 0, "exit once seconds-since-last-best reaches this (0 = run until interrupted)")
	outPath := flag.String("o", "", "STL output path (optional)")
	faceToCenter := flag.Float64("f", 1.0, "face-to-center distance")
	outerRadius := flag.Float64("r", 0, "outer sphere radius (0 = auto-derive from face spacing)")
	flag.Parse()

	logger.Banner(version)

	if *sideCount < 2 || *sideCount%2 != 0 {
		logger.Error("CLI", fmt.Sprintf("-s must be an even integer >= 2, got %d", *sideCount))
		os.Exit(1)
	}

	cfg := config.Default()

	ledger, err := history.Open(cfg.DataDir)
	if err != nil {
		logger.Warn("CLI", fmt.Sprintf("history ledger unavailable: %v", err))
		ledger = nil
	} else {
		defer ledger.Close()
	}

	p := pool.New(*sideCount, cfg, ledger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	if *exitStagnation > 0 {
		go watchStagnation(ctx, stop, p, *exitStagnation)
	}

	logger.Section("optimizing")
	if err := p.Run(ctx); err != nil {
		logger.Error("POOL", fmt.Sprintf("run: %v", err))
		os.Exit(1)
	}

	snap := p.Snapshot()
	logger.Section("summary")
	logger.Stats("sides", *sideCount)
	logger.Stats("stress", fmt.Sprintf("%.6f", snap.BestStress))
	logger.Stats("started", humanize.Time(started))

	if *outPath != "" {
		writeModel(*sideCount, cfg, *faceToCenter, *outerRadius, *outPath)
	}
}

// watchStagnation cancels ctx once the canonical slot's best hasn't
// improved for thresholdSeconds, letting p.Run return on its own.
func watchStagnation(ctx context.Context, cancel context.CancelFunc, p *pool.Pool, thresholdSeconds int64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.Snapshot().SecondsSinceLastBest >= thresholdSeconds {
				logger.Info("CLI", fmt.Sprintf("stagnated for %ds, stopping", thresholdSeconds))
				cancel()
				return
			}
		}
	}
}

// writeModel reloads the persisted best for n, scales it to the requested
// face-to-center distance, derives an outer radius if none was given, and
// writes the clipped-sphere STL.
func writeModel(n int, cfg config.Config, faceToCenter, outerRadius float64, path string) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	d, err := die.LoadBest(n, cfg, rng)
	if err != nil {
		logger.Error("CLI", fmt.Sprintf("load best for STL: %v", err))
		return
	}

	all := d.Best().Points()
	faceCenters := make([]vec3.Vec3, len(all))
	for i, p := range all {
		faceCenters[i] = p.Scale(faceToCenter)
	}

	canonical := d.Best().CanonicalPoints()
	canonicalScaled := make([]vec3.Vec3, len(canonical))
	for i, p := range canonical {
		canonicalScaled[i] = p.Scale(faceToCenter)
	}

	if outerRadius <= 0 {
		derived, err := stl.ComputeMaxRadius(canonicalScaled)
		if err != nil {
			logger.Warn("CLI", fmt.Sprintf("auto radius derivation failed: %v, falling back to 2x face-to-center", err))
			outerRadius = faceToCenter * 2
		} else {
			outerRadius = derived
		}
	}

	if err := stl.WriteSTL(path, outerRadius, faceCenters, stl.DefaultOptions()); err != nil {
		logger.Error("CLI", fmt.Sprintf("write STL: %v", err))
		return
	}
	if info, err := os.Stat(path); err == nil {
		logger.Stats("stl size", humanize.Bytes(uint64(info.Size())))
	}
}
