// Package pool coordinates the K-worker search described by the
// specification: K-1 exploration workers that each restart from a fresh
// random configuration once stagnant, one refiner that continuously
// polishes the canonical best, and one saver that periodically persists
// whichever slot currently holds the lowest energy. Workers run as
// goroutines under an errgroup.Group so a crash in one surfaces to the
// caller instead of silently wedging the pool.
package pool

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"diceopt/internal/config"
	"diceopt/internal/die"
	"diceopt/internal/history"
	"diceopt/internal/logger"
	"diceopt/internal/store"
	"diceopt/internal/uiface"
	"diceopt/internal/vec3"
)

type slot struct {
	die      *die.Die
	workerID uuid.UUID
}

// Pool owns the fixed-size slot array and the single mutex that serializes
// every cross-goroutine touch of it: publishing a worker's restart, reading
// a slot's energy to decide a promotion, and the refiner/promoter's shared
// access to the canonical slot.
type Pool struct {
	cfg     config.Config
	control *die.Control
	n       int
	ledger  *history.Ledger

	mu    sync.Mutex
	slots []*slot
}

// New builds a pool for an n-sided die. ledger may be nil, in which case
// improvements are saved to disk but not recorded to the history database.
func New(n int, cfg config.Config, ledger *history.Ledger) *Pool {
	if cfg.WorkerCount < 2 {
		cfg.WorkerCount = 2
	}
	return &Pool{
		cfg:     cfg,
		control: die.NewControl(),
		n:       n,
		ledger:  ledger,
		slots:   make([]*slot, cfg.WorkerCount),
	}
}

// canonicalIndex is slot K-1, the one every worker may promote into.
func (p *Pool) canonicalIndex() int { return len(p.slots) - 1 }

// Pause stops every worker's Optimize calls from making progress without
// tearing down their goroutines.
func (p *Pool) Pause() { p.control.Paused.Store(true) }

// Resume undoes Pause.
func (p *Pool) Resume() { p.control.Paused.Store(false) }

// Paused reports whether the pool is currently paused.
func (p *Pool) Paused() bool { return p.control.Paused.Load() }

// Snapshot reports the canonical slot's current best energy and how long
// it's been since that best last improved.
func (p *Pool) Snapshot() uiface.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.canonicalIndex()
	s := p.slots[idx]
	if s == nil {
		return uiface.Snapshot{BestStress: math.Inf(1), SlotIndex: idx}
	}
	return uiface.Snapshot{
		BestStress:           s.die.Best().TotalStress(),
		SlotIndex:            idx,
		SecondsSinceLastBest: s.die.SecondsSinceLastBest(),
	}
}

// Run seeds the canonical slot from whatever is persisted for n (falling
// back to a fresh random start), then runs every worker until ctx is
// canceled or one returns an error. Stopping the pool is done by canceling
// ctx; every loop also polls ctx, and control.Running is cleared once all
// of them have returned.
func (p *Pool) Run(ctx context.Context) error {
	bestIdx := p.canonicalIndex()
	seedRNG := newSeedRand(bestIdx)
	canonical, err := die.LoadBest(p.n, p.cfg, seedRNG)
	if err != nil {
		return fmt.Errorf("pool: seed canonical slot: %w", err)
	}
	p.slots[bestIdx] = &slot{die: canonical, workerID: uuid.New()}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < bestIdx; i++ {
		i := i
		g.Go(func() error {
			select {
			case <-time.After(time.Duration(i) * p.cfg.StaggerDelay):
			case <-gctx.Done():
				return nil
			}
			return p.runExplorer(gctx, i)
		})
	}
	g.Go(func() error { return p.runRefiner(gctx, bestIdx) })
	g.Go(func() error { return p.runSaver(gctx) })

	err = g.Wait()
	p.control.Running.Store(false)
	return err
}

func (p *Pool) runExplorer(ctx context.Context, slotIdx int) error {
	for p.control.Running.Load() && ctx.Err() == nil {
		workerID := uuid.New()
		rng := newSeedRand(slotIdx)
		d, err := die.New(p.n, p.cfg, rng)
		if err != nil {
			return fmt.Errorf("pool: new die for slot %d: %w", slotIdx, err)
		}
		p.publish(slotIdx, d, workerID)
		logger.Info("POOL", fmt.Sprintf("worker %s exploring slot %d", workerID, slotIdx))

		for p.control.Running.Load() && ctx.Err() == nil &&
			d.SecondsSinceLastBest() < p.cfg.StagnationSeconds {
			d.Optimize(p.control)
		}

		p.tryPromote(d, workerID)
	}
	return nil
}

func (p *Pool) runRefiner(ctx context.Context, bestIdx int) error {
	for p.control.Running.Load() && ctx.Err() == nil {
		p.mu.Lock()
		p.slots[bestIdx].die.Optimize(p.control)
		p.mu.Unlock()
	}
	return nil
}

func (p *Pool) runSaver(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(p.cfg.SaveIntervalSeconds) * time.Second)
	defer ticker.Stop()
	for p.control.Running.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.saveOnce()
		}
	}
	return nil
}

// tryPromote copies candidate's entire state into the canonical slot if it
// beats whatever is there, under the pool mutex so the refiner's concurrent
// Optimize calls on the canonical die never interleave with the copy.
func (p *Pool) tryPromote(candidate *die.Die, workerID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	canonical := p.slots[p.canonicalIndex()]
	candidateStress := candidate.Best().TotalStress()
	if candidateStress >= canonical.die.Best().TotalStress() {
		return
	}
	canonical.die.Assign(candidate)
	canonical.workerID = workerID
	logger.Success("POOL", fmt.Sprintf("worker %s promoted into canonical slot (stress=%.6f)", workerID, candidateStress))
}

func (p *Pool) publish(slotIdx int, d *die.Die, workerID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[slotIdx] = &slot{die: d, workerID: workerID}
}

func (p *Pool) saveOnce() {
	p.mu.Lock()
	var minSlot *slot
	minStress := math.Inf(1)
	for _, s := range p.slots {
		if s == nil {
			continue
		}
		stress := s.die.Best().TotalStress()
		if stress < minStress {
			minStress = stress
			minSlot = s
		}
	}
	// Snapshot everything the write needs while still holding the lock: a
	// concurrent Optimize call on this same die (the refiner, if minSlot is
	// the canonical slot) mutates moveRate and best in place, so reading
	// them after Unlock would race.
	var (
		points    []vec3.Vec3
		stress    float64
		moveRate  float64
		sideCount int
		workerID  uuid.UUID
	)
	if minSlot != nil {
		points = minSlot.die.Best().CanonicalPoints()
		stress = minStress
		moveRate = minSlot.die.MoveRate()
		sideCount = minSlot.die.SideCount()
		workerID = minSlot.workerID
	}
	p.mu.Unlock()

	if minSlot == nil {
		return
	}
	// store.Save silently keeps a record that is at least as good, so
	// check here whether this tick is a new minimum worth a ledger row.
	improved := true
	if existing, err := store.Load(p.cfg.DataDir, sideCount); err == nil && stress >= existing.Stress {
		improved = false
	}
	if err := store.Save(p.cfg.DataDir, sideCount, points, stress, moveRate); err != nil {
		logger.Error("POOL", fmt.Sprintf("save: %v", err))
		return
	}
	if improved && p.ledger != nil {
		if err := p.ledger.Record(history.Improvement{
			SideCount: sideCount,
			Stress:    stress,
			MoveRate:  moveRate,
			WorkerID:  workerID,
		}); err != nil {
			logger.Warn("POOL", fmt.Sprintf("history record: %v", err))
		}
	}
	logger.Stats("stress", fmt.Sprintf("%.6f", stress))
}

// newSeedRand returns a *rand.Rand seeded from the current time mixed with
// a per-slot offset, so restarts across slots (and across restarts of the
// same slot) don't sample identical sequences.
func newSeedRand(salt int) *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(salt)*0x9e3779b97f4a7c15))
}
