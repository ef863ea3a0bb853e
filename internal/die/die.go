// Package die implements one stochastic-descent search for an even-sided
// die's face placement: a working PointSphere mutated one point at a time,
// a best-so-far envelope that only improves, and an adaptive step size.
package die

import (
	"math"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"diceopt/internal/config"
	"diceopt/internal/sphere"
	"diceopt/internal/store"
)

// Control is the process-wide mutable state the original C++ source kept
// as two free-floating globals (an optimization-paused flag and a running
// flag). Here it's an explicit value threaded into every worker instead,
// per the "lift both to an atomic in an explicit optimizer control value"
// design note.
type Control struct {
	Paused  atomic.Bool
	Running atomic.Bool
}

// NewControl returns a Control with Running already set (ready to drive
// workers) and Paused cleared.
func NewControl() *Control {
	c := &Control{}
	c.Running.Store(true)
	return c
}

// Die is one search in progress: a working configuration (current) that is
// mutated every step, and the lowest-energy configuration seen so far
// (best). best.TotalStress() <= current.TotalStress() holds at every
// observable point.
type Die struct {
	cfg         config.Config
	rng         *rand.Rand
	n           int
	best        *sphere.PointSphere
	current     *sphere.PointSphere
	moveRate    float64
	moveRateMin float64

	lastBestTime       time.Time
	nextReduceSeconds  int64
	lastOptimizedIndex int
	labels             []int
}

// New creates a Die with a fresh random configuration.
func New(n int, cfg config.Config, rng *rand.Rand) (*Die, error) {
	best, err := sphere.Construct(n, rng)
	if err != nil {
		return nil, err
	}
	current := best.Clone()
	return &Die{
		cfg:               cfg,
		rng:               rng,
		n:                 n,
		best:              best,
		current:           current,
		moveRate:          cfg.MoveRateInitial(n),
		moveRateMin:       config.MoveRateFloor(n),
		lastBestTime:      time.Now(),
		nextReduceSeconds: cfg.ReduceRateSeconds,
	}, nil
}

// LoadBest creates a Die seeded from the persisted best-known record for n,
// falling back to a fresh random configuration if none exists or it's
// corrupt (ErrPersistenceMissing / ErrPersistenceCorrupt both degrade
// silently, per spec).
func LoadBest(n int, cfg config.Config, rng *rand.Rand) (*Die, error) {
	d, err := New(n, cfg, rng)
	if err != nil {
		return nil, err
	}
	rec, err := store.Load(cfg.DataDir, n)
	if err != nil {
		return d, nil
	}
	best, err := sphere.FromPoints(n, rec.Points)
	if err != nil {
		return d, nil
	}
	d.best = best
	d.current = best.Clone()
	d.moveRate = rec.MoveRate
	return d, nil
}

// SideCount returns N.
func (d *Die) SideCount() int { return d.n }

// Best returns an independent copy of the lowest-energy configuration
// found so far.
func (d *Die) Best() *sphere.PointSphere { return d.best.Clone() }

// Current returns an independent copy of the working configuration.
func (d *Die) Current() *sphere.PointSphere { return d.current.Clone() }

// MoveRate returns the current step size.
func (d *Die) MoveRate() float64 { return d.moveRate }

// SecondsSinceLastBest returns elapsed time since best was last improved.
func (d *Die) SecondsSinceLastBest() int64 {
	return int64(time.Since(d.lastBestTime).Seconds())
}

// Optimize performs one optimize step: pick a candidate side index, move it
// along its stress gradient scaled by move_rate, and either promote the
// result to best (if it improved) or let the step-size-reduction clock
// run. It is a no-op while control.Paused is set.
func (d *Die) Optimize(control *Control) {
	if control != nil && control.Paused.Load() {
		return
	}

	idx := d.pickCandidate()

	point := d.current.Point(idx)
	s := d.current.Stress(idx)
	proposed := point.Add(s.Scale(d.moveRate)).Normalize()
	d.current.MovePoint(idx, proposed)

	if d.current.TotalStress() < d.best.TotalStress() {
		d.nextReduceSeconds = d.cfg.ReduceRateSeconds
		d.best.Assign(d.current)
		d.lastBestTime = time.Now()
		d.labels = nil
		return
	}

	if d.SecondsSinceLastBest() > d.nextReduceSeconds {
		d.nextReduceSeconds += d.cfg.ReduceRateSeconds
		d.reduceRate()
	}
}

func (d *Die) reduceRate() {
	d.moveRate /= 2
	if d.moveRate < d.moveRateMin {
		d.moveRate = d.moveRateMin
	}
}

// pickCandidate chooses the side index to mutate next: with probability
// 1/RandomPickOneIn, uniformly at random; otherwise locality-biased around
// lastOptimizedIndex, picked from its floor(sqrt(N)) nearest neighbors.
func (d *Die) pickCandidate() int {
	if d.rng.Intn(d.cfg.RandomPickOneIn) == 0 {
		return d.rng.Intn(d.n)
	}

	reference := d.current.Point(d.lastOptimizedIndex)
	type distIdx struct {
		dist float64
		idx  int
	}
	neighbors := make([]distIdx, 0, d.n-1)
	for i := 0; i < d.n; i++ {
		if i == d.lastOptimizedIndex {
			continue
		}
		neighbors = append(neighbors, distIdx{reference.DistanceSquared(d.current.Point(i)), i})
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].dist < neighbors[j].dist })

	k := int(math.Sqrt(float64(d.n)))
	if k < 1 {
		k = 1
	}
	if k > len(neighbors) {
		k = len(neighbors)
	}
	chosen := neighbors[d.rng.Intn(k)].idx
	d.lastOptimizedIndex = chosen
	return chosen
}

// Save persists the best configuration under cfg.DataDir, conditional on
// strict improvement over whatever is already stored for this N.
func (d *Die) Save() error {
	return store.Save(d.cfg.DataDir, d.n, d.best.CanonicalPoints(), d.best.TotalStress(), d.moveRate)
}

// Assign overwrites d's entire search state with a deep copy of other's:
// best, current, move rate, and the label cache all move over together.
// This mirrors the original pool's whole-object promotion into the
// canonical slot — a winning worker's Die replaces the slot's Die in full,
// not just its best sphere, so the refiner picks up exactly where the
// winner left off, move rate included.
func (d *Die) Assign(other *Die) {
	if d == other {
		return
	}
	d.best.Assign(other.best)
	d.current.Assign(other.current)
	d.n = other.n
	d.moveRate = other.moveRate
	d.moveRateMin = other.moveRateMin
	d.lastBestTime = other.lastBestTime
	d.nextReduceSeconds = other.nextReduceSeconds
	d.lastOptimizedIndex = other.lastOptimizedIndex
	if other.labels != nil {
		d.labels = append([]int(nil), other.labels...)
	} else {
		d.labels = nil
	}
}
