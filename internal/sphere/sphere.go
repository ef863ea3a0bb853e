// Package sphere implements the antipodal point-sphere: a set of N/2 unit
// vectors on the sphere, each representing one face and its antipodal twin,
// together with the electrostatic stress field used to drive optimization.
package sphere

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"diceopt/internal/vec3"
)

// ErrInvalidArity is returned by Construct when the requested side count is
// odd or smaller than 2.
var ErrInvalidArity = errors.New("sphere: side count must be even and >= 2")

// PointSphere is the antipodal point set on the unit sphere. A single mutex
// guards every public accessor; Clone and Assign lock the source (and, for
// Assign, the destination) so a cross-goroutine copy observes a consistent
// snapshot. A goroutine's own private instance never needs the lock, but
// paying for it uniformly keeps the API safe to share.
type PointSphere struct {
	mu        sync.Mutex
	sideCount int
	points    []vec3.Vec3 // length sideCount/2; side i is points[i/2] (even) or -points[i/2] (odd)

	// Lazily computed, invalidated on every mutation. Presence is tracked
	// with explicit bools rather than a sentinel value baked into the
	// number itself.
	totalStressValid bool
	totalStress      float64
	lowestValid      bool
	lowestIndex      int
	highestValid     bool
	highestIndex     int
}

// Construct builds a PointSphere with n sides (n must be even, >= 2),
// sampling n/2 points uniformly in the cube [-1,1]^3 and projecting them
// onto the unit sphere.
func Construct(n int, rng *rand.Rand) (*PointSphere, error) {
	if n < 2 || n%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidArity, n)
	}
	numPoints := n / 2
	points := make([]vec3.Vec3, numPoints)
	for i := range points {
		p := vec3.New(
			rng.Float64()*2-1,
			rng.Float64()*2-1,
			rng.Float64()*2-1,
		)
		points[i] = p.Normalize()
	}
	return &PointSphere{sideCount: n, points: points}, nil
}

// FromPoints builds a PointSphere directly from n/2 already-normalized
// points, as used when loading a persisted record. It does not renormalize;
// callers that read from an untrusted source should do so first.
func FromPoints(n int, points []vec3.Vec3) (*PointSphere, error) {
	if n < 2 || n%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidArity, n)
	}
	if len(points) != n/2 {
		return nil, fmt.Errorf("sphere: expected %d points, got %d", n/2, len(points))
	}
	cp := make([]vec3.Vec3, len(points))
	copy(cp, points)
	return &PointSphere{sideCount: n, points: cp}, nil
}

// SideCount returns N.
func (p *PointSphere) SideCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sideCount
}

// Point returns the position of side index i. Panics if i is out of range,
// mirroring the original's unchecked array access.
func (p *PointSphere) Point(i int) vec3.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pointLocked(i)
}

func (p *PointSphere) pointLocked(i int) vec3.Vec3 {
	base := p.points[i/2]
	if i%2 == 1 {
		return base.Neg()
	}
	return base
}

// Points returns a copy of every side's position, ordered by side index.
// Used by the face labeler and the STL builder, which both need the full
// set rather than one point at a time.
func (p *PointSphere) Points() []vec3.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]vec3.Vec3, p.sideCount)
	for i := range out {
		out[i] = p.pointLocked(i)
	}
	return out
}

// CanonicalPoints returns a copy of the N/2 underlying stored vectors (one
// per antipodal pair, at even side indices), the form persisted by
// internal/store.
func (p *PointSphere) CanonicalPoints() []vec3.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]vec3.Vec3(nil), p.points...)
}

// MovePoint writes v (or -v, if i is odd) as the new position of side index
// i, renormalizes it onto the sphere, and invalidates every cache.
func (p *PointSphere) MovePoint(i int, v vec3.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mult := 1.0
	if i%2 == 1 {
		mult = -1
	}
	p.points[i/2] = v.Scale(mult).Normalize()
	p.totalStressValid = false
	p.lowestValid = false
	p.highestValid = false
}

// Stress returns the electrostatic field at side index i:
// sum over j != i of (p_i - p_j) / |p_i - p_j|^3, direction pointing away
// from every other point.
func (p *PointSphere) Stress(i int) vec3.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stressLocked(i)
}

func (p *PointSphere) stressLocked(i int) vec3.Vec3 {
	reference := p.pointLocked(i)
	total := vec3.Vec3{}
	for j := 0; j < p.sideCount; j++ {
		if j == i {
			continue
		}
		other := p.pointLocked(j)
		if reference.Equal(other) {
			continue
		}
		direction := reference.Sub(other)
		distSquared := direction.LengthSquared()
		normalized := direction.Scale(1 / math.Sqrt(distSquared))
		total = total.Add(normalized.Scale(1 / distSquared))
	}
	return total
}

// TotalStress returns the scalar energy sum_{i<j} 1/|p_i - p_j|^2, or +Inf
// if any two sides coincide. The result is memoized until the next
// MovePoint.
func (p *PointSphere) TotalStress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalStressLocked()
}

func (p *PointSphere) totalStressLocked() float64 {
	if p.totalStressValid {
		return p.totalStress
	}
	sum := 0.0
	for i := 0; i < p.sideCount; i++ {
		pi := p.pointLocked(i)
		for j := i + 1; j < p.sideCount; j++ {
			pj := p.pointLocked(j)
			distSquared := pi.DistanceSquared(pj)
			if distSquared == 0 {
				p.totalStress = math.Inf(1)
				p.totalStressValid = true
				return p.totalStress
			}
			sum += 1 / distSquared
		}
	}
	p.totalStress = sum
	p.totalStressValid = true
	return sum
}

// HighestStressIndex returns the argmax of |Stress(i)|^2, scanned at stride
// 2 (antipodes carry identical stress magnitude, so one per pair suffices).
// Ties resolve to the first occurrence. Memoized until the next MovePoint.
func (p *PointSphere) HighestStressIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.highestValid {
		return p.highestIndex
	}
	best := 0.0
	idx := 0
	for i := 0; i < p.sideCount; i += 2 {
		s := p.stressLocked(i).LengthSquared()
		if s <= best {
			continue
		}
		best = s
		idx = i
	}
	p.highestIndex = idx
	p.highestValid = true
	return idx
}

// LowestStressIndex returns the argmin of |Stress(i)|^2, scanned at stride
// 2. Ties resolve to the first occurrence. Memoized until the next
// MovePoint.
func (p *PointSphere) LowestStressIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lowestValid {
		return p.lowestIndex
	}
	best := math.MaxFloat64
	idx := 0
	for i := 0; i < p.sideCount; i += 2 {
		s := p.stressLocked(i).LengthSquared()
		if s >= best {
			continue
		}
		best = s
		idx = i
	}
	p.lowestIndex = idx
	p.lowestValid = true
	return idx
}

// Clone returns an independent deep copy, locking the source for the
// duration of the copy so a concurrent mutation can't be observed
// mid-copy.
func (p *PointSphere) Clone() *PointSphere {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := &PointSphere{
		sideCount:        p.sideCount,
		points:           append([]vec3.Vec3(nil), p.points...),
		totalStressValid: p.totalStressValid,
		totalStress:      p.totalStress,
		lowestValid:      p.lowestValid,
		lowestIndex:      p.lowestIndex,
		highestValid:     p.highestValid,
		highestIndex:     p.highestIndex,
	}
	return cp
}

// Assign overwrites p's contents with a deep copy of other's, locking both
// (other first, observing the two instances in slot-owner-ascending
// address order is unnecessary here since the pool mutex already
// serializes all writers to the destination slot).
func (p *PointSphere) Assign(other *PointSphere) {
	if p == other {
		return
	}
	other.mu.Lock()
	defer other.mu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sideCount = other.sideCount
	p.points = append([]vec3.Vec3(nil), other.points...)
	p.totalStressValid = other.totalStressValid
	p.totalStress = other.totalStress
	p.lowestValid = other.lowestValid
	p.lowestIndex = other.lowestIndex
	p.highestValid = other.highestValid
	p.highestIndex = other.highestIndex
}
