package die

import (
	"math"

	"diceopt/internal/sphere"
)

// Labels assigns die-face numbers 1..N to side indices such that
// label(i) + label(i^1) == N+1 and consecutive labels land as far apart as
// possible, scored by total path length through label^-1(1)..label^-1(N).
// Runs cfg.LabelTrials independent random trials and keeps the
// highest-scoring one. The result is cached until the next improving
// Optimize step.
func (d *Die) Labels() []int {
	if len(d.labels) > 0 {
		return d.labels
	}

	n := d.n
	best := d.best
	bestAssignment := make([]int, n)
	maxTotalDistance := -1.0

	for trial := 0; trial < d.cfg.LabelTrials; trial++ {
		assigned, labelToSide := d.runLabelTrial(best, n)

		totalDistance := 0.0
		for l := 1; l < n; l++ {
			p1 := best.Point(labelToSide[l])
			p2 := best.Point(labelToSide[l+1])
			totalDistance += p1.Distance(p2)
		}

		if totalDistance > maxTotalDistance {
			maxTotalDistance = totalDistance
			bestAssignment = assigned
		}
	}

	d.labels = bestAssignment
	return d.labels
}

// runLabelTrial runs one randomized labeling attempt, returning the
// assignment (side index -> label) and its inverse (label -> side index).
func (d *Die) runLabelTrial(best *sphere.PointSphere, n int) ([]int, []int) {
	assigned := make([]int, n)
	labelToSide := make([]int, n+1) // 1-indexed
	unassigned := make([]int, n)
	for i := range unassigned {
		unassigned[i] = i
	}

	assign := func(pos, label int) int {
		sideIdx := unassigned[pos]
		oppositeIdx := sideIdx ^ 1
		oppositeLabel := n + 1 - label

		assigned[sideIdx] = label
		assigned[oppositeIdx] = oppositeLabel
		labelToSide[label] = sideIdx
		labelToSide[oppositeLabel] = oppositeIdx

		unassigned = removePair(unassigned, sideIdx, oppositeIdx)
		return sideIdx
	}

	lastSide := assign(d.rng.Intn(len(unassigned)), 1)

	for label := 2; label <= n/2; label++ {
		lastPoint := best.Point(lastSide)

		var candidates []int
		maxAngle := -1.0
		furthestPos := 0
		for pos, idx := range unassigned {
			angle := lastPoint.Angle(best.Point(idx))
			if angle >= math.Pi/2 && angle < math.Pi {
				candidates = append(candidates, pos)
			}
			if angle > maxAngle {
				maxAngle = angle
				furthestPos = pos
			}
		}

		var selectedPos int
		if len(candidates) > 0 {
			selectedPos = candidates[d.rng.Intn(len(candidates))]
		} else {
			// No candidate in [pi/2, pi): fall back to the furthest
			// unassigned point, even if that's below pi/2. Unreachable for
			// N > 4 in practice, but the contract is preserved.
			selectedPos = furthestPos
		}

		lastSide = assign(selectedPos, label)
	}

	return assigned, labelToSide
}

// removePair returns unassigned with a and b removed, preserving order of
// the rest.
func removePair(unassigned []int, a, b int) []int {
	out := unassigned[:0:0]
	for _, v := range unassigned {
		if v == a || v == b {
			continue
		}
		out = append(out, v)
	}
	return out
}
