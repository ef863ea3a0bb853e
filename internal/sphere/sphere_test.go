package sphere

import (
	"math"
	"math/rand"
	"testing"

	"diceopt/internal/vec3"
)

func TestConstruct_OddArity(t *testing.T) {
	if _, err := Construct(3, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected ErrInvalidArity for odd N")
	}
}

func TestConstruct_TooSmall(t *testing.T) {
	if _, err := Construct(0, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected ErrInvalidArity for N < 2")
	}
}

func TestConstruct_AntipodalAndUnitLength(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ps, err := Construct(20, rng)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		p := ps.Point(i)
		opp := ps.Point(i ^ 1)
		sum := p.Add(opp)
		if sum.Length() > 1e-9 {
			t.Errorf("side %d not antipodal to %d: sum=%v", i, i^1, sum)
		}
		if math.Abs(p.Length()-1) > 1e-9 {
			t.Errorf("side %d length = %v, want 1", i, p.Length())
		}
	}
}

func TestMovePoint_InvalidatesCaches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ps, _ := Construct(8, rng)
	_ = ps.TotalStress()
	_ = ps.HighestStressIndex()
	_ = ps.LowestStressIndex()

	ps.MovePoint(0, vec3.New(1, 0, 0))

	// total stress must reflect the new configuration, not a stale cache
	want := recomputeTotalStress(ps)
	got := ps.TotalStress()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("TotalStress after move = %v, want %v", got, want)
	}
}

func recomputeTotalStress(ps *PointSphere) float64 {
	n := ps.SideCount()
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := ps.Point(i).DistanceSquared(ps.Point(j))
			if d == 0 {
				return math.Inf(1)
			}
			sum += 1 / d
		}
	}
	return sum
}

func TestMovePoint_OddIndexNegates(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ps, _ := Construct(4, rng)
	ps.MovePoint(1, vec3.New(0, 0, 1))
	// side 1 should equal (0,0,1) normalized; side 0 is its negation.
	got := ps.Point(1)
	if math.Abs(got.Z-1) > 1e-9 || math.Abs(got.X) > 1e-9 || math.Abs(got.Y) > 1e-9 {
		t.Errorf("Point(1) = %v, want (0,0,1)", got)
	}
	if got2 := ps.Point(0); math.Abs(got2.Z+1) > 1e-9 {
		t.Errorf("Point(0) = %v, want (0,0,-1)", got2)
	}
}

func TestTwoSides_KnownEnergy(t *testing.T) {
	ps, err := FromPoints(2, []vec3.Vec3{vec3.New(1, 0, 0)})
	if err != nil {
		t.Fatal(err)
	}
	// Two antipodes are distance 2 apart, so total stress = 1/(2^2) = 0.25.
	if got := ps.TotalStress(); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("TotalStress = %v, want 0.25", got)
	}
}

func TestHighestLowestStressIndex_TieBreaksToFirst(t *testing.T) {
	// A regular configuration (here just 2 sides) has identical stress
	// everywhere; both extrema should resolve to index 0.
	ps, _ := FromPoints(2, []vec3.Vec3{vec3.New(0, 1, 0)})
	if got := ps.HighestStressIndex(); got != 0 {
		t.Errorf("HighestStressIndex = %d, want 0", got)
	}
	if got := ps.LowestStressIndex(); got != 0 {
		t.Errorf("LowestStressIndex = %d, want 0", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ps, _ := Construct(6, rng)
	clone := ps.Clone()
	ps.MovePoint(0, vec3.New(0, 1, 0))
	if clone.Point(0).Equal(ps.Point(0)) {
		t.Error("clone mutated alongside original")
	}
}

func TestAssign_CopiesContents(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	src, _ := Construct(10, rng)
	dst, _ := Construct(10, rand.New(rand.NewSource(6)))
	dst.Assign(src)
	if dst.TotalStress() != src.TotalStress() {
		t.Errorf("Assign did not copy total stress: dst=%v src=%v", dst.TotalStress(), src.TotalStress())
	}
	for i := 0; i < 10; i++ {
		if !dst.Point(i).Equal(src.Point(i)) {
			t.Errorf("side %d differs after Assign", i)
		}
	}
}

func TestFromPoints_WrongLength(t *testing.T) {
	if _, err := FromPoints(8, []vec3.Vec3{vec3.New(1, 0, 0)}); err == nil {
		t.Fatal("expected error for mismatched point count")
	}
}
