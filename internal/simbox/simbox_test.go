package simbox

import (
	"math"
	"strings"
	"testing"
)

func TestNew_DerivesCellCounts(t *testing.T) {
	s, err := New(0, 0, 1000, 500, 2000, 200, 0, 25, 25, 4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.NX != 40 || s.NY != 20 || s.NZ != 50 {
		t.Errorf("got %dx%dx%d, want 40x20x50", s.NX, s.NY, s.NZ)
	}
}

func TestNew_RejectsNonPositive(t *testing.T) {
	if _, err := New(0, 0, 100, 100, 0, 100, 0, 0, 10, 4); err == nil {
		t.Error("expected error for dx=0")
	}
	if _, err := New(0, 0, 100, -1, 0, 100, 0, 10, 10, 4); err == nil {
		t.Error("expected error for negative ly")
	}
}

func TestIndexes_RoundTripsCoord(t *testing.T) {
	s, err := New(1000, 2000, 400, 300, 1500, 100, math.Pi/6, 10, 10, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, c := range [][3]int{{0, 0, 0}, {39, 29, 49}, {12, 7, 20}} {
		x, y, z := s.Coord(c[0], c[1], c[2])
		i, j, k := s.Indexes(x, y, z)
		if i != c[0] || j != c[1] || k != c[2] {
			t.Errorf("Indexes(Coord(%v)) = %d,%d,%d", c, i, j, k)
		}
	}
	if i, _, _ := s.Indexes(0, 0, 1550); i != Missing {
		t.Errorf("expected Missing outside area, got %d", i)
	}
	if s.IsInside(0, 0) {
		t.Error("origin far outside rotated box should not be inside")
	}
}

func TestIndex_Missing(t *testing.T) {
	s, _ := New(0, 0, 40, 40, 0, 40, 0, 10, 10, 10)
	if got := s.Index(3, 3, 3); got != 3+3*4+3*16 {
		t.Errorf("Index = %d", got)
	}
	if s.Index(4, 0, 0) != Missing || s.Index(-1, 0, 0) != Missing {
		t.Error("expected Missing for out-of-range index")
	}
}

func TestPaddedSize(t *testing.T) {
	cases := []struct {
		n    int
		frac float64
		want int
	}{
		{4, 0, 4},
		{11, 0, 12},
		{100, 0.1, 112},
		{13, 0, 14},
		{1, 0, 1},
		{97, 0, 98},
	}
	for _, c := range cases {
		if got := PaddedSize(c.n, c.frac); got != c.want {
			t.Errorf("PaddedSize(%d, %g) = %d, want %d", c.n, c.frac, got, c.want)
		}
	}
}

func TestStormHeader(t *testing.T) {
	s, _ := New(0, 0, 40, 40, 0, 40, 0, 10, 10, 10)
	h := s.StormHeader(1, 4, 4, 4, false)
	if !strings.HasPrefix(h, "storm_petro_binary\n") {
		t.Errorf("unexpected header start %q", h)
	}
	if !strings.HasSuffix(h, "4 4 4\n") {
		t.Errorf("header must end with cell counts, got %q", h)
	}
	if !strings.HasPrefix(s.StormHeader(1, 4, 4, 4, true), "storm_petro_ascii\n") {
		t.Error("ascii header expected")
	}
}
