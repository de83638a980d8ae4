package core

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestParseDistribution(t *testing.T) {
	tests := []struct {
		in      string
		want    Distribution
		wantErr bool
	}{
		{in: "equal", want: Equal},
		{in: " Progression ", want: Progression},
		{in: "RANDOM", want: Random},
		{in: "", wantErr: true},
		{in: "fibonacci", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDistribution(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownDistribution) {
					t.Fatalf("ParseDistribution(%q) err = %v, want ErrUnknownDistribution", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseDistribution(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestRandomShaper_Range(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	out := RandomShaper{Variance: 0.4}.Shape(3000, 30, rng)
	for i, v := range out {
		if v < 59 || v > 140 {
			t.Errorf("out[%d] = %d, want within [59, 140]", i, v)
		}
	}
}

func TestRandomShaper_ZeroVarianceUsesDefault(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	out := RandomShaper{}.Shape(1000, 10, rng)
	for i, v := range out {
		if v < 59 || v > 140 {
			t.Errorf("out[%d] = %d, want within [59, 140]", i, v)
		}
	}
}

func TestEqualShaper(t *testing.T) {
	out := EqualShaper{}.Shape(10, 4, nil)
	want := []int64{3, 3, 2, 2}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Shape(10, 4) = %v, want %v", out, want)
		}
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -4},
		{-6, 2, -3},
		{0, 5, 0},
		{-1, 5, -1},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestProgressionShaper_FlooredProfile(t *testing.T) {
	tests := []struct {
		total int64
		days  int
		want  []int64
	}{
		{10, 4, []int64{1, 2, 3, 4}},
		{12, 10, []int64{1, 1, 1, 1, 1, 1, 1, 1, 2, 2}},
		{10, 10, []int64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
		{7, 3, []int64{2, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.days), func(t *testing.T) {
			if got := (ProgressionShaper{}).Shape(tt.total, tt.days, nil); !slices.Equal(got, tt.want) {
				t.Errorf("Shape(%d, %d) = %v, want %v", tt.total, tt.days, got, tt.want)
			}
		})
	}
}
