// Package core provides the envelope generator and the progress and
// achievement evaluator.
//
// This file implements the Strategy Pattern for distribution shapes.
// Each distribution mode has its own Shaper that only produces raw amounts;
// reconciliation to the exact total and the final shuffle are shared by
// every mode in generator.go.
package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Distribution is the shape rule used to split a target across days.
type Distribution string

const (
	Equal       Distribution = "equal"
	Progression Distribution = "progression"
	Random      Distribution = "random"
)

// DefaultRandomVariance is the relative spread of RANDOM draws around the average.
const DefaultRandomVariance = 0.4

// Distributions returns every supported distribution mode.
func Distributions() []Distribution {
	return []Distribution{Equal, Progression, Random}
}

// String implements fmt.Stringer
func (d Distribution) String() string {
	return string(d)
}

// IsValid returns true if the distribution is one of the supported modes.
func (d Distribution) IsValid() bool {
	switch d {
	case Equal, Progression, Random:
		return true
	default:
		return false
	}
}

// ParseDistribution parses a case-insensitive mode name.
func ParseDistribution(s string) (Distribution, error) {
	d := Distribution(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDistribution, s)
	}
	return d, nil
}

// Shaper is the strategy interface for distribution modes.
type Shaper interface {
	// Shape returns days raw amounts for total. The amounts do not need to
	// be positive or to sum to total; the generator reconciles them.
	Shape(total int64, days int, rng *rand.Rand) []int64
}

// ShaperFunc adapts a plain function to the Shaper interface.
type ShaperFunc func(total int64, days int, rng *rand.Rand) []int64

// Shape implements Shaper.
func (f ShaperFunc) Shape(total int64, days int, rng *rand.Rand) []int64 {
	return f(total, days, rng)
}

// EqualShaper gives every slot floor(total/days); the first total%days
// slots get one extra unit.
type EqualShaper struct{}

// Shape implements Shaper.
func (EqualShaper) Shape(total int64, days int, _ *rand.Rand) []int64 {
	out := make([]int64, days)
	n := int64(days)
	base := total / n
	rem := total % n
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

// ProgressionShaper produces the ascending profile 0..days-1 lifted by a
// uniform offset, with every slot at least 1 and a non-decreasing shape.
type ProgressionShaper struct{}

// Shape implements Shaper.
func (ProgressionShaper) Shape(total int64, days int, _ *rand.Rand) []int64 {
	out := make([]int64, days)
	n := int64(days)
	triangular := n * (n - 1) / 2
	offset := floorDiv(total-triangular, n)
	rem := total - triangular - offset*n

	var sum int64
	for i := range out {
		v := int64(i) + offset
		if int64(i) < rem {
			v++
		}
		if v < 1 {
			v = 1
		}
		out[i] = v
		sum += v
	}

	// Flooring only ever adds units. Cap the top of the profile at the
	// lowest level that still covers total, then lower the first capped
	// slots by one until the sum matches. The profile stays non-decreasing.
	if sum > total {
		level := lowestCap(out, total)
		sum = 0
		for i, v := range out {
			out[i] = min(v, level)
			sum += out[i]
		}
		for i := 0; i < days && sum > total; i++ {
			if out[i] == level && level > 1 {
				out[i]--
				sum--
			}
		}
	}
	return out
}

// lowestCap returns the smallest h >= 1 with sum(min(v, h)) >= total.
// out must be non-decreasing.
func lowestCap(out []int64, total int64) int64 {
	lo, hi := int64(1), out[len(out)-1]
	for lo < hi {
		mid := lo + (hi-lo)/2
		var s int64
		for _, v := range out {
			if s += min(v, mid); s >= total {
				break
			}
		}
		if s >= total {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// RandomShaper draws each slot uniformly around the average.
type RandomShaper struct {
	// Variance is the relative spread; zero means DefaultRandomVariance.
	Variance float64
}

// Shape implements Shaper.
func (s RandomShaper) Shape(total int64, days int, rng *rand.Rand) []int64 {
	variance := s.Variance
	if variance <= 0 {
		variance = DefaultRandomVariance
	}
	avg := float64(total) / float64(days)
	lo := int64(math.Floor(math.Max(1, avg*(1-variance))))
	hi := int64(math.Floor(math.Max(1, avg*(1+variance))))
	if hi < lo {
		hi = lo
	}

	out := make([]int64, days)
	for i := range out {
		out[i] = lo + rng.Int64N(hi-lo+1)
	}
	return out
}

// defaultShapers maps distribution modes to their strategies.
func defaultShapers() map[Distribution]Shaper {
	return map[Distribution]Shaper{
		Equal:       EqualShaper{},
		Progression: ProgressionShaper{},
		Random:      RandomShaper{Variance: DefaultRandomVariance},
	}
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
