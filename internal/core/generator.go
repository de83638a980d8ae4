package core

import (
	"math/rand/v2"
	"time"
)

// MaxFineTuneIterations bounds the random fine-tune phase of reconciliation.
const MaxFineTuneIterations = 200_000

// GenerationStats describes how a generated set was reconciled.
type GenerationStats struct {
	Total         int64 // possibly clamped total
	Clamped       bool  // total was raised to days
	InitialDiff   int64 // total minus the raw shape sum
	BulkApplied   bool
	FineTuneSteps int
	UsedFallback  bool
}

// Generator produces envelope sets. It owns its random source and the
// shaper registry; it is not safe for concurrent use.
type Generator struct {
	rng     *rand.Rand
	shapers map[Distribution]Shaper
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithShaper registers or replaces the strategy for a distribution mode.
func WithShaper(d Distribution, s Shaper) GeneratorOption {
	return func(g *Generator) {
		g.shapers[d] = s
	}
}

// NewGenerator creates a generator drawing from src. A nil src seeds from
// the runtime's random source.
func NewGenerator(src rand.Source, opts ...GeneratorOption) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), uint64(time.Now().UnixNano()))
	}
	g := &Generator{
		rng:     rand.New(src),
		shapers: defaultShapers(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate partitions total into days envelopes shaped by mode.
//
// If total < days it is raised to days. Unknown modes fall back to Equal.
// The result always has exactly days closed envelopes with ids 1..days,
// every amount >= 1, and amounts summing to the (possibly raised) total,
// assigned to ids in uniformly random order. days < 1 yields nil.
func (g *Generator) Generate(total int64, days int, mode Distribution) []Envelope {
	envs, _ := g.GenerateWithStats(total, days, mode)
	return envs
}

// GenerateWithStats is Generate plus a description of the reconciliation.
func (g *Generator) GenerateWithStats(total int64, days int, mode Distribution) ([]Envelope, GenerationStats) {
	if days < 1 {
		return nil, GenerationStats{}
	}
	amounts, stats := g.Amounts(total, days, mode)
	g.shuffle(amounts)

	envs := make([]Envelope, days)
	for i, a := range amounts {
		envs[i] = Envelope{ID: i + 1, Amount: a}
	}
	return envs, stats
}

// Amounts returns the reconciled amounts in generation order, before the
// shuffle. days < 1 yields nil.
func (g *Generator) Amounts(total int64, days int, mode Distribution) ([]int64, GenerationStats) {
	if days < 1 {
		return nil, GenerationStats{}
	}
	stats := GenerationStats{Total: total}
	if total < int64(days) {
		total = int64(days)
		stats.Total = total
		stats.Clamped = true
	}

	shaper, ok := g.shapers[mode]
	if !ok {
		shaper = g.shapers[Equal]
	}

	// Normalize whatever the shaper returned to exactly days slots.
	raw := shaper.Shape(total, days, g.rng)
	amounts := make([]int64, days)
	copy(amounts, raw)

	g.reconcile(amounts, total, &stats)
	return amounts, stats
}

// reconcile forces amounts to be >= 1 and to sum to total exactly.
// It requires total >= len(amounts).
func (g *Generator) reconcile(amounts []int64, total int64, stats *GenerationStats) {
	days := int64(len(amounts))

	var sum int64
	for i, a := range amounts {
		if a < 1 {
			amounts[i] = 1
		}
		sum += amounts[i]
	}
	diff := total - sum
	stats.InitialDiff = diff

	// Bulk phase: move whole chunks when far from the target.
	if abs64(diff) > days {
		chunk := floorDiv(diff, days)
		if chunk != 0 {
			stats.BulkApplied = true
			for i := range amounts {
				if chunk < 0 && amounts[i]+chunk < 1 {
					continue
				}
				amounts[i] += chunk
				diff -= chunk
			}
		}
	}

	// Fine-tune phase: single units on random slots, bounded.
	for diff != 0 && stats.FineTuneSteps < MaxFineTuneIterations {
		i := g.rng.IntN(len(amounts))
		if diff > 0 {
			amounts[i]++
			diff--
		} else if amounts[i] > 1 {
			amounts[i]--
			diff++
		}
		stats.FineTuneSteps++
	}

	// Forced distribution, left to right.
	if diff != 0 {
		stats.UsedFallback = true
		for i := range amounts {
			if diff == 0 {
				break
			}
			if diff > 0 {
				amounts[i] += diff
				diff = 0
				continue
			}
			if available := amounts[i] - 1; available > 0 {
				take := min(available, -diff)
				amounts[i] -= take
				diff += take
			}
		}
	}
}

// shuffle permutes amounts uniformly (Fisher-Yates).
func (g *Generator) shuffle(amounts []int64) {
	for i := len(amounts) - 1; i > 0; i-- {
		j := g.rng.IntN(i + 1)
		amounts[i], amounts[j] = amounts[j], amounts[i]
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
