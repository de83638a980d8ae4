package core

import "sort"

// Progress is the aggregate state of an envelope set.
type Progress struct {
	Total         int64   `json:"total"`
	Saved         int64   `json:"saved"`
	Remaining     int64   `json:"remaining"`
	DaysTotal     int     `json:"daysTotal"`
	DaysCompleted int     `json:"daysCompleted"`
	DaysRemaining int     `json:"daysRemaining"`
	Percentage    float64 `json:"percentage"`
}

// ComputeProgress sums the envelope set. Percentage is 0 when the total is 0.
func ComputeProgress(envs []Envelope) Progress {
	var p Progress
	for _, e := range envs {
		p.Total += e.Amount
		if e.IsOpen {
			p.Saved += e.Amount
			p.DaysCompleted++
		}
	}
	p.DaysTotal = len(envs)
	p.Remaining = p.Total - p.Saved
	p.DaysRemaining = p.DaysTotal - p.DaysCompleted
	if p.Total != 0 {
		p.Percentage = float64(p.Saved) / float64(p.Total) * 100
	}
	return p
}

// EnvelopeFilter selects envelopes by open state.
type EnvelopeFilter string

const (
	FilterAll    EnvelopeFilter = "all"
	FilterOpen   EnvelopeFilter = "opened"
	FilterClosed EnvelopeFilter = "closed"
)

// EnvelopeSort orders envelope listings.
type EnvelopeSort string

const (
	SortByID     EnvelopeSort = "id"
	SortByAmount EnvelopeSort = "amount"
)

// FilterEnvelopes returns a new slice with the envelopes matching f.
// Unknown filters behave like FilterAll.
func FilterEnvelopes(envs []Envelope, f EnvelopeFilter) []Envelope {
	out := make([]Envelope, 0, len(envs))
	for _, e := range envs {
		switch f {
		case FilterOpen:
			if !e.IsOpen {
				continue
			}
		case FilterClosed:
			if e.IsOpen {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// SortEnvelopes sorts envs in place. Amount ties keep id order.
func SortEnvelopes(envs []Envelope, by EnvelopeSort) {
	sort.SliceStable(envs, func(i, j int) bool {
		if by == SortByAmount && envs[i].Amount != envs[j].Amount {
			return envs[i].Amount < envs[j].Amount
		}
		return envs[i].ID < envs[j].ID
	})
}

// TimelinePoint is the cumulative amount saved after one opened envelope.
type TimelinePoint struct {
	Step       int   `json:"step"`
	EnvelopeID int   `json:"envelopeId"`
	Amount     int64 `json:"amount"`
	Saved      int64 `json:"saved"`
}

// Timeline returns the running saved total in open order. Envelopes
// without a day number sort after ranked ones, by id.
func Timeline(envs []Envelope) []TimelinePoint {
	opened := FilterEnvelopes(envs, FilterOpen)
	sort.SliceStable(opened, func(i, j int) bool {
		a, b := opened[i].DayNumber, opened[j].DayNumber
		switch {
		case a == 0 && b == 0:
			return opened[i].ID < opened[j].ID
		case a == 0:
			return false
		case b == 0:
			return true
		}
		return a < b
	})

	points := make([]TimelinePoint, len(opened))
	var saved int64
	for i, e := range opened {
		saved += e.Amount
		points[i] = TimelinePoint{Step: i + 1, EnvelopeID: e.ID, Amount: e.Amount, Saved: saved}
	}
	return points
}
