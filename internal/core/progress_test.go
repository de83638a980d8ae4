package core

import (
	"slices"
	"testing"
	"time"
)

func TestComputeProgress(t *testing.T) {
	c := fixedChallenge(10, 20, 30, 40)
	c.Open(4, time.Now())
	c.Open(1, time.Now())

	got := ComputeProgress(c.Envelopes)
	want := Progress{
		Total: 100, Saved: 50, Remaining: 50,
		DaysTotal: 4, DaysCompleted: 2, DaysRemaining: 2,
		Percentage: 50,
	}
	if got != want {
		t.Errorf("ComputeProgress() = %+v, want %+v", got, want)
	}
}

func TestComputeProgress_Empty(t *testing.T) {
	if got := ComputeProgress(nil); got != (Progress{}) {
		t.Errorf("ComputeProgress(nil) = %+v, want zero", got)
	}
}

func TestFilterAndSortEnvelopes(t *testing.T) {
	c := fixedChallenge(30, 10, 20, 10)
	c.Open(1, time.Now())
	c.Open(3, time.Now())

	ids := func(envs []Envelope) []int {
		out := make([]int, len(envs))
		for i, e := range envs {
			out[i] = e.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter EnvelopeFilter
		sort   EnvelopeSort
		want   []int
	}{
		{"all by id", FilterAll, SortByID, []int{1, 2, 3, 4}},
		{"all by amount", FilterAll, SortByAmount, []int{2, 4, 3, 1}},
		{"opened", FilterOpen, SortByID, []int{1, 3}},
		{"closed by amount", FilterClosed, SortByAmount, []int{2, 4}},
		{"unknown filter", EnvelopeFilter("odd"), SortByID, []int{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterEnvelopes(c.Envelopes, tt.filter)
			SortEnvelopes(got, tt.sort)
			if !slices.Equal(ids(got), tt.want) {
				t.Errorf("ids = %v, want %v", ids(got), tt.want)
			}
		})
	}

	// Filtering copies; sorting the result leaves the challenge alone.
	if c.Envelopes[0].ID != 1 || c.Envelopes[1].ID != 2 {
		t.Errorf("challenge envelopes reordered: %v", ids(c.Envelopes))
	}
}

func TestTimeline(t *testing.T) {
	c := fixedChallenge(10, 20, 30)
	c.Open(3, time.Now())
	c.Open(1, time.Now())
	c.Envelopes[1].IsOpen = true // legacy record without rank

	got := Timeline(c.Envelopes)
	want := []TimelinePoint{
		{Step: 1, EnvelopeID: 3, Amount: 30, Saved: 30},
		{Step: 2, EnvelopeID: 1, Amount: 10, Saved: 40},
		{Step: 3, EnvelopeID: 2, Amount: 20, Saved: 60},
	}
	if len(got) != len(want) {
		t.Fatalf("Timeline() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Timeline()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
