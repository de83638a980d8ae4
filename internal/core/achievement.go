package core

import (
	"sort"
	"time"
)

// ConditionType is the rule family of an achievement.
type ConditionType string

const (
	ConditionAmount     ConditionType = "amount"
	ConditionStreak     ConditionType = "streak"
	ConditionCompletion ConditionType = "completion"
)

// Achievement ids. Clients persist these; keep them stable.
const (
	AchievementFirstStep   = "first_step"
	AchievementSaved1000   = "saved_1000"
	AchievementSaved5000   = "saved_5000"
	AchievementSaved10000  = "saved_10000"
	AchievementStreak3     = "streak_3"
	AchievementStreak7     = "streak_7"
	AchievementHalfWay     = "half_way"
	AchievementGoalReached = "goal_reached"
)

// AchievementDefinition is the language-independent unlock rule.
//
// Amount rules compare the saved sum with Threshold, or with
// Threshold*targetAmount when Relative is set. Streak rules compare the
// longest run of consecutive opening days. Completion rules require at
// least one open envelope and saved/target*100 >= Threshold.
type AchievementDefinition struct {
	ID        string        `json:"id"`
	Condition ConditionType `json:"conditionType"`
	Threshold float64       `json:"threshold"`
	Relative  bool          `json:"relative,omitempty"`
}

// DefaultAchievements is the canonical achievement list, in display order.
func DefaultAchievements() []AchievementDefinition {
	return []AchievementDefinition{
		{ID: AchievementFirstStep, Condition: ConditionCompletion, Threshold: 0},
		{ID: AchievementSaved1000, Condition: ConditionAmount, Threshold: 1000},
		{ID: AchievementSaved5000, Condition: ConditionAmount, Threshold: 5000},
		{ID: AchievementSaved10000, Condition: ConditionAmount, Threshold: 10000},
		{ID: AchievementStreak3, Condition: ConditionStreak, Threshold: 3},
		{ID: AchievementStreak7, Condition: ConditionStreak, Threshold: 7},
		{ID: AchievementHalfWay, Condition: ConditionCompletion, Threshold: 50},
		{ID: AchievementGoalReached, Condition: ConditionCompletion, Threshold: 100},
	}
}

// AmountThreshold resolves the absolute amount needed for an amount rule.
func (d AchievementDefinition) AmountThreshold(target int64) float64 {
	if d.Relative {
		return d.Threshold * float64(target)
	}
	return d.Threshold
}

// AchievementStatus is a definition with its evaluation against a challenge.
type AchievementStatus struct {
	AchievementDefinition
	Unlocked bool    `json:"unlocked"`
	Current  float64 `json:"current"` // saved amount, streak days or percent
	Goal     float64 `json:"goal"`
}

// Evaluator decides which achievements a challenge has earned. Calendar
// days are taken in Location.
type Evaluator struct {
	definitions []AchievementDefinition
	location    *time.Location
}

// NewEvaluator creates an evaluator. Nil defs means DefaultAchievements; a
// nil loc means UTC.
func NewEvaluator(defs []AchievementDefinition, loc *time.Location) *Evaluator {
	if defs == nil {
		defs = DefaultAchievements()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{definitions: defs, location: loc}
}

// Definitions returns a copy of the evaluator's definitions.
func (ev *Evaluator) Definitions() []AchievementDefinition {
	return append([]AchievementDefinition(nil), ev.definitions...)
}

// Location returns the day boundary location.
func (ev *Evaluator) Location() *time.Location {
	return ev.location
}

// CheckNewAchievements returns ids earned by the challenge's current
// envelope set that are not yet unlocked, in definition order. Every rule
// reads the full envelope set of c, so the just-opened envelope is only
// taken into account once it is already open in c. It does not modify c.
func (ev *Evaluator) CheckNewAchievements(c *Challenge, _ Envelope) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, st := range ev.evaluate(c) {
		if !st.Unlocked || c.IsUnlocked(st.ID) {
			continue
		}
		if _, dup := seen[st.ID]; dup {
			continue
		}
		seen[st.ID] = struct{}{}
		out = append(out, st.ID)
	}
	return out
}

// Status evaluates every definition. Unlocked reflects the persisted set
// or a currently met rule.
func (ev *Evaluator) Status(c *Challenge) []AchievementStatus {
	statuses := ev.evaluate(c)
	for i := range statuses {
		statuses[i].Unlocked = statuses[i].Unlocked || c.IsUnlocked(statuses[i].ID)
	}
	return statuses
}

func (ev *Evaluator) evaluate(c *Challenge) []AchievementStatus {
	var saved int64
	opened := 0
	for _, e := range c.Envelopes {
		if e.IsOpen {
			saved += e.Amount
			opened++
		}
	}
	var percent float64
	if c.TargetAmount != 0 {
		percent = float64(saved) / float64(c.TargetAmount) * 100
	}
	streak := MaxStreak(c.Envelopes, ev.location)

	out := make([]AchievementStatus, 0, len(ev.definitions))
	for _, d := range ev.definitions {
		st := AchievementStatus{AchievementDefinition: d}
		switch d.Condition {
		case ConditionAmount:
			st.Goal = d.AmountThreshold(c.TargetAmount)
			st.Current = float64(saved)
			st.Unlocked = st.Current >= st.Goal
		case ConditionStreak:
			st.Goal = d.Threshold
			st.Current = float64(streak)
			st.Unlocked = st.Current >= st.Goal
		case ConditionCompletion:
			st.Goal = d.Threshold
			st.Current = percent
			st.Unlocked = opened > 0 && percent >= d.Threshold
		default:
			// Unknown rule types never unlock.
		}
		out = append(out, st)
	}
	return out
}

// MaxStreak returns the longest run of consecutive calendar days in loc
// on which at least one envelope was opened.
func MaxStreak(envs []Envelope, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	days := make(map[int64]struct{})
	for _, e := range envs {
		if !e.IsOpen || e.OpenedAt == nil {
			continue
		}
		days[civilDay(*e.OpenedAt, loc)] = struct{}{}
	}
	if len(days) == 0 {
		return 0
	}

	sorted := make([]int64, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	best, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] == 1 {
			run++
		} else {
			run = 1
		}
		best = max(best, run)
	}
	return best
}

// civilDay numbers the calendar date of t in loc, independent of DST.
func civilDay(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
