package core

import "time"

// OpenResult is the outcome of opening one envelope.
type OpenResult struct {
	Envelope        Envelope `json:"envelope"`
	Opened          bool     `json:"opened"` // false when the envelope was already open
	NewAchievements []string `json:"newAchievements"`
	Progress        Progress `json:"progress"`
}

// OpenEnvelope opens envelope id, evaluates achievements and merges the
// newly unlocked ids into c. A repeated open is a no-op and skips
// evaluation.
func OpenEnvelope(c *Challenge, id int, now time.Time, ev *Evaluator) (OpenResult, error) {
	env, opened, err := c.Open(id, now)
	if err != nil {
		return OpenResult{}, err
	}
	res := OpenResult{Envelope: env, Opened: opened, NewAchievements: []string{}}
	if opened {
		if added := c.Unlock(ev.CheckNewAchievements(c, env)); len(added) > 0 {
			res.NewAchievements = added
		}
	}
	res.Progress = ComputeProgress(c.Envelopes)
	return res, nil
}
