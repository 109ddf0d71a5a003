package domain

import "time"

// UserSettings holds the per-user preferences the planner reads at session
// start and writes once after a successful submission.
type UserSettings struct {
	UserID string `json:"user_id"`

	// PreviousPhases lists recently used distinct patterns, oldest first.
	PreviousPhases []Pattern `json:"previous_phases"`

	// Retries is the last retry count the user chose to keep as default.
	Retries int `json:"retries"`

	// NeedsConfirmation asks for an explicit confirmation before submitting.
	NeedsConfirmation bool `json:"needs_confirmation"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of s.
func (s UserSettings) Clone() UserSettings {
	c := s
	if s.PreviousPhases != nil {
		c.PreviousPhases = make([]Pattern, len(s.PreviousPhases))
		for i, p := range s.PreviousPhases {
			c.PreviousPhases[i] = append(Pattern(nil), p...)
		}
	}
	return c
}
