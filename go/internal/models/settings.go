package models

import "time"

// ResultMode selects how a timer-closed round gets its outcome.
type ResultMode string

const (
	ResultModeAutomatic ResultMode = "AUTOMATIC"
	ResultModeManual    ResultMode = "MANUAL"
)

// ModeSettings holds operator settings for one mode.
type ModeSettings struct {
	Mode          string     `json:"mode"`
	ResultMode    ResultMode `json:"result_mode"`
	ManualOutcome *string    `json:"manual_outcome,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ManualOutcomeFor returns the preset outcome when manual mode is on and one is set.
func (s ModeSettings) ManualOutcomeFor() (string, bool) {
	if s.ResultMode != ResultModeManual || s.ManualOutcome == nil || *s.ManualOutcome == "" {
		return "", false
	}
	return *s.ManualOutcome, true
}
