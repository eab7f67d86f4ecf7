package domain

import "time"

// StepRecord is one value logged by the inspector.
type StepRecord struct {
	Step     int       `json:"step"`
	Value    float64   `json:"value"`
	LoggedAt time.Time `json:"logged_at"`
}

// RunRecord is everything an inspector logged during one run.
type RunRecord struct {
	RunID   string       `json:"run_id"`
	Steps   []StepRecord `json:"steps"`
	SavedAt time.Time    `json:"saved_at"`
}
