package domain

import "context"

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
}

// StepPublisher streams logged values while a run is in progress.
type StepPublisher interface {
	Publish(ctx context.Context, runID string, rec StepRecord) error
}
