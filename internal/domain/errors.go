package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig        = errors.New("invalid configuration")
	ErrNodeStartup   = errors.New("node startup failed")
	ErrDeployment    = errors.New("deployment failed")
	ErrStepExecution = errors.New("step execution failed")
	ErrAlreadyRun    = errors.New("arena already run")
	ErrNotFound      = errors.New("not found")
)

// Phases of a run reported by StepExecutionError.
const (
	PhaseInit      = "init"
	PhaseFeed      = "feed"
	PhaseProcess   = "process"
	PhaseArbitrage = "arbitrage"
	PhaseLog       = "log"
	PhaseSave      = "save"
)

// ConfigError reports a missing or invalid builder field. It matches
// ErrConfig with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// NodeStartupError reports that the ephemeral node could not be launched or
// reached.
type NodeStartupError struct {
	Err error
}

func (e *NodeStartupError) Error() string {
	return "node startup: " + e.Err.Error()
}

func (e *NodeStartupError) Unwrap() []error { return []error{ErrNodeStartup, e.Err} }

// DeploymentError reports a failed or reverted contract deployment.
type DeploymentError struct {
	Contract string
	Err      error
}

func (e *DeploymentError) Error() string {
	if e.Contract == "" {
		return "deploy: " + e.Err.Error()
	}
	return fmt.Sprintf("deploy %s: %v", e.Contract, e.Err)
}

func (e *DeploymentError) Unwrap() []error { return []error{ErrDeployment, e.Err} }

// StepExecutionError reports a failure inside the run loop. Step is nil for
// failures outside a tick (init, save).
type StepExecutionError struct {
	Step  *int
	Phase string
	Err   error
}

func (e *StepExecutionError) Error() string {
	if e.Step == nil {
		return fmt.Sprintf("%s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("step %d %s: %v", *e.Step, e.Phase, e.Err)
}

func (e *StepExecutionError) Unwrap() []error { return []error{ErrStepExecution, e.Err} }
