package arena

import "github.com/anthias-labs/arena/internal/domain"

// Config holds the parameters of a single run.
type Config struct {
	// Steps is the number of ticks to simulate.
	Steps int
}

// NewConfig returns a Config running steps ticks.
func NewConfig(steps int) Config {
	return Config{Steps: steps}
}

// Validate rejects a negative step count.
func (c Config) Validate() error {
	if c.Steps < 0 {
		return &domain.ConfigError{Field: "steps", Reason: "must not be negative"}
	}
	return nil
}
