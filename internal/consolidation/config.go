package consolidation

import "fmt"

// Config tunes the decision engine.
type Config struct {
	// WindowDays bounds how long after its last update a work order still
	// accepts consolidations.
	WindowDays int

	// SimilarityThreshold is the minimum token overlap (0.0-1.0) for a work
	// order to count as the same problem. Containment always matches.
	SimilarityThreshold float64

	// EscalationThreshold is the recurrence count at which escalation
	// becomes eligible and the default choice switches to escalate.
	EscalationThreshold int

	// MaxUpdateAttempts bounds the optimistic update retries per item.
	MaxUpdateAttempts int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		WindowDays:          30,
		SimilarityThreshold: 0.5,
		EscalationThreshold: 3,
		MaxUpdateAttempts:   3,
	}
}

// Validate checks if the configuration has valid values.
func (c Config) Validate() error {
	if c.WindowDays <= 0 {
		return fmt.Errorf("window_days must be positive (got %d)", c.WindowDays)
	}
	if c.WindowDays > 365 {
		return fmt.Errorf("window_days too large (got %d, max 365)", c.WindowDays)
	}
	if c.SimilarityThreshold <= 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("similarity_threshold must be in (0.0, 1.0] (got %.2f)", c.SimilarityThreshold)
	}
	if c.EscalationThreshold < 2 {
		return fmt.Errorf("escalation_threshold must be at least 2 (got %d)", c.EscalationThreshold)
	}
	if c.MaxUpdateAttempts < 1 {
		return fmt.Errorf("max_update_attempts must be at least 1 (got %d)", c.MaxUpdateAttempts)
	}
	if c.MaxUpdateAttempts > 10 {
		return fmt.Errorf("max_update_attempts too large (got %d, max 10)", c.MaxUpdateAttempts)
	}
	return nil
}

// String returns a human-readable representation of the config.
func (c Config) String() string {
	return fmt.Sprintf("Config{WindowDays: %d, Threshold: %.2f, Escalation: %d, MaxUpdateAttempts: %d}",
		c.WindowDays, c.SimilarityThreshold, c.EscalationThreshold, c.MaxUpdateAttempts)
}
