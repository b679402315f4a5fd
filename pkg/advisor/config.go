package advisor

import "errors"

var (
	// ErrInvalidComplexity is returned when the complexity threshold is not positive
	ErrInvalidComplexity = errors.New("complexityThreshold must be positive")
	// ErrInvalidReuseScore is returned when the reuse threshold is outside [0, 1]
	ErrInvalidReuseScore = errors.New("reuseThreshold must be within [0, 1]")
	// ErrInvalidCandidates is returned when candidate counts are not positive
	ErrInvalidCandidates = errors.New("candidate counts must be positive")
)

// Config tunes view recommendations
type Config struct {
	// ComplexityThreshold is the terminal count below which creating a view is never suggested
	ComplexityThreshold int `yaml:"complexityThreshold" default:"3"`
	// ReuseThreshold is the combined score above which an existing view is considered sufficient
	ReuseThreshold float64 `yaml:"reuseThreshold" default:"0.7"`
	// SourceCandidates is how many views each of semantic search and the solver contribute
	SourceCandidates int `yaml:"sourceCandidates" default:"5"`
	// Recommended is how many merged candidates are recommended
	Recommended int `yaml:"recommended" default:"3"`
	// ImpactBeneficiaries caps the beneficiaries listed in an impact analysis
	ImpactBeneficiaries int `yaml:"impactBeneficiaries" default:"5"`
}

// DefaultConfig returns the standard recommendation settings
func DefaultConfig() Config {
	return Config{
		ComplexityThreshold: 3,
		ReuseThreshold:      0.7,
		SourceCandidates:    5,
		Recommended:         3,
		ImpactBeneficiaries: 5,
	}
}

// Validate checks the recommendation settings
func (c *Config) Validate() error {
	if c.ComplexityThreshold <= 0 {
		return ErrInvalidComplexity
	}

	if c.ReuseThreshold < 0 || c.ReuseThreshold > 1 {
		return ErrInvalidReuseScore
	}

	if c.SourceCandidates <= 0 || c.Recommended <= 0 || c.ImpactBeneficiaries <= 0 {
		return ErrInvalidCandidates
	}

	return nil
}
