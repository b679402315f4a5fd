package search

import (
	"errors"
	"time"
)

var (
	// ErrInvalidDimensions is returned when the embedding size is not positive
	ErrInvalidDimensions = errors.New("embedding dimensions must be positive")
	// ErrInvalidScore is returned when a score threshold is outside [-1, 1]
	ErrInvalidScore = errors.New("score thresholds must be within [-1, 1]")
	// ErrInvalidConcurrency is returned when indexing concurrency is not positive
	ErrInvalidConcurrency = errors.New("index concurrency must be positive")
)

// Config controls the semantic index
type Config struct {
	Dimensions       int           `yaml:"dimensions" default:"384"`
	TopK             int           `yaml:"topK" default:"5"`
	MinScore         float64       `yaml:"minScore" default:"0.3"`
	SimilarTopK      int           `yaml:"similarTopK" default:"5"`
	SimilarMinScore  float64       `yaml:"similarMinScore" default:"0.5"`
	TableCandidates  int           `yaml:"tableCandidates" default:"10"`
	FallbackMinScore float64       `yaml:"fallbackMinScore" default:"0.2"`
	IndexConcurrency int           `yaml:"indexConcurrency" default:"4"`
	VectorTTL        time.Duration `yaml:"vectorTTL" default:"0s"`
}

// DefaultConfig returns the configuration used when none is supplied
func DefaultConfig() Config {
	return Config{
		Dimensions:       384,
		TopK:             5,
		MinScore:         0.3,
		SimilarTopK:      5,
		SimilarMinScore:  0.5,
		TableCandidates:  10,
		FallbackMinScore: 0.2,
		IndexConcurrency: 4,
	}
}

// Validate checks the index configuration
func (c *Config) Validate() error {
	if c.Dimensions <= 0 {
		return ErrInvalidDimensions
	}

	for _, s := range []float64{c.MinScore, c.SimilarMinScore, c.FallbackMinScore} {
		if s < -1 || s > 1 {
			return ErrInvalidScore
		}
	}

	if c.IndexConcurrency <= 0 {
		return ErrInvalidConcurrency
	}

	return nil
}
