package steiner

import "errors"

var (
	// ErrInvalidMaxTerminals is returned when the terminal bound is not positive
	ErrInvalidMaxTerminals = errors.New("maxTerminals must be positive")
	// ErrInvalidMaxGraphNodes is returned when the graph size bound is not positive
	ErrInvalidMaxGraphNodes = errors.New("maxGraphNodes must be positive")
)

// Config bounds the size of the problems the solver accepts
type Config struct {
	MaxTerminals  int `yaml:"maxTerminals" default:"64"`
	MaxGraphNodes int `yaml:"maxGraphNodes" default:"10000"`
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxTerminals:  64,
		MaxGraphNodes: 10000,
	}
}

// Validate checks the solver limits
func (c *Config) Validate() error {
	if c.MaxTerminals <= 0 {
		return ErrInvalidMaxTerminals
	}

	if c.MaxGraphNodes <= 0 {
		return ErrInvalidMaxGraphNodes
	}

	return nil
}
