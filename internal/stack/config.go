package stack

import (
	"log/slog"

	"github.com/roach88/graphstack/internal/config"
	"github.com/roach88/graphstack/internal/entity"
)

// MergePolicy decides what happens to unsaved main-context edits when a
// background commit touching the same object is merged.
type MergePolicy string

const (
	// MergeStoreWins discards unsaved edits in favor of committed state.
	MergeStoreWins MergePolicy = config.MergeStore

	// MergeObjectWins keeps unsaved attribute edits and takes every other
	// attribute from the commit.
	MergeObjectWins MergePolicy = config.MergeObject
)

// Config configures a Stack.
type Config struct {
	// Name identifies the stack in logs and errors.
	Name string

	// DeleteBatchSize bounds how many identities DeleteAll reads per page.
	DeleteBatchSize int

	// MergePolicy resolves conflicts between merges and unsaved main edits.
	MergePolicy MergePolicy

	// StrictConfinement panics on confinement violations. When false they
	// are logged and returned as errors.
	StrictConfinement bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		DeleteBatchSize:   config.DefaultDeleteBatchSize,
		MergePolicy:       MergeStoreWins,
		StrictConfinement: true,
	}
}

// ConfigFrom converts a loaded configuration into a stack Config.
func ConfigFrom(c config.Configuration) Config {
	return Config{
		Name:              c.Name,
		DeleteBatchSize:   c.DeleteBatchSize,
		MergePolicy:       MergePolicy(c.MergePolicy),
		StrictConfinement: c.StrictConfinement,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.DeleteBatchSize < 1 {
		c.DeleteBatchSize = config.DefaultDeleteBatchSize
	}
	if c.MergePolicy != MergeStoreWins && c.MergePolicy != MergeObjectWins {
		c.MergePolicy = MergeStoreWins
	}
}

// Option configures the injectable collaborators of a Stack.
type Option func(*Stack)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stack) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator sets the generator for new entity IDs.
// Defaults to entity.UUIDv7Generator.
func WithIDGenerator(gen entity.IDGenerator) Option {
	return func(s *Stack) {
		if gen != nil {
			s.ids = gen
		}
	}
}
