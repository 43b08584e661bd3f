package transfer

import (
	"fmt"
	"strings"
)

// TargetOperation is a pre-operation applied to the target before rows move.
type TargetOperation string

const (
	// DropIfExists drops the target when it exists.
	DropIfExists TargetOperation = "drop_if_exists"
	// TruncateTarget empties the target when it exists.
	TruncateTarget TargetOperation = "truncate"
	// CreateIfAbsent creates a missing target for insert, upsert, update and
	// delete. A copy always creates a missing target.
	CreateIfAbsent TargetOperation = "create_if_absent"
)

// ParseTargetOperation accepts the YAML spelling of an operation.
func ParseTargetOperation(s string) (TargetOperation, error) {
	switch op := TargetOperation(strings.ToLower(strings.TrimSpace(s))); op {
	case DropIfExists, TruncateTarget, CreateIfAbsent:
		return op, nil
	}
	return "", fmt.Errorf("unknown target operation %q (valid: drop_if_exists, truncate, create_if_absent)", s)
}

// Config tunes one transfer.
type Config struct {
	// FetchSize is the number of rows the driver fetches per round trip.
	FetchSize int `yaml:"fetch_size"`
	// BatchSize is the number of rows submitted per batch.
	BatchSize int `yaml:"batch_size"`
	// CommitFrequency is the number of batches between commits.
	CommitFrequency int `yaml:"commit_frequency"`
	// TargetWorkers is the number of concurrent writers, capped by the
	// target's writer capability.
	TargetWorkers int `yaml:"target_workers"`
	// BufferCapacity is the number of batches queued between the reader and
	// the writers.
	BufferCapacity   int               `yaml:"buffer_capacity"`
	TargetOperations []TargetOperation `yaml:"target_operations"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		FetchSize:       10000,
		BatchSize:       1000,
		CommitFrequency: 5,
		TargetWorkers:   1,
		BufferCapacity:  10,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.FetchSize == 0 {
		c.FetchSize = d.FetchSize
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.CommitFrequency == 0 {
		c.CommitFrequency = d.CommitFrequency
	}
	if c.TargetWorkers == 0 {
		c.TargetWorkers = d.TargetWorkers
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = d.BufferCapacity
	}
	return c
}

// Validate rejects non-positive sizes and unknown or conflicting target
// operations.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"fetch_size", c.FetchSize},
		{"batch_size", c.BatchSize},
		{"commit_frequency", c.CommitFrequency},
		{"target_workers", c.TargetWorkers},
		{"buffer_capacity", c.BufferCapacity},
	} {
		if f.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", f.name, f.v)
		}
	}
	for _, op := range c.TargetOperations {
		if _, err := ParseTargetOperation(string(op)); err != nil {
			return err
		}
	}
	if c.Has(DropIfExists) && c.Has(TruncateTarget) {
		return fmt.Errorf("target operations %s and %s are exclusive", DropIfExists, TruncateTarget)
	}
	return nil
}

// Has reports whether op is among the target operations.
func (c Config) Has(op TargetOperation) bool {
	for _, o := range c.TargetOperations {
		if TargetOperation(strings.ToLower(string(o))) == op {
			return true
		}
	}
	return false
}
