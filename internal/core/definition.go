package core

import (
	"context"
	"fmt"
	"strings"
)

// SetupFunc runs once before the first row is read.
type SetupFunc func(ctx context.Context, pc *PipelineContext) error

// PerformFunc receives each full batch, and the final partial batch.
type PerformFunc func(ctx context.Context, pc *PipelineContext, batch Batch) error

// TeardownFunc runs once after streaming ends, on success and on failure,
// provided setup completed.
type TeardownFunc func(ctx context.Context, pc *PipelineContext) error

// ErrorFunc receives the first failure of a run. Returning nil marks the run
// as handled.
type ErrorFunc func(ctx context.Context, pc *PipelineContext, err error) error

// Callbacks are the lifecycle hooks of an importer. Only Perform is required.
type Callbacks struct {
	Setup    SetupFunc
	Perform  PerformFunc
	Teardown TeardownFunc
	Error    ErrorFunc
}

// ImporterDefinition describes one named importer. It must not be modified
// after registration.
type ImporterDefinition struct {
	Name        string
	Description string
	Attributes  []AttributeSpec

	// BatchSize bounds the records passed to a single Perform call.
	// Zero disables batching: all records arrive in one final call.
	BatchSize int

	Callbacks Callbacks
}

// Validate reports a ConfigurationError for a malformed definition.
func (d *ImporterDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ConfigurationError{Reason: "importer name is empty"}
	}
	if len(d.Attributes) == 0 {
		return &ConfigurationError{Importer: d.Name, Reason: "no attributes declared"}
	}

	seen := make(map[string]bool, len(d.Attributes))
	for i, a := range d.Attributes {
		if a.Key == "" {
			return &ConfigurationError{Importer: d.Name, Reason: fmt.Sprintf("attribute %d has an empty key", i)}
		}
		if seen[a.Key] {
			return &ConfigurationError{Importer: d.Name, Reason: fmt.Sprintf("duplicate attribute key %q", a.Key)}
		}
		seen[a.Key] = true
	}

	if d.BatchSize < 0 {
		return &ConfigurationError{Importer: d.Name, Reason: fmt.Sprintf("batch size must be >= 0, got %d", d.BatchSize)}
	}
	if d.Callbacks.Perform == nil {
		return &ConfigurationError{Importer: d.Name, Reason: "perform callback is required"}
	}
	return nil
}

// Attribute returns the attribute with the given key.
func (d *ImporterDefinition) Attribute(key string) (AttributeSpec, bool) {
	for _, a := range d.Attributes {
		if a.Key == key {
			return a, true
		}
	}
	return AttributeSpec{}, false
}

// Keys returns the attribute keys in declaration order.
func (d *ImporterDefinition) Keys() []string {
	keys := make([]string, len(d.Attributes))
	for i, a := range d.Attributes {
		keys[i] = a.Key
	}
	return keys
}

// RequiredKeys returns the keys of required attributes in declaration order.
func (d *ImporterDefinition) RequiredKeys() []string {
	var keys []string
	for _, a := range d.Attributes {
		if a.Required {
			keys = append(keys, a.Key)
		}
	}
	return keys
}
