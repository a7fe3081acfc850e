package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Sentinel errors. Typed errors below match them via errors.Is.
var (
	ErrConfiguration    = errors.New("importer configuration error")
	ErrImporterNotFound = errors.New("importer not registered")
	ErrInvalidMapping   = errors.New("invalid column mapping")
	ErrDuplicateMapping = errors.New("duplicate column mapping")
	ErrRowProcessing    = errors.New("row processing failed")
	ErrCallback         = errors.New("callback failed")
	ErrPipelineUsed     = errors.New("pipeline already ran")
)

// ConfigurationError reports an unknown importer or a malformed definition.
type ConfigurationError struct {
	Importer string
	Reason   string
	Err      error // optional cause, e.g. ErrImporterNotFound
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Importer == "" {
		return "configuration: " + msg
	}
	return fmt.Sprintf("importer %q: %s", e.Importer, msg)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MappingProblem classifies what is wrong with a column mapping.
type MappingProblem int

const (
	UnknownAttribute MappingProblem = iota + 1
	RequiredUnmapped
	ColumnNotInFile
	DuplicateTarget
)

func (p MappingProblem) String() string {
	switch p {
	case UnknownAttribute:
		return "unknown attribute"
	case RequiredUnmapped:
		return "required attribute not mapped"
	case ColumnNotInFile:
		return "mapped column not in file"
	case DuplicateTarget:
		return "attribute mapped more than once"
	default:
		return "mapping problem " + strconv.Itoa(int(p))
	}
}

// MappingError reports a column mapping that cannot be used for a run.
// It matches ErrDuplicateMapping for DuplicateTarget and ErrInvalidMapping
// otherwise.
type MappingError struct {
	Problem   MappingProblem
	Attribute string
	Columns   []string
}

func (e *MappingError) Error() string {
	switch e.Problem {
	case UnknownAttribute:
		return fmt.Sprintf("column %q mapped to unknown attribute %q", first(e.Columns), e.Attribute)
	case RequiredUnmapped:
		return fmt.Sprintf("required attribute %q has no mapped column", e.Attribute)
	case ColumnNotInFile:
		return fmt.Sprintf("required attribute %q mapped to column %q which is not in the file", e.Attribute, first(e.Columns))
	case DuplicateTarget:
		return fmt.Sprintf("attribute %q mapped from more than one column: %q", e.Attribute, e.Columns)
	default:
		return e.Problem.String()
	}
}

func (e *MappingError) Is(target error) bool {
	if e.Problem == DuplicateTarget {
		return target == ErrDuplicateMapping
	}
	return target == ErrInvalidMapping
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// RowError reports a row that could not be read or transformed.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("row processing failed at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("row processing failed: %v", e.Err)
}

func (e *RowError) Is(target error) bool {
	return target == ErrRowProcessing
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Stage names a lifecycle callback.
type Stage string

const (
	StageSetup    Stage = "setup"
	StagePerform  Stage = "perform"
	StageTeardown Stage = "teardown"
	StageError    Stage = "error"
)

// CallbackError wraps a failure (or recovered panic) raised by a callback.
type CallbackError struct {
	Stage Stage
	Batch int // 1-based batch number for perform, 0 otherwise
	Err   error
}

func (e *CallbackError) Error() string {
	if e.Stage == StagePerform && e.Batch > 0 {
		return fmt.Sprintf("%s callback failed on batch %d: %v", e.Stage, e.Batch, e.Err)
	}
	return fmt.Sprintf("%s callback failed: %v", e.Stage, e.Err)
}

func (e *CallbackError) Is(target error) bool {
	return target == ErrCallback
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// ValidateMapping checks mapping against def and the file's headers before
// any row is read. It reports the first problem found, checking attribute
// keys, then duplicates, then required attributes in declaration order.
func ValidateMapping(def *ImporterDefinition, headers []string, mapping ColumnMapping) error {
	present := make(map[string]bool, len(headers)*2)
	for i, h := range headers {
		present[h] = true
		present[strconv.Itoa(i)] = true
	}

	columns := slices.Sorted(maps.Keys(mapping))
	sources := make(map[string][]string)
	for _, col := range columns {
		attr := mapping[col]
		if attr == "" {
			continue
		}
		if _, ok := def.Attribute(attr); !ok {
			return &MappingError{Problem: UnknownAttribute, Attribute: attr, Columns: []string{col}}
		}
		sources[attr] = append(sources[attr], col)
	}

	for _, spec := range def.Attributes {
		if cols := sources[spec.Key]; len(cols) > 1 {
			return &MappingError{Problem: DuplicateTarget, Attribute: spec.Key, Columns: cols}
		}
	}

	for _, spec := range def.Attributes {
		if !spec.Required {
			continue
		}
		cols := sources[spec.Key]
		if len(cols) == 0 {
			return &MappingError{Problem: RequiredUnmapped, Attribute: spec.Key}
		}
		if !present[cols[0]] {
			return &MappingError{Problem: ColumnNotInFile, Attribute: spec.Key, Columns: cols}
		}
	}

	return nil
}
