package core

import (
	"time"

	"github.com/google/uuid"
)

// AttributeSpec is a target field a file column can be mapped onto.
type AttributeSpec struct {
	Key      string   `json:"key" yaml:"key"`           // Unique within a definition
	Labels   []string `json:"labels" yaml:"labels"`     // Acceptable header texts, used for matching
	Required bool     `json:"required" yaml:"required"` // Run is rejected if no column maps here
}

// HeaderCandidate is one scored association between a file header and an
// attribute, or the ignore sentinel when Ignore is set.
type HeaderCandidate struct {
	Header     string  `json:"header"`
	Attribute  string  `json:"attribute,omitempty"`
	Similarity float64 `json:"similarity"`
	Ignore     bool    `json:"ignore,omitempty"`
}

// ColumnMapping maps a column identifier to an attribute key. The identifier
// is either the header text or the column's zero-based position as a decimal
// string ("0", "1", ...). An empty attribute key means the column is ignored.
type ColumnMapping map[string]string

// Record maps attribute keys to raw cell values (string, float64, bool or nil).
type Record map[string]any

// Batch is an ordered group of records handed to the perform callback.
type Batch []Record

// RunPhase is a state of the import pipeline.
type RunPhase string

const (
	PhaseIdle      RunPhase = "idle"
	PhaseSetup     RunPhase = "setup"
	PhaseStreaming RunPhase = "streaming"
	PhaseFlushing  RunPhase = "flushing"
	PhaseTeardown  RunPhase = "teardown"
	PhaseDone      RunPhase = "done"
	PhaseError     RunPhase = "error"
)

// RunResult summarizes a finished import run.
type RunResult struct {
	RunID            uuid.UUID     `json:"run_id"`
	Importer         string        `json:"importer"`
	RowsRead         int           `json:"rows_read"`
	RowsSkipped      int           `json:"rows_skipped"`
	RecordsProcessed int           `json:"records_processed"`
	Batches          int           `json:"batches"`
	Duration         time.Duration `json:"duration"`

	// Phase is PhaseDone when the run finished (including failures handled by
	// the error callback) and PhaseError when Err is set.
	Phase RunPhase `json:"phase"`

	// FailedIn is the phase in which the first failure occurred, if any.
	FailedIn RunPhase `json:"failed_in,omitempty"`

	// Handled is true when a failure was passed to the error callback and
	// the callback accepted it.
	Handled bool `json:"handled"`

	// Cancelled is true when the context ended before the last batch was
	// flushed. Rows read so far are still flushed and teardown runs.
	Cancelled bool `json:"cancelled"`

	Err error `json:"-"`
}

// OK reports whether the run finished without an unhandled error.
func (r RunResult) OK() bool {
	return r.Err == nil
}
