package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capabilities are the host facts and side effects a run may use. They are
// supplied by the caller of Service.Run and exposed to every callback through
// the PipelineContext.
type Capabilities struct {
	Identity   string // authenticated caller, "" if anonymous
	RemoteAddr string
	UserAgent  string

	// Values carries host-provided extras, e.g. a tenant id or a writer
	// handle, keyed by name.
	Values map[string]any
}

// Value returns the named host value.
func (c Capabilities) Value(name string) (any, bool) {
	v, ok := c.Values[name]
	return v, ok
}

// Counters track the progress of a run.
type Counters struct {
	RowsRead         int `json:"rows_read"`
	RowsSkipped      int `json:"rows_skipped"`      // blank rows dropped
	RecordsEmitted   int `json:"records_emitted"`   // records appended to a batch
	Batches          int `json:"batches"`           // successful perform calls
	RecordsProcessed int `json:"records_processed"` // records in successful perform calls
}

// PipelineContext is the state of a single run. It is created at run start,
// passed to every callback, and discarded when the run ends.
type PipelineContext struct {
	RunID     uuid.UUID
	Importer  string
	Caps      Capabilities
	StartedAt time.Time

	// Logger is scoped to the run (run_id and importer attributes).
	Logger *slog.Logger

	mu       sync.Mutex
	counters Counters
	errs     []error
	values   map[string]any
}

// NewPipelineContext creates the context for one run of importer.
func NewPipelineContext(importer string, caps Capabilities, logger *slog.Logger) *PipelineContext {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &PipelineContext{
		RunID:     id,
		Importer:  importer,
		Caps:      caps,
		StartedAt: time.Now(),
		Logger:    logger.With("run_id", id.String(), "importer", importer),
		values:    make(map[string]any),
	}
}

// Set stores user state for later callbacks.
func (pc *PipelineContext) Set(key string, value any) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.values[key] = value
}

// Get returns user state stored with Set.
func (pc *PipelineContext) Get(key string) (any, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	v, ok := pc.values[key]
	return v, ok
}

// ValueOf returns the value stored under key if it has type T.
func ValueOf[T any](pc *PipelineContext, key string) (T, bool) {
	v, ok := pc.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Counters returns a snapshot of the run counters.
func (pc *PipelineContext) Counters() Counters {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.counters
}

// Errors returns the failures recorded during the run, first one first.
func (pc *PipelineContext) Errors() []error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make([]error, len(pc.errs))
	copy(out, pc.errs)
	return out
}

func (pc *PipelineContext) addError(err error) {
	pc.mu.Lock()
	pc.errs = append(pc.errs, err)
	pc.mu.Unlock()
}

func (pc *PipelineContext) update(fn func(c *Counters)) {
	pc.mu.Lock()
	fn(&pc.counters)
	pc.mu.Unlock()
}
