package importers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/sink"
)

// Context keys set by the built callbacks.
const (
	KeyIdentity    = "identity"
	KeySource      = "source"
	KeyRowsWritten = "rows_written"
)

// Options configure Build.
type Options struct {
	// Writer persists records. Required.
	Writer sink.Writer
	// Auditor, if set, receives one entry per run.
	Auditor *Auditor
	// HandleErrors marks run failures as handled once they are logged and
	// audited, so the run reports done instead of error.
	HandleErrors bool
}

type importer struct {
	spec    Spec
	table   string
	columns []string // attribute keys, then the run id column
	normal  []Normalizer
	opts    Options
}

// Build turns spec into an importer definition whose callbacks:
//   - setup: create the destination (and audit) table and note who runs it
//   - perform: clean, normalize and write each batch
//   - teardown: log the run summary and write the audit entry
//   - error: log the failure, auditing it when teardown will not run
func Build(spec Spec, opts Options) (*core.ImporterDefinition, error) {
	if opts.Writer == nil {
		return nil, &core.ConfigurationError{Importer: spec.Name, Reason: "no sink writer"}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	imp := &importer{
		spec:    spec,
		table:   spec.TableName(),
		columns: make([]string, 0, len(spec.Attributes)+1),
		normal:  make([]Normalizer, len(spec.Attributes)),
		opts:    opts,
	}
	attrs := make([]core.AttributeSpec, len(spec.Attributes))
	for i, a := range spec.Attributes {
		attrs[i] = a.AttributeSpec
		imp.columns = append(imp.columns, a.Key)
		imp.normal[i] = chain(a.Normalize)
	}
	imp.columns = append(imp.columns, sink.RunIDColumn)

	def := &core.ImporterDefinition{
		Name:        spec.Name,
		Description: spec.Description,
		Attributes:  attrs,
		BatchSize:   spec.BatchSize,
		Callbacks: core.Callbacks{
			Setup:    imp.setup,
			Perform:  imp.perform,
			Teardown: imp.teardown,
			Error:    imp.onError,
		},
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// RegisterAll builds every spec and registers it with reg.
func RegisterAll(reg *core.Registry, specs []Spec, opts Options) error {
	for _, s := range specs {
		def, err := Build(s, opts)
		if err != nil {
			return err
		}
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func (imp *importer) attributeColumns() []string {
	return imp.columns[:len(imp.columns)-1]
}

func (imp *importer) setup(ctx context.Context, pc *core.PipelineContext) error {
	if err := imp.opts.Writer.EnsureTable(ctx, imp.table, imp.attributeColumns()); err != nil {
		return err
	}
	if imp.opts.Auditor != nil {
		if err := imp.opts.Auditor.Ensure(ctx); err != nil {
			return fmt.Errorf("audit table: %w", err)
		}
	}

	pc.Set(KeyIdentity, pc.Caps.Identity)
	pc.Set(KeySource, pc.Caps.RemoteAddr)
	pc.Set(KeyRowsWritten, int64(0))

	pc.Logger.Info("starting import",
		"table", imp.table,
		"identity", pc.Caps.Identity,
		"source", pc.Caps.RemoteAddr,
	)
	return nil
}

func (imp *importer) perform(ctx context.Context, pc *core.PipelineContext, batch core.Batch) error {
	runID := pc.RunID.String()
	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, imp.row(core.CleanRecord(rec), runID))
	}

	n, err := imp.opts.Writer.WriteBatch(ctx, imp.table, imp.columns, rows)
	if err != nil {
		return err
	}

	written, _ := core.ValueOf[int64](pc, KeyRowsWritten)
	pc.Set(KeyRowsWritten, written+n)
	pc.Logger.Debug("batch written", "table", imp.table, "rows", n)
	return nil
}

// row converts a record to sink values in column order. Blank values are
// stored as NULL.
func (imp *importer) row(rec core.Record, runID string) []any {
	out := make([]any, 0, len(imp.columns))
	for i, a := range imp.spec.Attributes {
		v := sink.Text(rec[a.Key])
		if s, ok := v.(string); ok {
			if fn := imp.normal[i]; fn != nil {
				s = fn(s)
			}
			if s == "" {
				v = nil
			} else {
				v = s
			}
		}
		out = append(out, v)
	}
	return append(out, runID)
}

func (imp *importer) teardown(ctx context.Context, pc *core.PipelineContext) error {
	written, _ := core.ValueOf[int64](pc, KeyRowsWritten)
	counters := pc.Counters()
	pc.Logger.Info("import finished",
		"table", imp.table,
		"rows_written", written,
		"rows_skipped", counters.RowsSkipped,
		"errors", len(pc.Errors()),
		"elapsed", time.Since(pc.StartedAt).Round(time.Millisecond),
	)
	return imp.audit(ctx, pc, nil)
}

func (imp *importer) onError(ctx context.Context, pc *core.PipelineContext, err error) error {
	pc.Logger.Error("import error", "table", imp.table, "error", err)

	// Setup failures skip teardown, so audit here.
	var cbErr *core.CallbackError
	if errors.As(err, &cbErr) && cbErr.Stage == core.StageSetup {
		if aErr := imp.audit(ctx, pc, err); aErr != nil {
			pc.Logger.Warn("audit failed", "error", aErr)
		}
	}

	if imp.opts.HandleErrors {
		return nil
	}
	return err
}

func (imp *importer) audit(ctx context.Context, pc *core.PipelineContext, cause error) error {
	if imp.opts.Auditor == nil {
		return nil
	}
	if err := imp.opts.Auditor.Record(ctx, entryFor(pc, imp.table, cause)); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}
