package importers

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/sink"
)

// DefaultAuditTable receives one row per finished run.
const DefaultAuditTable = "import_audit"

// Outcome of an audited run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// AuditEntry records who ran an importer, from where, and how it went.
type AuditEntry struct {
	RunID      string
	Importer   string
	Table      string
	Identity   string
	Source     string
	UserAgent  string
	Records    int
	Errors     int
	Outcome    Outcome
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

var auditColumns = []string{
	"importer",
	"target_table",
	"identity",
	"source",
	"user_agent",
	"records_count",
	"errors_count",
	"outcome",
	"reason",
	"started_at",
	"finished_at",
}

var auditInsertColumns = append(slices.Clone(auditColumns), sink.RunIDColumn)

// Auditor writes AuditEntries through a sink.
type Auditor struct {
	w     sink.Writer
	table string
}

// NewAuditor returns an auditor writing to table, or DefaultAuditTable if
// table is empty.
func NewAuditor(w sink.Writer, table string) *Auditor {
	if table == "" {
		table = DefaultAuditTable
	}
	return &Auditor{w: w, table: table}
}

// Table returns the audit table name.
func (a *Auditor) Table() string { return a.table }

// Ensure creates the audit table.
func (a *Auditor) Ensure(ctx context.Context) error {
	return a.w.EnsureTable(ctx, a.table, auditColumns)
}

// Record writes one entry.
func (a *Auditor) Record(ctx context.Context, e AuditEntry) error {
	row := []any{
		e.Importer,
		e.Table,
		nullable(e.Identity),
		nullable(e.Source),
		nullable(e.UserAgent),
		strconv.Itoa(e.Records),
		strconv.Itoa(e.Errors),
		string(e.Outcome),
		nullable(e.Reason),
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.FinishedAt.UTC().Format(time.RFC3339Nano),
		e.RunID,
	}
	_, err := a.w.WriteBatch(ctx, a.table, auditInsertColumns, [][]any{row})
	return err
}

// entryFor builds the audit entry of a run from its context.
func entryFor(pc *core.PipelineContext, table string, cause error) AuditEntry {
	errs := pc.Errors()
	e := AuditEntry{
		RunID:      pc.RunID.String(),
		Importer:   pc.Importer,
		Table:      table,
		Identity:   pc.Caps.Identity,
		Source:     pc.Caps.RemoteAddr,
		UserAgent:  pc.Caps.UserAgent,
		Records:    pc.Counters().RecordsProcessed,
		Errors:     len(errs),
		Outcome:    OutcomeCompleted,
		StartedAt:  pc.StartedAt,
		FinishedAt: time.Now(),
	}
	if cause == nil && len(errs) > 0 {
		cause = errs[0]
	}
	if cause != nil {
		e.Outcome = OutcomeFailed
		e.Reason = cause.Error()
		if e.Errors == 0 {
			e.Errors = 1
		}
	}
	return e
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
