package importers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/rowstream"
	"github.com/JonMunkholm/sheetimport/internal/sink"
	"github.com/JonMunkholm/sheetimport/internal/sink/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSQLite(t *testing.T) *sqlite.Writer {
	t.Helper()
	w, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func csvStream(t *testing.T, content string) rowstream.Stream {
	t.Helper()
	s, err := rowstream.NewCSVStream(io.NopCloser(strings.NewReader(content)), int64(len(content)), rowstream.Options{})
	if err != nil {
		t.Fatalf("NewCSVStream: %v", err)
	}
	return s
}

func runImport(t *testing.T, def *core.ImporterDefinition, content string, mapping core.ColumnMapping, caps core.Capabilities) core.RunResult {
	t.Helper()
	pc := core.NewPipelineContext(def.Name, caps, discardLogger())
	return core.NewPipeline(def, csvStream(t, content), mapping, pc).Run(context.Background())
}

type student struct {
	First, Last, Email string
}

func readStudents(t *testing.T, w *sqlite.Writer) []student {
	t.Helper()
	rows, err := w.DB().Query(`SELECT first_name, last_name, coalesce(email, '') FROM students ORDER BY id`)
	if err != nil {
		t.Fatalf("query students: %v", err)
	}
	defer rows.Close()

	var out []student
	for rows.Next() {
		var s student
		if err := rows.Scan(&s.First, &s.Last, &s.Email); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestStudents_ImportIntoSQLite(t *testing.T) {
	w := openSQLite(t)
	auditor := NewAuditor(w, "")
	def, err := Build(Students(), Options{Writer: w, Auditor: auditor})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	content := "Vorname,Nachname,E-Mail\n" +
		"Ada,Lovelace,  ADA@Example.com \n" +
		",,\n" +
		"Alan,  Mathison   Turing,\n"
	headers := []string{"Vorname", "Nachname", "E-Mail"}
	mapping := core.ProposeMapping(def.Attributes, headers)

	res := runImport(t, def, content, mapping, core.Capabilities{Identity: "registrar", RemoteAddr: "10.0.0.9"})
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if res.RecordsProcessed != 2 || res.RowsSkipped != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	want := []student{
		{"Ada", "Lovelace", "ada@example.com"},
		{"Alan", "Mathison Turing", ""},
	}
	if diff := cmp.Diff(want, readStudents(t, w)); diff != "" {
		t.Errorf("stored students mismatch (-want +got):\n%s", diff)
	}

	var runID, identity, source, outcome, records string
	err = w.DB().QueryRow(`SELECT import_run_id, identity, source, outcome, records_count FROM import_audit`).
		Scan(&runID, &identity, &source, &outcome, &records)
	if err != nil {
		t.Fatalf("audit query: %v", err)
	}
	if runID != res.RunID.String() || identity != "registrar" || source != "10.0.0.9" ||
		outcome != string(OutcomeCompleted) || records != "2" {
		t.Errorf("audit row = %s %s %s %s %s", runID, identity, source, outcome, records)
	}

	var stamped int
	if err := w.DB().QueryRow(`SELECT count(*) FROM students WHERE import_run_id = ?`, res.RunID.String()).Scan(&stamped); err != nil {
		t.Fatalf("run id query: %v", err)
	}
	if stamped != 2 {
		t.Errorf("%d rows carry the run id, want 2", stamped)
	}
}

type failingWriter struct {
	sink.Writer
	ensureErr error
	writeErr  error
	batches   int
}

func (f *failingWriter) EnsureTable(ctx context.Context, table string, columns []string) error {
	if f.ensureErr != nil && table != DefaultAuditTable {
		return f.ensureErr
	}
	return f.Writer.EnsureTable(ctx, table, columns)
}

func (f *failingWriter) WriteBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if f.writeErr != nil && table != DefaultAuditTable {
		return 0, f.writeErr
	}
	f.batches++
	return f.Writer.WriteBatch(ctx, table, columns, rows)
}

func auditOutcome(t *testing.T, w *sqlite.Writer) (string, string) {
	t.Helper()
	var outcome, reason string
	if err := w.DB().QueryRow(`SELECT outcome, coalesce(reason, '') FROM import_audit`).Scan(&outcome, &reason); err != nil {
		t.Fatalf("audit query: %v", err)
	}
	return outcome, reason
}

func TestBuild_Failures(t *testing.T) {
	content := "First Name,Last Name\nAda,Lovelace\n"
	mapping := core.ColumnMapping{"First Name": "first_name", "Last Name": "last_name"}
	diskFull := errors.New("disk full")

	t.Run("write failure is audited by teardown", func(t *testing.T) {
		w := openSQLite(t)
		fw := &failingWriter{Writer: w, writeErr: diskFull}
		def, err := Build(Students(), Options{Writer: fw, Auditor: NewAuditor(w, "")})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		res := runImport(t, def, content, mapping, core.Capabilities{})
		if !errors.Is(res.Err, diskFull) || res.FailedIn != core.PhaseFlushing || res.Handled {
			t.Errorf("unexpected result: %+v", res)
		}
		outcome, reason := auditOutcome(t, w)
		if outcome != string(OutcomeFailed) || !strings.Contains(reason, "disk full") {
			t.Errorf("audit = %q %q", outcome, reason)
		}
	})

	t.Run("setup failure is audited by the error callback", func(t *testing.T) {
		w := openSQLite(t)
		fw := &failingWriter{Writer: w, ensureErr: diskFull}
		def, err := Build(Students(), Options{Writer: fw, Auditor: NewAuditor(w, "")})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		res := runImport(t, def, content, mapping, core.Capabilities{})
		if !errors.Is(res.Err, diskFull) || res.FailedIn != core.PhaseSetup {
			t.Errorf("unexpected result: %+v", res)
		}
		if fw.batches != 0 {
			t.Errorf("%d batches written after setup failure", fw.batches)
		}
		// Setup failed before the audit table was created.
		var n int
		if err := w.DB().QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = ?`, DefaultAuditTable).Scan(&n); err != nil {
			t.Fatalf("sqlite_master: %v", err)
		}
		if n != 0 {
			t.Errorf("audit table exists after failed setup")
		}
	})

	t.Run("handled errors", func(t *testing.T) {
		w := openSQLite(t)
		fw := &failingWriter{Writer: w, writeErr: diskFull}
		def, err := Build(Students(), Options{Writer: fw, HandleErrors: true})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		res := runImport(t, def, content, mapping, core.Capabilities{})
		if res.Err != nil || !res.Handled || res.Phase != core.PhaseDone {
			t.Errorf("unexpected result: %+v", res)
		}
	})
}

func TestBuild_Invalid(t *testing.T) {
	w := openSQLite(t)

	tests := []struct {
		name   string
		mutate func(s *Spec)
		opts   Options
	}{
		{"no writer", func(s *Spec) {}, Options{}},
		{"bad table", func(s *Spec) { s.Table = "student roster" }, Options{Writer: w}},
		{"bad key", func(s *Spec) { s.Attributes[0].Key = "first-name" }, Options{Writer: w}},
		{"reserved key", func(s *Spec) { s.Attributes[0].Key = sink.RunIDColumn }, Options{Writer: w}},
		{"unknown normalizer", func(s *Spec) { s.Attributes[0].Normalize = []string{"shout"} }, Options{Writer: w}},
		{"no attributes", func(s *Spec) { s.Attributes = nil }, Options{Writer: w}},
		{"negative batch", func(s *Spec) { s.BatchSize = -3 }, Options{Writer: w}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Students()
			tt.mutate(&spec)
			if _, err := Build(spec, tt.opts); !errors.Is(err, core.ErrConfiguration) {
				t.Errorf("Build() = %v, want ErrConfiguration", err)
			}
		})
	}
}

const definitionsYAML = `
importers:
  - name: teachers
    description: Teaching staff
    batch_size: 100
    attributes:
      - key: full_name
        labels: [Name, Full Name]
        required: true
        normalize: [collapse, title]
      - key: state
        labels: [State]
        normalize: [us_state]
  - name: rooms
    table: school_rooms
    attributes:
      - key: code
        labels: [Room]
`

func TestLoad(t *testing.T) {
	specs, err := Load(strings.NewReader(definitionsYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}

	teachers := specs[0]
	if teachers.TableName() != "teachers" || teachers.BatchSize != 100 {
		t.Errorf("teachers = %+v", teachers)
	}
	want := AttributeSpec{
		AttributeSpec: core.AttributeSpec{Key: "full_name", Labels: []string{"Name", "Full Name"}, Required: true},
		Normalize:     []string{"collapse", "title"},
	}
	if diff := cmp.Diff(want, teachers.Attributes[0]); diff != "" {
		t.Errorf("attribute mismatch (-want +got):\n%s", diff)
	}
	if specs[1].TableName() != "school_rooms" {
		t.Errorf("rooms table = %q", specs[1].TableName())
	}

	reg := core.NewRegistry()
	if err := RegisterAll(reg, append(Builtin(), specs...), Options{Writer: openSQLite(t)}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if diff := cmp.Diff([]string{"rooms", "students", "teachers"}, reg.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "importers:\n  - name: x\n    colour: red\n"},
		{"bad identifier", "importers:\n  - name: x\n    table: \"a;b\"\n    attributes:\n      - key: k\n"},
		{"malformed", "importers: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.yaml)); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}

	t.Run("empty document", func(t *testing.T) {
		specs, err := Load(strings.NewReader(""))
		if err != nil || len(specs) != 0 {
			t.Errorf("Load(empty) = %v, %v", specs, err)
		}
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "importers.yaml")
	if err := os.WriteFile(path, []byte(definitionsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	specs, err := LoadFile(path)
	if err != nil || len(specs) != 2 {
		t.Errorf("LoadFile() = %d specs, %v", len(specs), err)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile(missing) = %v, want os.ErrNotExist", err)
	}
}
