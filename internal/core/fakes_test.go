package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/sheetimport/internal/rowstream"
)

// sliceStream is an in-memory rowstream.Stream.
type sliceStream struct {
	headers []string
	rows    [][]any
	errs    map[int]error   // index into rows -> error returned instead
	onNext  func(index int) // called before row index is returned

	pos    int
	closed int
	mu     sync.Mutex
}

func newSliceStream(headers []string, rows ...[]any) *sliceStream {
	return &sliceStream{headers: headers, rows: rows}
}

func (s *sliceStream) Headers() []string { return s.headers }

func (s *sliceStream) Next() (rowstream.Row, error) {
	if s.pos >= len(s.rows) {
		return rowstream.Row{}, io.EOF
	}
	i := s.pos
	s.pos++
	if s.onNext != nil {
		s.onNext(i)
	}
	if err, ok := s.errs[i]; ok {
		return rowstream.Row{}, err
	}

	vals := s.rows[i]
	cells := make([]rowstream.Cell, len(vals))
	for c, v := range vals {
		h := ""
		if c < len(s.headers) {
			h = s.headers[c]
		}
		cells[c] = rowstream.Cell{Index: c, Header: h, Value: v}
	}
	return rowstream.Row{Line: i + 2, Cells: cells}, nil
}

// Progress reports the share of rows handed out, like a sized file would.
func (s *sliceStream) Progress() int {
	if len(s.rows) == 0 {
		return 100
	}
	return s.pos * 100 / len(s.rows)
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *sliceStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOpener serves streams by locator.
type fakeOpener struct {
	streams map[string]*sliceStream
}

func (o *fakeOpener) Open(ctx context.Context, locator string) (rowstream.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := o.streams[locator]
	if !ok {
		return nil, errors.New("open " + locator + ": no such file")
	}
	return s, nil
}

// recorder captures callback invocations in order.
type recorder struct {
	mu      sync.Mutex
	events  []string
	batches []Batch
	errs    []error
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// callbacks returns Callbacks that record every invocation. failPerform, if
// > 0, makes that perform call (1-based) return errBoom.
func (r *recorder) callbacks(failPerform int) Callbacks {
	calls := 0
	return Callbacks{
		Setup: func(ctx context.Context, pc *PipelineContext) error {
			r.add("setup")
			return nil
		},
		Perform: func(ctx context.Context, pc *PipelineContext, b Batch) error {
			calls++
			r.add("perform")
			if calls == failPerform {
				return errBoom
			}
			r.mu.Lock()
			r.batches = append(r.batches, b)
			r.mu.Unlock()
			return nil
		},
		Teardown: func(ctx context.Context, pc *PipelineContext) error {
			r.add("teardown")
			return nil
		},
		Error: func(ctx context.Context, pc *PipelineContext, err error) error {
			r.add("error")
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			return nil
		},
	}
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDefinition(batchSize int, cb Callbacks) *ImporterDefinition {
	return &ImporterDefinition{
		Name: "people",
		Attributes: []AttributeSpec{
			{Key: "name", Labels: []string{"Name"}, Required: true},
			{Key: "email", Labels: []string{"Email"}},
		},
		BatchSize: batchSize,
		Callbacks: cb,
	}
}
