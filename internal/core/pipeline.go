package core

// pipeline.go implements a single import run:
//
//	idle -> setup -> streaming <-> flushing -> teardown -> done
//
// Any failure moves the run to the error phase. The first failure wins and
// aborts the stream; it is passed to the error callback exactly once, then
// teardown runs if setup completed. A run whose context is cancelled stops
// reading as if the stream had ended: the partial batch is flushed and
// teardown runs under a context detached from the cancellation.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/rowstream"
)

// ContextCheckInterval is how often, in rows, the pipeline checks for
// cancellation while reading. The context is also checked before every
// flush.
var ContextCheckInterval = 100

// Pipeline runs one import. It is single-use: a second Run returns
// ErrPipelineUsed.
type Pipeline struct {
	def     *ImporterDefinition
	stream  rowstream.Stream
	mapping ColumnMapping
	pc      *PipelineContext

	started   atomic.Bool
	startTime time.Time
	cbCtx     context.Context // context handed to callbacks
	cancelled bool

	mu     sync.Mutex
	phase  RunPhase
	closed bool
}

// NewPipeline prepares a run of def over stream. The pipeline takes
// ownership of stream and closes it before Run returns.
func NewPipeline(def *ImporterDefinition, stream rowstream.Stream, mapping ColumnMapping, pc *PipelineContext) *Pipeline {
	return &Pipeline{
		def:     def,
		stream:  stream,
		mapping: mapping,
		pc:      pc,
		phase:   PhaseIdle,
	}
}

// Context returns the run's PipelineContext.
func (p *Pipeline) Context() *PipelineContext {
	return p.pc
}

// Progress returns how much of the source the run has read, 0-100, and
// false when the stream cannot tell.
func (p *Pipeline) Progress() (int, bool) {
	return rowstream.Progress(p.stream)
}

// Phase returns the current phase.
func (p *Pipeline) Phase() RunPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Pipeline) setPhase(phase RunPhase) {
	p.mu.Lock()
	prev := p.phase
	p.phase = phase
	p.mu.Unlock()

	if prev != phase {
		p.pc.Logger.Debug("pipeline phase", "from", string(prev), "to", string(phase))
	}
}

// Run validates the mapping against the stream headers, then drives the
// callbacks. Mapping problems are returned in RunResult.Err before setup
// runs and never reach the error callback.
func (p *Pipeline) Run(ctx context.Context) RunResult {
	if !p.started.CompareAndSwap(false, true) {
		return RunResult{RunID: p.pc.RunID, Importer: p.def.Name, Phase: PhaseError, Err: ErrPipelineUsed}
	}
	defer p.closeStream()

	p.startTime = time.Now()
	p.cbCtx = ctx
	cb := p.def.Callbacks

	if err := ValidateMapping(p.def, p.stream.Headers(), p.mapping); err != nil {
		p.closeStream()
		p.setPhase(PhaseError)
		p.pc.addError(err)
		p.pc.Logger.Info("import rejected", "error", err)
		res := p.result(err)
		res.FailedIn = PhaseIdle
		return res
	}

	p.setPhase(PhaseSetup)
	if cb.Setup != nil {
		if err := p.call(StageSetup, 0, func() error { return cb.Setup(p.cbCtx, p.pc) }); err != nil {
			p.closeStream()
			return p.fail(PhaseSetup, err, false)
		}
	}

	failedIn, err := p.streamRows(ctx)
	p.closeStream()
	if err != nil {
		return p.fail(failedIn, err, true)
	}

	p.setPhase(PhaseTeardown)
	if cb.Teardown != nil {
		if err := p.call(StageTeardown, 0, func() error { return cb.Teardown(p.cbCtx, p.pc) }); err != nil {
			return p.fail(PhaseTeardown, err, false)
		}
	}

	p.setPhase(PhaseDone)
	res := p.result(nil)
	p.pc.Logger.Info("import completed",
		"rows_read", res.RowsRead,
		"rows_skipped", res.RowsSkipped,
		"records", res.RecordsProcessed,
		"batches", res.Batches,
		"cancelled", res.Cancelled,
		"duration", res.Duration,
	)
	return res
}

// streamRows reads the stream to the end, flushing full batches as they
// fill and the remainder once at the end. It returns the phase and error of
// the first failure.
func (p *Pipeline) streamRows(ctx context.Context) (RunPhase, error) {
	p.setPhase(PhaseStreaming)

	size := p.def.BatchSize
	batch := newBatch(size)

	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 && p.stopIfCancelled(ctx) {
			break
		}

		row, err := p.stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return PhaseStreaming, rowError(err)
		}
		p.pc.update(func(c *Counters) { c.RowsRead++ })

		rec := MapRow(row, p.mapping)
		if IsBlankRecord(rec) {
			p.pc.update(func(c *Counters) { c.RowsSkipped++ })
			continue
		}

		batch = append(batch, rec)
		p.pc.update(func(c *Counters) { c.RecordsEmitted++ })

		if size > 0 && len(batch) >= size {
			if p.stopIfCancelled(ctx) {
				break
			}
			if err := p.flush(batch); err != nil {
				return PhaseFlushing, err
			}
			// A fresh slice, so a callback may keep the batch it was given.
			batch = newBatch(size)
			p.setPhase(PhaseStreaming)
		}
	}

	if len(batch) > 0 {
		p.stopIfCancelled(ctx)
		if err := p.flush(batch); err != nil {
			return PhaseFlushing, err
		}
	}
	return "", nil
}

// stopIfCancelled reports whether ctx has ended. The first time it has, the
// run is marked cancelled and callbacks from then on get a context that is
// no longer cancelled, so the remainder can still be flushed and torn down.
func (p *Pipeline) stopIfCancelled(ctx context.Context) bool {
	if p.cancelled {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	p.cancelled = true
	p.cbCtx = context.WithoutCancel(ctx)
	p.pc.Logger.Info("import cancelled, ending stream", "reason", ctx.Err())
	return true
}

func newBatch(size int) Batch {
	if size > 0 {
		return make(Batch, 0, size)
	}
	return nil
}

func rowError(err error) error {
	var pe *rowstream.ParseError
	if errors.As(err, &pe) {
		return &RowError{Line: pe.Line, Err: pe.Err}
	}
	return &RowError{Err: err}
}

func (p *Pipeline) flush(batch Batch) error {
	p.setPhase(PhaseFlushing)

	n := p.pc.Counters().Batches + 1
	perform := p.def.Callbacks.Perform
	if err := p.call(StagePerform, n, func() error { return perform(p.cbCtx, p.pc, batch) }); err != nil {
		return err
	}

	p.pc.update(func(c *Counters) {
		c.Batches++
		c.RecordsProcessed += len(batch)
	})
	p.pc.Logger.Debug("batch flushed", "batch", n, "records", len(batch))
	return nil
}

// fail routes the first failure of the run to the error callback and runs
// teardown when setup completed. A teardown failure here is recorded but
// does not reach the error callback a second time.
func (p *Pipeline) fail(failedIn RunPhase, err error, teardown bool) RunResult {
	cb := p.def.Callbacks
	p.setPhase(PhaseError)
	p.pc.addError(err)
	p.pc.Logger.Warn("import failed", "phase", string(failedIn), "error", err)

	final := err
	handled := false
	if cb.Error != nil {
		// Returning err itself passes the failure through unchanged.
		rethrown := false
		cbErr := p.call(StageError, 0, func() error {
			e := cb.Error(p.cbCtx, p.pc, err)
			if e == err {
				rethrown = true
				return nil
			}
			return e
		})
		switch {
		case cbErr != nil:
			p.pc.addError(cbErr)
			p.pc.Logger.Error("error callback failed", "error", cbErr)
			final = errors.Join(err, cbErr)
		case !rethrown:
			handled = true
			final = nil
		}
	}

	if teardown && cb.Teardown != nil {
		p.setPhase(PhaseTeardown)
		if tErr := p.call(StageTeardown, 0, func() error { return cb.Teardown(p.cbCtx, p.pc) }); tErr != nil {
			p.pc.addError(tErr)
			p.pc.Logger.Error("teardown failed after earlier failure", "error", tErr)
		}
	}

	if final == nil {
		p.setPhase(PhaseDone)
	} else {
		p.setPhase(PhaseError)
	}

	res := p.result(final)
	res.FailedIn = failedIn
	res.Handled = handled
	return res
}

// call invokes a callback, converting a returned error or a panic into a
// CallbackError.
func (p *Pipeline) call(stage Stage, batch int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackError{Stage: stage, Batch: batch, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if cbErr := fn(); cbErr != nil {
		return &CallbackError{Stage: stage, Batch: batch, Err: cbErr}
	}
	return nil
}

func (p *Pipeline) closeStream() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.stream.Close(); err != nil {
		p.pc.Logger.Warn("close row stream", "error", err)
	}
}

func (p *Pipeline) result(err error) RunResult {
	c := p.pc.Counters()
	phase := PhaseDone
	if err != nil {
		phase = PhaseError
	}
	return RunResult{
		RunID:            p.pc.RunID,
		Importer:         p.def.Name,
		RowsRead:         c.RowsRead,
		RowsSkipped:      c.RowsSkipped,
		RecordsProcessed: c.RecordsProcessed,
		Batches:          c.Batches,
		Duration:         time.Since(p.startTime),
		Phase:            phase,
		Cancelled:        p.cancelled,
		Err:              err,
	}
}
