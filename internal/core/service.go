package core

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetimport/internal/rowstream"
)

// DefaultSampleRows is how many data rows Preview returns.
const DefaultSampleRows = 5

// DefaultKeepResults is how many finished run results Result remembers.
const DefaultKeepResults = 100

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	MaxConcurrent int           // parallel runs, DefaultMaxConcurrentRuns if <= 0
	MaxWait       time.Duration // wait for a run slot, DefaultMaxWaitTime if <= 0
	RunTimeout    time.Duration // per-run deadline, none if <= 0
	SampleRows    int           // rows returned by Preview, DefaultSampleRows if <= 0
	KeepResults   int           // finished results kept for Result, DefaultKeepResults if <= 0
}

// Service is the entry point for transports (HTTP, CLI). It owns the
// registry, opens row streams and bounds concurrent runs.
type Service struct {
	registry *Registry
	opener   rowstream.Opener
	limiter  *RunLimiter
	cfg      ServiceConfig
	logger   *slog.Logger

	mu     sync.RWMutex
	active map[uuid.UUID]*activeRun
	recent map[uuid.UUID]RunResult
	order  []uuid.UUID
}

type activeRun struct {
	ID       uuid.UUID
	Importer string
	Started  time.Time
	Identity string
	Pipeline *Pipeline
	Cancel   context.CancelFunc
}

// NewService creates a Service over registry, opening files with opener.
func NewService(registry *Registry, opener rowstream.Opener, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = DefaultSampleRows
	}
	if cfg.KeepResults <= 0 {
		cfg.KeepResults = DefaultKeepResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		opener:   opener,
		limiter:  NewRunLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:      cfg,
		logger:   logger,
		active:   make(map[uuid.UUID]*activeRun),
		recent:   make(map[uuid.UUID]RunResult),
	}
}

// Registry returns the importer registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Limiter returns the run limiter, for status reporting and shutdown.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// RegisterImporter adds def to the registry.
func (s *Service) RegisterImporter(def *ImporterDefinition) error {
	return s.registry.Register(def)
}

// ImporterInfo describes a registered importer for listings.
type ImporterInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	BatchSize   int             `json:"batch_size"`
	Attributes  []AttributeSpec `json:"attributes"`
}

// Importers lists the registered importers sorted by name.
func (s *Service) Importers() []ImporterInfo {
	defs := s.registry.All()
	infos := make([]ImporterInfo, len(defs))
	for i, def := range defs {
		infos[i] = ImporterInfo{
			Name:        def.Name,
			Description: def.Description,
			BatchSize:   def.BatchSize,
			Attributes:  def.Attributes,
		}
	}
	return infos
}

// ProposeMapping runs the header matcher for importer over headers. It only
// proposes; the caller confirms or edits the mapping before Run.
func (s *Service) ProposeMapping(importer string, headers []string) (ColumnMapping, error) {
	def, err := s.registry.Lookup(importer)
	if err != nil {
		return nil, err
	}
	return ProposeMapping(def.Attributes, headers), nil
}

// Suggest returns the ranked candidate list for each header.
func (s *Service) Suggest(importer string, headers []string) ([]HeaderSuggestion, error) {
	def, err := s.registry.Lookup(importer)
	if err != nil {
		return nil, err
	}
	return Suggest(def.Attributes, headers), nil
}

// PreviewResult is what a mapping screen needs: the file's headers, a few
// rows, and the proposed mapping with alternatives.
type PreviewResult struct {
	Importer    string             `json:"importer"`
	Headers     []string           `json:"headers"`
	Rows        [][]any            `json:"rows"`
	Proposed    ColumnMapping      `json:"proposed"`
	Suggestions []HeaderSuggestion `json:"suggestions"`
	Attributes  []AttributeSpec    `json:"attributes"`
}

// Preview opens locator, reads its headers and the first sample rows, and
// proposes a mapping. No callback runs.
func (s *Service) Preview(ctx context.Context, importer, locator string) (*PreviewResult, error) {
	def, err := s.registry.Lookup(importer)
	if err != nil {
		return nil, err
	}

	stream, err := s.opener.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	headers := stream.Headers()
	rows, err := rowstream.Sample(stream, s.cfg.SampleRows)
	if err != nil {
		return nil, rowError(err)
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}

	return &PreviewResult{
		Importer:    def.Name,
		Headers:     headers,
		Rows:        values,
		Proposed:    ProposeMapping(def.Attributes, headers),
		Suggestions: Suggest(def.Attributes, headers),
		Attributes:  def.Attributes,
	}, nil
}

// Run imports the file at locator with importer, using the confirmed
// mapping. caps are exposed to the callbacks through the PipelineContext.
//
// Failures before the pipeline starts (unknown importer, no run slot,
// unreadable file, bad mapping) are returned in RunResult.Err. Failures
// during the run follow the pipeline's error policy.
func (s *Service) Run(ctx context.Context, importer, locator string, mapping ColumnMapping, caps Capabilities) RunResult {
	h, res := s.start(ctx, importer, locator, mapping, caps)
	if h == nil {
		return res
	}
	return h.Wait()
}

// RunHandle follows a run started with Start.
type RunHandle struct {
	ID       uuid.UUID
	Importer string

	done   chan struct{}
	result RunResult
}

// Done is closed when the run has finished.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its result.
func (h *RunHandle) Wait() RunResult {
	<-h.done
	return h.result
}

// Start is Run in the background. It returns once a run slot is held and
// the file is open, or with the error that prevented the run. The run
// itself is bound to ctx, so callers detach it from request lifetimes.
func (s *Service) Start(ctx context.Context, importer, locator string, mapping ColumnMapping, caps Capabilities) (*RunHandle, error) {
	h, res := s.start(ctx, importer, locator, mapping, caps)
	if h == nil {
		return nil, res.Err
	}
	return h, nil
}

// TryStart is Start without waiting for a run slot: when all slots are
// taken it fails at once with ErrTooManyRuns.
func (s *Service) TryStart(ctx context.Context, importer, locator string, mapping ColumnMapping, caps Capabilities) (*RunHandle, error) {
	h, res := s.startWith(ctx, importer, locator, mapping, caps, func(context.Context) error {
		if !s.limiter.TryAcquire() {
			return ErrTooManyRuns
		}
		return nil
	})
	if h == nil {
		return nil, res.Err
	}
	return h, nil
}

func (s *Service) start(ctx context.Context, importer, locator string, mapping ColumnMapping, caps Capabilities) (*RunHandle, RunResult) {
	return s.startWith(ctx, importer, locator, mapping, caps, s.limiter.Acquire)
}

// startWith takes a run slot with acquire, opens the file and runs the
// pipeline in its own goroutine.
func (s *Service) startWith(ctx context.Context, importer, locator string, mapping ColumnMapping, caps Capabilities, acquire func(context.Context) error) (*RunHandle, RunResult) {
	def, err := s.registry.Lookup(importer)
	if err != nil {
		return nil, RunResult{Importer: importer, Phase: PhaseError, FailedIn: PhaseIdle, Err: err}
	}

	pc := NewPipelineContext(def.Name, caps, s.logger)
	early := func(err error) RunResult {
		pc.Logger.Info("import not started", "error", err)
		return RunResult{RunID: pc.RunID, Importer: def.Name, Phase: PhaseError, FailedIn: PhaseIdle, Err: err}
	}

	if err := acquire(ctx); err != nil {
		return nil, early(err)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if s.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	stream, err := s.opener.Open(runCtx, locator)
	if err != nil {
		cancel()
		s.limiter.Release()
		return nil, early(err)
	}

	p := NewPipeline(def, stream, mapping, pc)
	s.track(&activeRun{
		ID:       pc.RunID,
		Importer: def.Name,
		Started:  pc.StartedAt,
		Identity: caps.Identity,
		Pipeline: p,
		Cancel:   cancel,
	})

	h := &RunHandle{ID: pc.RunID, Importer: def.Name, done: make(chan struct{})}
	go func() {
		defer s.limiter.Release()
		defer cancel()

		h.result = p.Run(runCtx)
		s.finish(h.result)
		close(h.done)
	}()
	return h, RunResult{}
}

// finish moves a run from the active set to the recent results.
func (s *Service) finish(res RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, res.RunID)
	s.recent[res.RunID] = res
	s.order = append(s.order, res.RunID)
	for len(s.order) > s.cfg.KeepResults {
		delete(s.recent, s.order[0])
		s.order = s.order[1:]
	}
}

// Result returns the result of a recently finished run.
func (s *Service) Result(id uuid.UUID) (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.recent[id]
	return res, ok
}

func (s *Service) track(r *activeRun) {
	s.mu.Lock()
	s.active[r.ID] = r
	s.mu.Unlock()
}

// RunStatus describes an in-flight run.
type RunStatus struct {
	RunID    uuid.UUID `json:"run_id"`
	Importer string    `json:"importer"`
	Identity string    `json:"identity,omitempty"`
	Phase    RunPhase  `json:"phase"`
	Started  time.Time `json:"started"`
	Counters Counters  `json:"counters"`

	// Percent is the share of the file read so far. It is only set for
	// formats that know their size (CSV by bytes, XLS by sheet rows).
	Percent *int `json:"percent,omitempty"`
}

func (r *activeRun) status() RunStatus {
	st := RunStatus{
		RunID:    r.ID,
		Importer: r.Importer,
		Identity: r.Identity,
		Phase:    r.Pipeline.Phase(),
		Started:  r.Started,
		Counters: r.Pipeline.Context().Counters(),
	}
	if pct, ok := r.Pipeline.Progress(); ok {
		st.Percent = &pct
	}
	return st
}

// ActiveRuns lists in-flight runs, oldest first.
func (s *Service) ActiveRuns() []RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunStatus, 0, len(s.active))
	for _, r := range s.active {
		out = append(out, r.status())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Status returns the state of an in-flight run.
func (s *Service) Status(id uuid.UUID) (RunStatus, bool) {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if !ok {
		return RunStatus{}, false
	}
	return r.status(), true
}

// CancelRun cancels an in-flight run. The run stops reading, flushes what it
// has and tears down. Returns false if no such run is active.
func (s *Service) CancelRun(id uuid.UUID) bool {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	r.Cancel()
	return true
}
