// Package verify orchestrates one verification run: derive the expected
// counts, compare them against the persisted inventory and record the
// outcome.
package verify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inventory-verify/decision/derive"
	"inventory-verify/decision/fetch"
	"inventory-verify/decision/flavor"
	"inventory-verify/decision/reconcile"
	"inventory-verify/pkg/entity"
)

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomePassed   Outcome = "passed"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeError    Outcome = "error"
)

// Run is the record of one verification.
type Run struct {
	ID         uuid.UUID         `json:"id"`
	Source     string            `json:"source"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Outcome    Outcome           `json:"outcome"`
	Expected   entity.Counts     `json:"expected,omitempty"`
	Report     *reconcile.Report `json:"report,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
}

// Runner wires the derivation engine to a comparator.
type Runner struct {
	engine     *derive.Engine
	fetcher    fetch.Fetcher
	flavors    flavor.Lookup
	comparator *reconcile.Comparator
	recorder   Recorder
	source     string
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder stores every finished run.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithSource labels runs with where their documents came from.
func WithSource(source string) Option {
	return func(r *Runner) { r.source = source }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner.
func NewRunner(engine *derive.Engine, fetcher fetch.Fetcher, flavors flavor.Lookup, comparator *reconcile.Comparator, opts ...Option) *Runner {
	r := &Runner{
		engine:     engine,
		fetcher:    fetcher,
		flavors:    flavors,
		comparator: comparator,
		source:     "aws",
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one verification. The returned error is the derivation or
// accessor failure, or a *reconcile.MismatchError when counts disagree;
// the run is returned in every case.
func (r *Runner) Run(ctx context.Context) (*Run, error) {
	run := &Run{
		ID:        uuid.New(),
		Source:    r.source,
		StartedAt: r.now(),
	}
	logger := r.logger.With().Str("run_id", run.ID.String()).Logger()
	logger.Info().Str("source", r.source).Msg("verification started")

	err := r.execute(ctx, run)
	run.FinishedAt = r.now()

	switch {
	case err == nil:
		run.Outcome = OutcomePassed
	case run.Report != nil && !run.Report.Passed():
		run.Outcome = OutcomeMismatch
		run.Error = err.Error()
	default:
		run.Outcome = OutcomeError
		run.Error = err.Error()
	}

	logger.Info().
		Str("outcome", string(run.Outcome)).
		Dur("duration", run.Duration()).
		Msg("verification finished")

	if r.recorder != nil {
		if recErr := r.recorder.RecordRun(ctx, run); recErr != nil {
			logger.Warn().Err(recErr).Msg("failed to record run")
		}
	}
	return run, err
}

func (r *Runner) execute(ctx context.Context, run *Run) error {
	expected, err := r.engine.Derive(ctx, r.fetcher, r.flavors)
	if err != nil {
		return err
	}
	run.Expected = expected

	report, err := r.comparator.Compare(ctx, expected)
	run.Report = report
	return err
}
