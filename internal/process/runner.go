package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/observability"
)

// RunOptions controls behavior orthogonal to a control's own configuration.
type RunOptions struct {
	// Debug retains temporary relations after the run terminates instead of
	// having the pipeline clean them up.
	Debug bool
}

// Runner drives one control's pipeline through its state machine:
// ADDED -> WAITING -> STARTED -> (PROGRESS)* -> DONE | ERROR | CANCELLED.
// It owns the only shared mutable state a run touches outside its own
// temporary relations: the LOG row and, while non-terminal, a lease row in
// rapo_instance_lease.
type Runner struct {
	Logs       LogStore
	Leases     InstanceLeaseStore
	Statements StatementStore

	Prerun  PrerunHook
	Postrun PostrunHook

	// Obs is optional: when set, every stage executes inside its own span
	// (named after the stage) and run-log lines are emitted through its
	// trace-correlated logger instead of slog.Default(). A zero Runner
	// still logs — it just isn't trace-correlated.
	Obs *observability.Providers
}

func (r *Runner) logger() *slog.Logger {
	if r.Obs != nil && r.Obs.Logger != nil {
		return r.Obs.Logger
	}
	return slog.Default()
}

func (r *Runner) tracer() trace.Tracer {
	if r.Obs != nil && r.Obs.Tracer != nil {
		return r.Obs.Tracer
	}
	return noop.NewTracerProvider().Tracer("")
}

// Run executes a control's base window synchronously (the run() path):
// timeout is never honored here; only asynchronous launches are bounded.
func (r *Runner) Run(ctx context.Context, control domain.ControlConfig, pipeline Pipeline, opts RunOptions) (domain.Process, error) {
	window, err := domain.ResolveWindow(time.Now(), control.PeriodBack, control.PeriodNumber, control.PeriodType)
	if err != nil {
		return domain.Process{ControlID: control.ControlID, State: domain.ProcessError, TextMessage: err.Error()}, err
	}
	return r.runWindow(ctx, control, "", window, pipeline, opts)
}

// Launch executes a control's base window asynchronously (the launch()
// path): control.Timeout bounds the whole run; exceeding it transitions
// the process to CANCELLED with the timeout recorded in TextMessage.
// The returned channel receives exactly one Process once the run reaches a
// terminal state.
func (r *Runner) Launch(ctx context.Context, control domain.ControlConfig, pipeline Pipeline, opts RunOptions) <-chan domain.Process {
	out := make(chan domain.Process, 1)
	runCtx := ctx
	var cancel context.CancelFunc
	if control.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, control.Timeout)
	}
	go func() {
		if cancel != nil {
			defer cancel()
		}
		proc, _ := r.Run(runCtx, control, pipeline, opts)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && proc.State != domain.ProcessDone {
			proc.State = domain.ProcessCancelled
			proc.TextMessage = "run timed out"
		}
		out <- proc
	}()
	return out
}

// RunIterations executes the base run followed by every status=Y entry of
// control.IterationConfig: each iteration is a distinct run with its
// own fresh process_id, and one iteration's failure never aborts the rest.
// Iterations
// execute sequentially — the pipeline stages within a run are strictly
// ordered — but the prerun hook for every enabled iteration is
// evaluated concurrently first, bounded by control.Parallelism, since hook
// evaluation touches no shared temp state and is exactly the bounded
// fan-out errgroup exists for.
func (r *Runner) RunIterations(ctx context.Context, control domain.ControlConfig, pipeline Pipeline, opts RunOptions) []domain.Process {
	base, _ := r.Run(ctx, control, pipeline, opts)
	results := []domain.Process{base}

	var enabled []domain.IterationConfig
	for _, ic := range control.IterationConfig {
		if ic.Enabled() {
			enabled = append(enabled, ic)
		}
	}
	if len(enabled) == 0 {
		return results
	}

	precheck := r.evaluatePrechecks(ctx, control, enabled)

	for i, ic := range enabled {
		window, err := domain.ResolveWindow(time.Now(), ic.PeriodBack, ic.PeriodNumber, ic.PeriodType)
		if err != nil {
			results = append(results, domain.Process{
				ControlID: control.ControlID, IterationLabel: ic.Label,
				State: domain.ProcessError, TextMessage: err.Error(),
			})
			continue
		}
		proc, _ := r.runWindow(ctx, control, ic.Label, window, pipeline, opts, precheck[i]...)
		results = append(results, proc)
	}
	return results
}

// evaluatePrechecks runs the prerun hook for every enabled iteration
// concurrently, bounded by control.Parallelism, and returns each
// iteration's result as a zero-or-one-element slice suitable for splicing
// into runWindow's optional precomputed-hook-result parameter. A hook
// evaluation error degrades that iteration to re-running its own hook
// inline inside runWindow rather than failing the whole batch.
func (r *Runner) evaluatePrechecks(ctx context.Context, control domain.ControlConfig, enabled []domain.IterationConfig) [][]string {
	results := make([][]string, len(enabled))
	if r.Prerun == nil {
		return results
	}

	limit := control.Parallelism
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ic := range enabled {
		i, ic := i, ic
		g.Go(func() error {
			msg, err := r.Prerun(gctx, fmt.Sprintf("%s/%s", control.ControlID, ic.Label))
			if err != nil {
				return nil // leave results[i] empty; runWindow re-evaluates inline
			}
			results[i] = []string{msg}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runWindow is the single state-machine body shared by Run and every
// iteration: ADDED -> WAITING -> STARTED -> stages -> terminal state.
// precomputedHook, if present, is this run's already-evaluated prerun hook
// result (from evaluatePrechecks); otherwise the hook is invoked inline.
func (r *Runner) runWindow(ctx context.Context, control domain.ControlConfig, iterationLabel string, window domain.Window, pipeline Pipeline, opts RunOptions, precomputedHook ...string) (proc domain.Process, runErr error) {
	ctx, span := r.tracer().Start(ctx, "rapo.run", trace.WithAttributes(
		attribute.String("control_id", control.ControlID),
		attribute.String("iteration_label", iterationLabel),
	))
	defer span.End()

	proc = domain.Process{
		ProcessID:      uuid.NewString(),
		ControlID:      control.ControlID,
		IterationLabel: iterationLabel,
		State:          domain.ProcessAdded,
		DateFrom:       window.From,
		DateTo:         window.To,
	}
	log := r.logger().With("control_id", control.ControlID, "process_id", proc.ProcessID)
	span.SetAttributes(attribute.String("process_id", proc.ProcessID))
	log.InfoContext(ctx, "process added", "date_from", window.From, "date_to", window.To)
	if r.Logs != nil {
		_ = r.Logs.Insert(ctx, proc)
	}

	finish := func(state domain.ProcessState, err error) (domain.Process, error) {
		now := time.Now()
		proc.State = state
		proc.EndDate = &now
		if err != nil {
			proc.TextError = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.ErrorContext(ctx, "process terminated", "state", string(state), "error", err)
		} else {
			log.InfoContext(ctx, "process terminated", "state", string(state))
		}
		if r.Logs != nil {
			_ = r.Logs.Update(ctx, proc)
		}
		if r.Leases != nil {
			_ = r.Leases.Release(ctx, control.ControlID, proc.ProcessID)
		}
		if !opts.Debug {
			_ = pipeline.Cleanup(ctx, proc.ProcessID)
		}
		if r.Postrun != nil {
			r.Postrun(ctx, proc.ProcessID, state)
		}
		r.recordRunMetric(ctx, state)
		return proc, err
	}

	proc.State = domain.ProcessWaiting
	if r.Logs != nil {
		_ = r.Logs.Update(ctx, proc)
	}

	if r.Leases != nil {
		ok, err := r.Leases.Acquire(ctx, control.ControlID, proc.ProcessID, control.InstanceLimit)
		if err != nil {
			return finish(domain.ProcessError, domain.WrapDB("acquire instance lease", err))
		}
		if !ok {
			proc.TextMessage = "instance_limit reached"
			return finish(domain.ProcessError, domain.ErrInstanceLimitReached)
		}
	}

	start := time.Now()
	proc.StartDate = &start
	proc.State = domain.ProcessStarted
	log.InfoContext(ctx, "process started")
	if r.Logs != nil {
		_ = r.Logs.Update(ctx, proc)
	}

	defer func() {
		if rec := recover(); rec != nil {
			panicErr := PanicError{Value: rec, StackTrace: string(debug.Stack())}
			proc, runErr = finish(domain.ProcessError, panicErr)
		}
	}()

	// preparation_sql and prerequisite_sql both run inside STARTED,
	// before the prerun hook gets its veto.
	if r.Statements != nil && control.PreparationSQL != "" {
		if err := r.Statements.ExecPreparation(ctx, control.PreparationSQL); err != nil {
			return finish(domain.ProcessError, domain.WrapDB("preparation_sql", err))
		}
	}
	if r.Statements != nil && control.PrerequisiteSQL != "" {
		value, err := r.Statements.EvalPrerequisite(ctx, control.PrerequisiteSQL)
		if err != nil {
			return finish(domain.ProcessError, domain.WrapDB("prerequisite_sql", err))
		}
		proc.PrerequisiteValue = &value
		if value == 0 {
			proc.TextMessage = "prerequisite_sql returned 0"
			return finish(domain.ProcessError, domain.ErrPrerequisiteFailed)
		}
	}

	if hookErr := r.runPrerun(ctx, &proc, precomputedHook...); hookErr != nil {
		return finish(domain.ProcessError, hookErr)
	}
	if proc.State == domain.ProcessError {
		return finish(domain.ProcessError, domain.ErrPrerequisiteFailed)
	}

	proc.State = domain.ProcessProgress
	if r.Logs != nil {
		_ = r.Logs.Update(ctx, proc)
	}

	stages := []struct {
		name string
		run  func(context.Context, string) error
	}{
		{"fetch", func(c context.Context, id string) error { return pipeline.Fetch(c, id, window, control) }},
		{"correlate", pipeline.Correlate},
		{"classify", pipeline.Classify},
		{"save", pipeline.Save},
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			proc.TextMessage = "cancelled"
			return finish(domain.ProcessCancelled, err)
		}
		stageErr := func() error {
			stageCtx, stageSpan := r.tracer().Start(ctx, "rapo.stage."+stage.name)
			defer stageSpan.End()
			err := stage.run(stageCtx, proc.ProcessID)
			if err != nil {
				stageSpan.RecordError(err)
				stageSpan.SetStatus(codes.Error, err.Error())
			}
			return err
		}()
		if stageErr != nil {
			log.ErrorContext(ctx, "stage failed", "stage", stage.name, "error", stageErr)
			if errors.Is(stageErr, domain.ErrCorrelationLimitExceeded) {
				return finish(domain.ProcessError, stageErr)
			}
			return finish(domain.ProcessError, domain.WrapDB("pipeline stage", stageErr))
		}
	}

	if counter, ok := pipeline.(interface {
		Counts() (fetchedA, fetchedB, successA, successB, errorA, errorB int)
	}); ok {
		fa, fb, sa, sb, ea, eb := counter.Counts()
		proc.FetchedNumberA, proc.FetchedNumberB = fa, fb
		proc.SuccessNumberA, proc.SuccessNumberB = sa, sb
		proc.ErrorNumberA, proc.ErrorNumberB = ea, eb
	}

	return finish(domain.ProcessDone, nil)
}

// recordRunMetric increments the per-terminal-state run counter when
// observability is wired.
func (r *Runner) recordRunMetric(ctx context.Context, state domain.ProcessState) {
	if r.Obs == nil || r.Obs.Meter == nil {
		return
	}
	counter, err := r.Obs.Meter.Int64Counter("rapo_runs_total")
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
}

// runPrerun resolves this run's prerun hook outcome, preferring an
// already-computed result from evaluatePrechecks, and sets proc to ERROR
// with TextMessage populated when the hook vetoes the run.
func (r *Runner) runPrerun(ctx context.Context, proc *domain.Process, precomputed ...string) error {
	var msg string
	switch {
	case len(precomputed) == 1:
		msg = precomputed[0]
	case r.Prerun != nil:
		m, err := r.Prerun(ctx, proc.ProcessID)
		if err != nil {
			return fmt.Errorf("%w: prerun hook: %w", domain.ErrPrerequisiteFailed, err)
		}
		msg = m
	default:
		return nil
	}
	if msg != "" {
		proc.State = domain.ProcessError
		proc.TextMessage = msg
	}
	return nil
}
