package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/r4rohan/gcevm/internal/metrics"
	"github.com/r4rohan/gcevm/internal/platform/gcp"
	"github.com/r4rohan/gcevm/internal/stack"
	"github.com/r4rohan/gcevm/internal/statestore"
	"github.com/r4rohan/gcevm/internal/util/retry"
)

// Options configure a reconciliation engine.
type Options struct {
	// Project is the Google Cloud project the stack lives in.
	Project string

	// AllowStoppingForUpdate permits updates that stop the instance, such
	// as machine type changes. Without it such a change fails the node.
	AllowStoppingForUpdate bool

	// Retry overrides the provider retry policy; tests shrink the delays.
	Retry []retry.Option
}

// Engine plans and executes reconciliation runs.
type Engine struct {
	store   statestore.Store
	log     logr.Logger
	metrics *metrics.Metrics

	handlers *handlers
}

// New builds an engine over a provider client and a state store. Metrics may
// be nil.
func New(client gcp.Client, store statestore.Store, log logr.Logger, m *metrics.Metrics, opts Options) *Engine {
	return &Engine{
		store:   store,
		log:     log,
		metrics: m,
		handlers: &handlers{
			client:    client,
			log:       log,
			project:   opts.Project,
			allowStop: opts.AllowStoppingForUpdate,
			retryOpts: opts.Retry,
		},
	}
}

// Plan computes the dry-run plan for the stack from recorded state alone.
func (e *Engine) Plan(ctx context.Context, st *stack.Stack) (*Plan, error) {
	state, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return buildPlan(st, state)
}

// Apply converges every node of the stack. Orphaned records are destroyed
// first, then nodes run in dependency order with independent siblings in
// parallel. State is saved even after a partial failure so converged nodes
// stay recorded.
func (e *Engine) Apply(ctx context.Context, st *stack.Stack) (*Report, error) {
	state, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	report := e.newReport()
	e.log.Info("starting apply", "run", report.RunID, "nodes", len(st.Nodes))

	report.Results = append(report.Results, e.destroyRecords(ctx, state, func(rec *statestore.Record) bool {
		return st.Get(rec.NodeID) == nil
	})...)

	results, err := newExecutor(e.handlers, e.log, e.metrics, state).run(ctx, st)
	if err != nil {
		return nil, err
	}
	report.Results = append(report.Results, results...)
	report.FinishedAt = time.Now().UTC()

	if err := e.store.Save(ctx, state); err != nil {
		return report, fmt.Errorf("failed to save state: %w", err)
	}

	e.log.Info("apply finished", "run", report.RunID, "status", report.Status())
	return report, nil
}

// Destroy tears down everything in recorded state, newest first, so teardown
// reverses the order things were actually built in. A failed deletion keeps
// its record so a later destroy can retry it; remaining records are still
// attempted.
func (e *Engine) Destroy(ctx context.Context) (*Report, error) {
	state, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	report := e.newReport()
	e.log.Info("starting destroy", "run", report.RunID, "records", len(state.Records))

	report.Results = append(report.Results, e.destroyRecords(ctx, state, func(*statestore.Record) bool {
		return true
	})...)
	report.FinishedAt = time.Now().UTC()

	if err := e.store.Save(ctx, state); err != nil {
		return report, fmt.Errorf("failed to save state: %w", err)
	}

	e.log.Info("destroy finished", "run", report.RunID, "status", report.Status())
	return report, nil
}

// destroyRecords deletes the matching records in reverse creation order,
// sequentially, removing each from state as it goes.
func (e *Engine) destroyRecords(ctx context.Context, state *statestore.State, match func(*statestore.Record) bool) []*Result {
	var results []*Result
	for _, rec := range state.ByReverseSequence() {
		if !match(rec) {
			continue
		}
		if ctx.Err() != nil {
			results = append(results, &Result{
				NodeID: rec.NodeID, Kind: stack.Kind(rec.Kind),
				Outcome: OutcomeSkipped, Reason: "run cancelled", Err: ctx.Err(),
			})
			continue
		}

		started := time.Now()
		res := &Result{NodeID: rec.NodeID, Kind: stack.Kind(rec.Kind)}
		if err := e.handlers.destroy(ctx, rec); err != nil {
			e.log.Error(err, "failed to destroy node", "node", rec.NodeID)
			res.Outcome = OutcomeFailed
			res.Reason = err.Error()
			res.Err = err
		} else {
			res.Outcome = OutcomeDestroyed
			state.Delete(rec.NodeID)
		}
		e.metrics.Observe(rec.Kind, string(res.Outcome), time.Since(started))
		results = append(results, res)
	}
	return results
}

func (e *Engine) newReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}
