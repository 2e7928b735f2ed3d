package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/r4rohan/gcevm/internal/metrics"
	"github.com/r4rohan/gcevm/internal/stack"
	"github.com/r4rohan/gcevm/internal/statestore"
)

// executor runs one apply: a goroutine per node, each gated on the done
// channels of its prerequisites. Independent siblings run concurrently;
// a failed or skipped prerequisite skips every transitive dependent while
// unrelated branches keep going.
type executor struct {
	handlers *handlers
	log      logr.Logger
	metrics  *metrics.Metrics
	state    *statestore.State

	mu      sync.Mutex
	results map[string]*Result
	order   []string
	done    map[string]chan struct{}
}

func newExecutor(h *handlers, log logr.Logger, m *metrics.Metrics, state *statestore.State) *executor {
	return &executor{
		handlers: h,
		log:      log,
		metrics:  m,
		state:    state,
		results:  make(map[string]*Result),
		done:     make(map[string]chan struct{}),
	}
}

// run converges every node of the stack and returns results in completion
// order. The graph is validated up front so a cycle fails the run before any
// provider call.
func (ex *executor) run(ctx context.Context, st *stack.Stack) ([]*Result, error) {
	if _, err := executionOrder(st); err != nil {
		return nil, err
	}

	for _, n := range st.Nodes {
		ex.done[n.ID] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for _, n := range st.Nodes {
		wg.Add(1)
		go func(n *stack.Node) {
			defer wg.Done()
			ex.runNode(ctx, n)
		}(n)
	}
	wg.Wait()

	ex.mu.Lock()
	defer ex.mu.Unlock()
	results := make([]*Result, 0, len(ex.order))
	for _, id := range ex.order {
		results = append(results, ex.results[id])
	}
	return results, nil
}

func (ex *executor) runNode(ctx context.Context, n *stack.Node) {
	unmet, depOutputs := ex.awaitDeps(ctx, n)
	if ctx.Err() != nil {
		ex.finish(n, &Result{
			NodeID: n.ID, Kind: n.Kind, Outcome: OutcomeSkipped,
			Reason: "run cancelled", Err: ctx.Err(),
		}, time.Time{})
		return
	}
	if len(unmet) > 0 {
		err := &DependencyError{NodeID: n.ID, Unmet: unmet}
		ex.log.Info("skipping node", "node", n.ID, "unmet", unmet)
		ex.finish(n, &Result{
			NodeID: n.ID, Kind: n.Kind, Outcome: OutcomeSkipped,
			Reason: fmt.Sprintf("prerequisites not converged: %v", unmet), Err: err,
		}, time.Time{})
		return
	}

	started := time.Now()

	if n.Resolve != nil {
		if err := n.Resolve(depOutputs); err != nil {
			ex.finish(n, &Result{
				NodeID: n.ID, Kind: n.Kind, Outcome: OutcomeFailed,
				Reason: "failed to resolve prerequisite outputs", Err: err,
			}, started)
			return
		}
	}

	rec := ex.record(n.ID)
	outputs, outcome, changes, err := ex.handlers.ensure(ctx, n, rec)
	res := &Result{NodeID: n.ID, Kind: n.Kind, Outcome: outcome, Diff: changes, Outputs: outputs, Err: err}
	if err != nil {
		res.Reason = err.Error()
		ex.finish(n, res, started)
		return
	}

	ex.persist(n, outputs)
	ex.log.V(1).Info("node converged", "node", n.ID, "outcome", outcome)
	ex.finish(n, res, started)
}

// awaitDeps blocks until every prerequisite reached a terminal state, then
// reports which did not converge and the outputs of those that did.
func (ex *executor) awaitDeps(ctx context.Context, n *stack.Node) ([]string, map[string]stack.Outputs) {
	for _, dep := range n.DependsOn {
		select {
		case <-ex.done[dep]:
		case <-ctx.Done():
			return nil, nil
		}
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	var unmet []string
	outputs := make(map[string]stack.Outputs, len(n.DependsOn))
	for _, dep := range n.DependsOn {
		res := ex.results[dep]
		if res == nil || !res.Outcome.converged() {
			unmet = append(unmet, dep)
			continue
		}
		outputs[dep] = res.Outputs
	}
	return unmet, outputs
}

func (ex *executor) record(nodeID string) *statestore.Record {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.state.Get(nodeID)
}

// persist writes the node's converged desired payload and outputs back to
// state. The payload is marshalled after Resolve so re-applies compare
// against fully resolved values.
func (ex *executor) persist(n *stack.Node, outputs stack.Outputs) {
	desired, err := json.Marshal(n.Desired)
	if err != nil {
		ex.log.Error(err, "failed to marshal desired state", "node", n.ID)
		return
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	rec := &statestore.Record{
		NodeID:    n.ID,
		Kind:      string(n.Kind),
		Desired:   desired,
		Outputs:   outputs,
		UpdatedAt: time.Now().UTC(),
	}
	if ex.state.Get(n.ID) == nil {
		rec.Sequence = ex.state.NextSequence()
	}
	ex.state.Put(rec)
}

func (ex *executor) finish(n *stack.Node, res *Result, started time.Time) {
	if !started.IsZero() {
		ex.metrics.Observe(string(n.Kind), string(res.Outcome), time.Since(started))
	}

	ex.mu.Lock()
	ex.results[n.ID] = res
	ex.order = append(ex.order, n.ID)
	ex.mu.Unlock()

	close(ex.done[n.ID])
}
