package engine

import (
	"fmt"

	"github.com/r4rohan/gcevm/internal/stack"
	"github.com/r4rohan/gcevm/internal/statestore"
)

// Action is what a run would do to one node.
type Action string

const (
	ActionNone    Action = "none"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
)

// PlannedChange is the planned action for one node.
type PlannedChange struct {
	NodeID  string
	Kind    stack.Kind
	Action  Action
	Reason  string
	Changes []Change

	// RequiresStop flags an update that stops the instance first. Apply
	// refuses it unless stopping is allowed.
	RequiresStop bool
}

// Plan is a dry run: the action every node would take, computed from the
// state store alone. Orphan deletions come first, then stack nodes in
// dependency order.
type Plan struct {
	Changes []PlannedChange
}

// Empty reports whether the plan contains no actionable change.
func (p *Plan) Empty() bool {
	for _, c := range p.Changes {
		if c.Action != ActionNone {
			return false
		}
	}
	return true
}

// Counts tallies planned actions.
func (p *Plan) Counts() map[Action]int {
	counts := make(map[Action]int)
	for _, c := range p.Changes {
		counts[c.Action]++
	}
	return counts
}

// buildPlan computes the plan for a stack against recorded state. It makes
// no provider calls: a resource deleted out-of-band still plans as unchanged
// until an apply observes it missing.
func buildPlan(st *stack.Stack, state *statestore.State) (*Plan, error) {
	order, err := executionOrder(st)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}

	// Records no current node claims are leftovers from a previous shape of
	// the stack; they are torn down before anything else runs.
	for _, rec := range state.ByReverseSequence() {
		if st.Get(rec.NodeID) == nil {
			plan.Changes = append(plan.Changes, PlannedChange{
				NodeID: rec.NodeID,
				Kind:   stack.Kind(rec.Kind),
				Action: ActionDelete,
				Reason: "no longer part of the stack",
			})
		}
	}

	for _, id := range order {
		n := st.Get(id)
		rec := state.Get(id)

		if rec == nil {
			plan.Changes = append(plan.Changes, PlannedChange{
				NodeID: n.ID,
				Kind:   n.Kind,
				Action: ActionCreate,
				Reason: "not yet provisioned",
			})
			continue
		}

		// Recorded payloads carry values resolved from prerequisite outputs;
		// feed the recorded outputs back in so the comparison is like for
		// like. A failed resolve just means some prerequisite has no record
		// yet, in which case its output-bearing fields show up in the diff.
		if n.Resolve != nil {
			depOutputs := make(map[string]stack.Outputs, len(n.DependsOn))
			for _, dep := range n.DependsOn {
				if depRec := state.Get(dep); depRec != nil {
					depOutputs[dep] = depRec.Outputs
				}
			}
			_ = n.Resolve(depOutputs)
		}

		changes, err := diffDesired(n.Kind, rec.Desired, n.Desired)
		if err != nil {
			return nil, fmt.Errorf("failed to plan node %s: %w", n.ID, err)
		}

		pc := PlannedChange{NodeID: n.ID, Kind: n.Kind, Changes: changes}
		switch {
		case len(changes) == 0:
			pc.Action = ActionNone
			pc.Reason = "already converged"
		case requiresReplace(n.Kind, changes):
			pc.Action = ActionReplace
			pc.Reason = "immutable field changed"
		default:
			pc.Action = ActionUpdate
			pc.Reason = changeSummary(changes)
			pc.RequiresStop = requiresStop(n.Kind, changes)
		}
		plan.Changes = append(plan.Changes, pc)
	}

	return plan, nil
}

// executionOrder returns the node IDs in dependency order.
func executionOrder(st *stack.Stack) ([]string, error) {
	dag, err := st.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	order, err := dag.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("failed to order nodes: %w", err)
	}
	return order, nil
}

func changeSummary(changes []Change) string {
	switch len(changes) {
	case 0:
		return ""
	case 1:
		return changes[0].Field + " changed"
	default:
		return fmt.Sprintf("%s and %d more fields changed", changes[0].Field, len(changes)-1)
	}
}
