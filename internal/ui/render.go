// Package ui renders plans and run reports for the terminal and asks for
// interactive confirmation where an operation needs it.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/r4rohan/gcevm/internal/engine"
)

// actionMarker returns the styled one-character marker for a planned action.
func actionMarker(a engine.Action) string {
	switch a {
	case engine.ActionCreate:
		return createStyle.Render("+")
	case engine.ActionUpdate:
		return updateStyle.Render("~")
	case engine.ActionReplace:
		return destroyStyle.Render("±")
	case engine.ActionDelete:
		return destroyStyle.Render("-")
	default:
		return dimStyle.Render(" ")
	}
}

// RenderPlan produces the styled plan listing.
func RenderPlan(stackName string, plan *engine.Plan) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  gcevm plan: %s", stackName)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("═", 40)))
	b.WriteString("\n\n")

	if plan.Empty() {
		b.WriteString(dimStyle.Render("  No changes. The stack matches the recorded state."))
		b.WriteString("\n")
		return b.String()
	}

	for _, c := range plan.Changes {
		if c.Action == engine.ActionNone {
			continue
		}
		fmt.Fprintf(&b, "  %s %-45s %s\n", actionMarker(c.Action), c.NodeID, dimStyle.Render(c.Reason))
		for _, ch := range c.Changes {
			b.WriteString(dimStyle.Render(fmt.Sprintf("      %s: %s -> %s", ch.Field, ch.Old, ch.New)))
			b.WriteString("\n")
		}
		if c.RequiresStop {
			b.WriteString(updateStyle.Render("      requires stopping the instance"))
			b.WriteString("\n")
		}
	}

	counts := plan.Counts()
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("  Summary"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "    %d to create, %d to update, %d to replace, %d to delete, %d unchanged\n",
		counts[engine.ActionCreate],
		counts[engine.ActionUpdate],
		counts[engine.ActionReplace],
		counts[engine.ActionDelete],
		counts[engine.ActionNone],
	)
	return b.String()
}

func outcomeLabel(o engine.Outcome) string {
	switch o {
	case engine.OutcomeCreated, engine.OutcomeUpdated:
		return createStyle.Render(string(o))
	case engine.OutcomeUnchanged:
		return dimStyle.Render(string(o))
	case engine.OutcomeDestroyed:
		return updateStyle.Render(string(o))
	default:
		return destroyStyle.Render(string(o))
	}
}

// RenderReport produces the styled run report.
func RenderReport(rep *engine.Report) string {
	var b strings.Builder

	b.WriteString("\n")
	for _, res := range rep.Results {
		fmt.Fprintf(&b, "  %-45s %s\n", res.NodeID, outcomeLabel(res.Outcome))
		if res.Reason != "" && res.Outcome != engine.OutcomeUnchanged {
			b.WriteString(dimStyle.Render("      " + res.Reason))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	status := rep.Status()
	line := fmt.Sprintf("  Run %s finished: %s (%s)", rep.RunID, status, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	switch status {
	case engine.StatusSuccess:
		b.WriteString(createStyle.Render(line))
	case engine.StatusPartialFailure:
		b.WriteString(updateStyle.Render(line))
	default:
		b.WriteString(destroyStyle.Render(line))
	}
	b.WriteString("\n")
	return b.String()
}
