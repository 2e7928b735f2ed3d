package handlers

import (
	"context"
	"fmt"

	"github.com/r4rohan/gcevm/internal/engine"
	"github.com/r4rohan/gcevm/internal/ui"
)

// Apply converges the configured stack against the provider.
//
// When the plan contains an update that requires stopping the instance and
// the configuration does not allow it, an interactive session is asked once;
// a non-interactive session fails that node with a conflict, leaving
// siblings untouched.
func Apply(ctx context.Context, configPath string, verbosity int) error {
	rt, err := setup(ctx, configPath)
	if err != nil {
		return err
	}

	allowStop := rt.cfg.AllowStoppingForUpdate
	if !allowStop {
		allowStop, err = stopPermission(ctx, rt, verbosity)
		if err != nil {
			return err
		}
	}

	eng := rt.engineFor(verbosity, allowStop)
	report, err := eng.Apply(ctx, rt.stack)
	if report != nil {
		fmt.Fprint(output, ui.RenderReport(report))
	}
	if err != nil {
		return err
	}

	if status := report.Status(); status != engine.StatusSuccess {
		return fmt.Errorf("apply finished with status %s", status)
	}
	return nil
}

// stopPermission previews the plan and, when a stop-requiring change is
// pending, asks the user to approve it.
func stopPermission(ctx context.Context, rt *runtime, verbosity int) (bool, error) {
	plan, err := rt.engineFor(verbosity, false).Plan(ctx, rt.stack)
	if err != nil {
		return false, fmt.Errorf("failed to plan: %w", err)
	}
	for _, c := range plan.Changes {
		if c.RequiresStop {
			return confirmStop(rt.derived.InstanceName)
		}
	}
	return false, nil
}
