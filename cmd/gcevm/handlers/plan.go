package handlers

import (
	"context"
	"fmt"

	"github.com/r4rohan/gcevm/internal/ui"
)

// Plan computes and prints the dry-run plan for the configured stack. It
// never calls the provider; the comparison is against recorded state only.
func Plan(ctx context.Context, configPath string, verbosity int) error {
	rt, err := setup(ctx, configPath)
	if err != nil {
		return err
	}

	plan, err := rt.engineFor(verbosity, rt.cfg.AllowStoppingForUpdate).Plan(ctx, rt.stack)
	if err != nil {
		return fmt.Errorf("failed to plan: %w", err)
	}

	fmt.Fprint(output, ui.RenderPlan(rt.cfg.Name, plan))
	return nil
}
