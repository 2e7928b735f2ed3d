package handlers

import (
	"context"
	"fmt"

	"github.com/r4rohan/gcevm/internal/engine"
	"github.com/r4rohan/gcevm/internal/ui"
)

// Destroy tears down every recorded resource of the configured stack in
// reverse creation order. Unless autoApprove is set, an interactive session
// is asked for confirmation; a non-interactive one refuses.
func Destroy(ctx context.Context, configPath string, verbosity int, autoApprove bool) error {
	rt, err := setup(ctx, configPath)
	if err != nil {
		return err
	}

	if !autoApprove {
		ok, err := confirmDestroy(rt.cfg.Name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("destroy not confirmed; re-run with --auto-approve to skip the prompt")
		}
	}

	report, err := rt.engineFor(verbosity, true).Destroy(ctx)
	if report != nil {
		fmt.Fprint(output, ui.RenderReport(report))
	}
	if err != nil {
		return err
	}

	if status := report.Status(); status != engine.StatusSuccess {
		return fmt.Errorf("destroy finished with status %s", status)
	}
	return nil
}
