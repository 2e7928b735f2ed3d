package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Interactive reports whether stdout is a terminal a prompt can run on.
func Interactive() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// runConfirm is swapped in tests so prompts never block.
var runConfirm = func(title, description string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// ConfirmStop asks whether the instance may be stopped for the pending
// update. Non-interactive sessions refuse without prompting.
func ConfirmStop(instance string) (bool, error) {
	if !Interactive() {
		return false, nil
	}
	return runConfirm(
		fmt.Sprintf("Stop %s to apply this change?", instance),
		"The pending machine type change requires stopping the instance. It will be restarted afterwards.",
	)
}

// ConfirmDestroy asks before tearing down a stack. Non-interactive sessions
// refuse without prompting; use the command's approval flag instead.
func ConfirmDestroy(stackName string) (bool, error) {
	if !Interactive() {
		return false, nil
	}
	return runConfirm(
		fmt.Sprintf("Destroy stack %s?", stackName),
		"Every recorded resource will be deleted. This cannot be undone.",
	)
}
