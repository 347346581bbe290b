package cli

import (
	"context"
	"fmt"
	"io"
)

// RunRecon executes one reconciliation and prints its summary to w
func RunRecon(ctx context.Context, app *App, flags *RunFlags, w io.Writer) error {
	opts, err := flags.ToOptions(app.Location)
	if err != nil {
		return err
	}

	PrintHeader(w, opts.DryRun)

	result, err := app.Orchestrator.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	PrintRunSummary(w, result)
	return nil
}
