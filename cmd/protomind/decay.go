package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func runDecay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, backend, logger, err := bootstrap(ctx)
	if logger != nil {
		defer func() { _ = logger.Sync() }()
	}
	if err != nil {
		return err
	}
	defer backend.Close()

	res, err := app.Hebbian.DecayAll(ctx)
	if err != nil {
		return fmt.Errorf("decay: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "processed=%d decayed=%d pruned=%d\n", res.Processed, res.Decayed, res.Pruned)
	return nil
}
