package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runSeed creates a Person prototype, an Alice concept and two conflicting
// status assertions, then prints how they resolve.
func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, backend, logger, err := bootstrap(ctx)
	if logger != nil {
		defer func() { _ = logger.Sync() }()
	}
	if err != nil {
		return err
	}
	defer backend.Close()

	// Reuse Person on persistent backends so repeated seeds do not fork it.
	person, err := app.Prototypes.FindPrototypeByName(ctx, "Person")
	if err != nil {
		return err
	}
	if person == nil {
		person, err = app.Prototypes.CreatePrototype(ctx, service.CreatePrototypeInput{
			Name:        "Person",
			Description: "A human being",
			Source:      "seed",
		})
		if err != nil {
			return fmt.Errorf("create prototype: %w", err)
		}
	}

	alice, err := app.Prototypes.CreateConcept(ctx, service.CreateConceptInput{
		PrototypeID: person.ID,
		Label:       "Alice",
		Data:        map[string]any{"name": "Alice", "role": "engineer"},
		Source:      "seed",
	})
	if err != nil {
		return fmt.Errorf("create concept: %w", err)
	}

	truth := func(v float64) *float64 { return &v }
	for _, in := range []service.CreateAssertionInput{
		{Subject: "Alice", Predicate: "status", Object: "active", Truth: truth(0.6), Source: "user"},
		{Subject: "Alice", Predicate: "status", Object: "pending", Truth: truth(0.9), VoteScore: 2, Source: "agent"},
		{Subject: "Alice", Predicate: "role", Object: "engineer", Source: "user"},
	} {
		if _, err := app.Assertions.Create(ctx, in); err != nil {
			return fmt.Errorf("create assertion: %w", err)
		}
	}

	snapshot, err := app.Assertions.Snapshot(ctx, "Alice")
	if err != nil {
		return err
	}
	logger.Info("seed complete",
		zap.String("prototype", person.ID.String()),
		zap.String("concept", alice.ID.String()))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"prototype_id": person.ID,
		"concept_id":   alice.ID,
		"snapshot":     snapshot,
	})
}
