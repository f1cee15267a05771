package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Harshitk-cp/protomind/internal/api"
	"github.com/Harshitk-cp/protomind/internal/buildconfig"
	"github.com/Harshitk-cp/protomind/internal/config"
	"github.com/Harshitk-cp/protomind/internal/embedding"
	"github.com/Harshitk-cp/protomind/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "protomind",
		Short: "Prototype-based knowledge graph with semantic search and assertion resolution",
		// The env file is loaded before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildconfig.String())
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address (defaults to :SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Populate a demo graph and print the resolved snapshot",
		RunE:  runSeed,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "decay",
		Short: "Run one decay pass over the reinforcement links",
		RunE:  runDecay,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap opens the configured backend and wires the services. The caller
// closes the backend and syncs the logger.
func bootstrap(ctx context.Context) (*api.App, *store.Backend, *zap.Logger, error) {
	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, nil, err
	}

	backend, err := store.Open(ctx, config.StoreOptions())
	if err != nil {
		return nil, nil, logger, fmt.Errorf("open %s backend: %w", config.StoreBackend(), err)
	}
	logger.Info("storage ready", zap.String("backend", backend.Name))

	embedder, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey(), config.EmbeddingDimensions(), logger)
	if err != nil {
		backend.Close()
		return nil, nil, logger, err
	}

	app := api.NewApp(backend, embedder, api.Options{
		APIKey:            config.APIKey(),
		RateLimitRPS:      config.RateLimitRPS(),
		RateLimitBurst:    config.RateLimitBurst(),
		SearchDefaultTopK: config.SearchDefaultTopK(),
		Scoring:           config.ScoringPolicy(),
		Hebbian:           config.HebbianConfig(),
	}, logger)

	restored, err := app.ORM.RebuildRegistry(ctx)
	if err != nil {
		backend.Close()
		return nil, nil, logger, fmt.Errorf("restore ORM schemas: %w", err)
	}
	logger.Info("ORM schemas restored from store", zap.Int("count", restored))

	if path := config.ORMSchemaFile(); path != "" {
		f, err := os.Open(path)
		if err != nil {
			backend.Close()
			return nil, nil, logger, fmt.Errorf("open ORM schema file: %w", err)
		}
		defer f.Close()
		schemas, err := app.ORM.LoadSchemas(ctx, f)
		if err != nil {
			backend.Close()
			return nil, nil, logger, fmt.Errorf("load ORM schemas: %w", err)
		}
		logger.Info("ORM schemas registered", zap.Int("count", len(schemas)), zap.String("file", path))
	}

	return app, backend, logger, nil
}
