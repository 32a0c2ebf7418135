package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/treatment-plan-assistant/internal/api"
	"github.com/treatment-plan-assistant/internal/database"
	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/seed"
	"github.com/treatment-plan-assistant/internal/service"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "tpa",
		Short:         "Treatment plan assistant: intake analysis with drug label enrichment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a config file (default: search ./config.yaml, ./config, /etc/treatment-plan-assistant)")

	rootCmd.AddCommand(serveCmd(&configFile))
	rootCmd.AddCommand(schemaCmd(&configFile))
	rootCmd.AddCommand(seedCmd(&configFile))
	rootCmd.AddCommand(analyzeCmd(&configFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *configFile)
		},
	}
}

func runServer(ctx context.Context, configFile string) error {
	a, err := newApp(ctx, configFile, true)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore(ctx, a.config.GetDatabaseConfig().AutoMigrate)
	if err != nil {
		return err
	}

	pipeline, err := a.buildPipeline(store)
	if err != nil {
		return err
	}

	server := api.NewServer(*a.config.GetServerConfig(), api.Dependencies{
		Analyzer: pipeline.analyzer,
		Reviews:  service.NewReviewService(store, a.logger),
		Store:    store,
		Breakers: pipeline.lookups,
		Version:  version,
	}, a.logger)

	a.logger.WithField("version", version).Info("Starting treatment plan assistant")
	if err := server.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("Server stopped")
	return nil
}

func schemaCmd(configFile *string) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the analysis table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configFile, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if printOnly {
				if a.config.GetDatabaseConfig().Driver == "postgres" {
					fmt.Fprint(cmd.OutOrStdout(), database.PostgresSchema())
				} else {
					fmt.Fprint(cmd.OutOrStdout(), database.SQLiteSchema())
				}
				return nil
			}

			if _, err := a.openStore(ctx, true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the DDL for the configured driver instead of applying it")
	return cmd
}

func seedCmd(configFile *string) *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample analysis runs from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configFile, false)
			if err != nil {
				return err
			}
			defer a.Close()

			data := seed.DefaultFixture()
			if fixturePath != "" {
				if data, err = os.ReadFile(fixturePath); err != nil {
					return fmt.Errorf("reading fixture: %w", err)
				}
			}
			records, err := seed.Load(data)
			if err != nil {
				return err
			}

			store, err := a.openStore(ctx, a.config.GetDatabaseConfig().AutoMigrate)
			if err != nil {
				return err
			}
			created, err := seed.Seed(ctx, store, records, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d of %d analyses\n", created, len(records))
			return nil
		},
	}
	cmd.Flags().StringVarP(&fixturePath, "file", "f", "", "fixture file (default: built-in samples)")
	return cmd
}

func analyzeCmd(configFile *string) *cobra.Command {
	var persist bool
	cmd := &cobra.Command{
		Use:   "analyze <intake.json|->",
		Short: "Run the analysis pipeline on an intake record and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			payload, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			a, err := newApp(ctx, *configFile, true)
			if err != nil {
				return err
			}
			defer a.Close()

			var store domain.AnalysisStore
			if persist {
				if store, err = a.openStore(ctx, a.config.GetDatabaseConfig().AutoMigrate); err != nil {
					return err
				}
			}

			pipeline, err := a.buildPipeline(store)
			if err != nil {
				return err
			}

			outcome, err := pipeline.analyzer.Analyze(ctx, payload, uuid.NewString())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "store the result as a pending analysis")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading intake file: %w", err)
	}
	return data, nil
}
