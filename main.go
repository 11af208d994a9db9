package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-saves/movie-catalog/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every command
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "movie-catalog",
		Short:         "Movie catalog service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"YAML config file, or ssm:<parameter> to read a JSON document from Parameter Store")

	cmd.AddCommand(newServeCommand(opts), newEnrichCommand(opts))
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST, GraphQL and gRPC health endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := server.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, err := server.NewLogger(config)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.NewServer(ctx, config, logger)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			logger.Info("starting movie catalog")
			return srv.Start(ctx)
		},
	}
}

func newEnrichCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Run a single TMDB enrichment pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := server.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, err := server.NewLogger(config)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := server.ConnectDocumentDB(ctx, config, logger)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())

			repo, err := server.OpenRepository(ctx, client, config)
			if err != nil {
				return err
			}

			job, cache, err := server.NewEnrichJob(ctx, config, logger, repo)
			if err != nil {
				return err
			}
			if closer, ok := cache.(interface{ Close() error }); ok {
				defer closer.Close()
			}

			report, err := job.RunOnce(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d inserted=%d skipped=%d failed=%d\n",
				report.Candidates, report.Inserted, report.Skipped, report.Failed)
			return nil
		},
	}
}
