package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DeafMist/diet-digest/backend/internal/backend"
	"github.com/DeafMist/diet-digest/backend/internal/config"
	"github.com/DeafMist/diet-digest/backend/internal/logger"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/repository"
)

// app carries what every subcommand needs. The backend is opened on first use.
type app struct {
	cfg     *config.CLI
	log     *slog.Logger
	verbose bool

	open    func(ctx context.Context, cfg config.Common, log *slog.Logger) (*backend.Backend, error)
	backend *backend.Backend
}

func newRootCmd() *cobra.Command {
	a := &app{open: backend.Open}

	root := &cobra.Command{
		Use:   "digestctl",
		Short: "Query and seed the Diet digest article store",
		Long: `digestctl reads articles through the same repository the API uses
and loads fixture articles into the configured store backend.
The backend is selected with STORE_BACKEND and the other API environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := os.Getenv("LOG_LEVEL")
			if a.verbose {
				level = "debug"
			}
			a.log = logger.NewWriter("digestctl", cmd.ErrOrStderr(), level, os.Getenv("LOG_FORMAT"))

			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.backend != nil {
				a.backend.Close()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newHeadlinesCmd(a),
		newSearchCmd(a),
		newArticleCmd(a),
		newSuggestCmd(a),
		newSeedCmd(a),
	)
	return root
}

func (a *app) store(ctx context.Context) (*backend.Backend, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	b, err := a.open(ctx, a.cfg.Common, a.log)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", a.cfg.StoreBackend, err)
	}
	a.backend = b
	return b, nil
}

func (a *app) reader(ctx context.Context) (repository.Reader, error) {
	b, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return repository.New(b.Store,
		payload.NewLoader(b.Objects, b.Bucket, a.cfg.PayloadTimeout, a.log),
		repository.Options{Schema: b.Schema, Timeout: a.cfg.StoreTimeout, Logger: a.log},
	), nil
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
