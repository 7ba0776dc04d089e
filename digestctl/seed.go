package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/diet-digest/backend/internal/backend"
	"github.com/DeafMist/diet-digest/backend/internal/seed"
)

// ErrReadOnly is returned when seeding a backend that cannot be written.
var ErrReadOnly = errors.New("backend does not support writes")

type seedStats struct {
	Articles int64 `json:"articles"`
	Items    int64 `json:"items"`
	Payloads int64 `json:"payloads"`
	Purged   int64 `json:"purged,omitempty"`
}

type seedOptions struct {
	path    string
	workers int
	reset   bool
	prepare bool
}

func newSeedCmd(a *app) *cobra.Command {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixture articles into the store and payload bucket",
		Long: `Seed reads JSON or YAML fixtures, fans every article out into its table and
index items, uploads offloaded payloads and writes everything to the configured backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.path == "" {
				opts.path = a.cfg.SeedPath
			}
			if opts.path == "" {
				return errors.New("no fixtures given: pass --path or set SEED_PATH")
			}
			if opts.workers <= 0 {
				opts.workers = a.cfg.SeedWorkers
			}

			b, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := runSeed(cmd.Context(), b, seed.NewSource(opts.path, b.Schema), opts, a.log)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&opts.path, "path", "", "Fixture file or directory (defaults to SEED_PATH)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel writers (defaults to SEED_WORKERS)")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Delete existing documents first (elasticsearch only)")
	cmd.Flags().BoolVar(&opts.prepare, "prepare", true, "Create the index or tables before writing")
	return cmd
}

func runSeed(ctx context.Context, b *backend.Backend, src *seed.Source, opts seedOptions, log *slog.Logger) (*seedStats, error) {
	if b.Writer == nil {
		return nil, fmt.Errorf("seed %s: %w", b.Name, ErrReadOnly)
	}

	data, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}

	stats := &seedStats{}
	if opts.prepare {
		if err := b.Prepare(ctx); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", b.Name, err)
		}
	}
	if opts.reset {
		if b.Search == nil {
			return nil, fmt.Errorf("reset is only supported by the elasticsearch backend")
		}
		purged, err := b.Search.Purge(ctx, 1000)
		if err != nil {
			return nil, fmt.Errorf("reset index: %w", err)
		}
		stats.Purged = purged
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.workers, 1))

	var items, payloads atomic.Int64
	for _, article := range data.Articles {
		g.Go(func() error {
			if article.Payload != nil {
				if b.Putter == nil {
					return fmt.Errorf("article %s: no payload bucket to write to", article.ID)
				}
				if err := b.Putter.PutObject(gctx, b.Bucket, article.PayloadKey, article.Payload); err != nil {
					return fmt.Errorf("article %s: %w", article.ID, err)
				}
				payloads.Add(1)
			}

			batch := article.Items()
			if err := b.Writer.PutItems(gctx, batch); err != nil {
				return fmt.Errorf("article %s: %w", article.ID, err)
			}
			items.Add(int64(len(batch)))
			log.Debug("article seeded", slog.String("id", article.ID), slog.Int("items", len(batch)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Articles = int64(len(data.Articles))
	stats.Items = items.Load()
	stats.Payloads = payloads.Load()
	log.Info("seed completed",
		slog.String("backend", b.Name),
		slog.Int64("articles", stats.Articles),
		slog.Int64("items", stats.Items),
		slog.Int64("payloads", stats.Payloads),
		slog.Duration("took", time.Since(start)),
	)
	return stats, nil
}
