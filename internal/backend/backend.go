// Package backend opens the store and payload objects selected by configuration.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/diet-digest/backend/internal/awsclient"
	"github.com/DeafMist/diet-digest/backend/internal/config"
	"github.com/DeafMist/diet-digest/backend/internal/elasticsearch"
	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/seed"
	"github.com/DeafMist/diet-digest/backend/internal/store"
	"github.com/DeafMist/diet-digest/backend/internal/store/dynamo"
	"github.com/DeafMist/diet-digest/backend/internal/store/memory"
	"github.com/DeafMist/diet-digest/backend/internal/store/scylla"
)

// Writer bulk-loads table items. Every backend except memory implements it.
type Writer interface {
	PutItems(ctx context.Context, items []store.Item) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Backend is an opened store plus the object store holding article payloads.
type Backend struct {
	Name   string
	Schema keys.Schema
	Store  store.Store
	// Writer is nil for the memory backend.
	Writer Writer
	// Search is set for the elasticsearch backend.
	Search  *elasticsearch.Client
	Objects payload.ObjectGetter
	// Putter is nil when payloads come from the seed fixtures.
	Putter payload.ObjectPutter
	Bucket string

	prepare func(ctx context.Context) error
	closers []func()
}

// Open builds the backend named by cfg.StoreBackend. Remote backends are
// not contacted until first use, except scylla which connects eagerly.
func Open(ctx context.Context, cfg config.Common, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	schema := keys.DefaultSchema(cfg.DateIndex)
	b := &Backend{Name: cfg.StoreBackend, Schema: schema, Bucket: cfg.PayloadBucket}

	var clients *awsclient.Clients
	aws := func() (*awsclient.Clients, error) {
		if clients != nil {
			return clients, nil
		}
		c, err := awsclient.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		clients = c
		return c, nil
	}

	switch cfg.StoreBackend {
	case config.BackendDynamo:
		c, err := aws()
		if err != nil {
			return nil, err
		}
		st := dynamo.New(c.DynamoDB, cfg.Table, schema, logger)
		b.Store, b.Writer = st, st

	case config.BackendElasticsearch:
		es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, schema, logger)
		if err != nil {
			return nil, err
		}
		b.Store, b.Writer, b.Search = es, es, es
		b.prepare = es.EnsureIndex

	case config.BackendScylla:
		session, err := scylla.Connect(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
		if err != nil {
			return nil, store.Unavailable("connect scylla", err)
		}
		st := scylla.New(session, cfg.Table, schema, logger)
		b.Store, b.Writer = st, st
		b.prepare = st.EnsureSchema
		b.closers = append(b.closers, session.Close)

	case config.BackendMemory:
		src := seed.NewSource(cfg.SeedPath, schema)
		b.Store = memory.New(src, schema)
		b.Objects = src

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	switch {
	case cfg.PayloadDir != "":
		dir := payload.NewDirGetter(cfg.PayloadDir)
		b.Objects, b.Putter = dir, dir
	case b.Objects == nil:
		c, err := aws()
		if err != nil {
			return nil, err
		}
		b.Objects = payload.NewS3Getter(c.S3)
		b.Putter = payload.NewS3Putter(c.S3)
	}

	return b, nil
}

// Ping checks that the store answers. Backends without a native ping read one
// item from the date index.
func (b *Backend) Ping(ctx context.Context) error {
	if p, ok := b.Store.(pinger); ok {
		return p.Ping(ctx)
	}
	_, err := b.Store.Query(ctx, store.QueryInput{
		Index:     b.Schema.DateIndex,
		Partition: keys.ArticleEntity,
		Limit:     1,
	})
	if err != nil {
		return store.Unavailable("ping "+b.Name, err)
	}
	return nil
}

// Prepare creates the index or tables the backend needs before writes.
func (b *Backend) Prepare(ctx context.Context) error {
	if b.prepare == nil {
		return nil
	}
	return b.prepare(ctx)
}

// Close releases connections held by the backend.
func (b *Backend) Close() {
	for _, c := range b.closers {
		c()
	}
}

// ConnectOptions tune Connect.
type ConnectOptions struct {
	Retries int
	// Delay is the first wait between attempts. It doubles up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration
	Logger   *slog.Logger
}

// Connect opens the backend and waits until it answers a ping, retrying with
// exponential backoff.
func Connect(ctx context.Context, cfg config.Common, opts ConnectOptions) (*Backend, error) {
	if opts.Retries <= 0 {
		opts.Retries = 10
	}
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	delay := opts.Delay
	var lastErr error
	for i := 0; i < opts.Retries; i++ {
		b, err := Open(ctx, cfg, log)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err = b.Ping(pingCtx)
			cancel()
			if err == nil {
				log.Info("connected to store", slog.String("backend", b.Name))
				return b, nil
			}
			b.Close()
		}
		lastErr = err
		log.Warn("store not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", opts.Retries),
			slog.Duration("retry_in", delay),
		)

		if i == opts.Retries-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = min(delay*2, opts.MaxDelay)
	}
	return nil, fmt.Errorf("store %s not ready after %d attempts: %w", cfg.StoreBackend, opts.Retries, lastErr)
}
