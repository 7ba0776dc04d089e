// Package repository is the article query layer used by the HTTP API and the CLI.
//
// Every operation is one read against the store followed by in-memory
// filtering. Two limitations are deliberate and visible to callers:
//
//   - Search reads a single index partition: the first word when words are
//     given, else the first category. Further words and categories only narrow
//     that partition, they never widen it. Multi-word search therefore behaves
//     as a search for its first word.
//   - Limits bound how many records are read, not how many survive filtering.
//     A filtered search can return fewer results than its limit while more
//     matching articles exist. Headlines read at most MaxHeadlineWindow records,
//     so HasMore is only an approximation for offsets near that cap.
package repository

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

const (
	DefaultHeadlineLimit = 6
	MaxHeadlineLimit     = 50
	// MaxHeadlineWindow caps offset+limit for a single headline read.
	MaxHeadlineWindow = 100

	DefaultSearchLimit = 20
	MaxSearchLimit     = 100

	DefaultSuggestionLimit = 10
	MaxSuggestionLimit     = 50
)

// HeadlineParams selects a page of the date-ordered listing.
type HeadlineParams struct {
	Limit  int
	Sort   models.Sort
	Offset int
}

// Headlines is one page of the listing.
type Headlines struct {
	Items   []models.ArticleSummary `json:"items"`
	HasMore bool                    `json:"hasMore"`
}

// Reader is the read contract of the article service.
type Reader interface {
	Headlines(ctx context.Context, params HeadlineParams) (*Headlines, error)
	SearchArticles(ctx context.Context, filters models.SearchFilters) ([]models.ArticleSummary, error)
	// Article returns nil, nil when no article has the id.
	Article(ctx context.Context, id string) (*models.Article, error)
	Suggestions(ctx context.Context, input string, limit int, filters models.SearchFilters) ([]string, error)
}

// PayloadLoader fetches offloaded article bodies. payload.Loader implements it.
type PayloadLoader interface {
	Load(ctx context.Context, ref payload.Reference) (*models.Payload, bool)
}

// Options configure a Repository.
type Options struct {
	Schema keys.Schema
	// Timeout bounds every store call. Zero leaves calls bounded by the caller's context only.
	Timeout time.Duration
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// Repository implements Reader over a store.Store. It holds no mutable state
// and is safe for concurrent use.
type Repository struct {
	store    store.Store
	payloads PayloadLoader
	schema   keys.Schema
	timeout  time.Duration
	log      *slog.Logger
	tracer   trace.Tracer
}

var _ Reader = (*Repository)(nil)

// New builds a Repository. payloads may be nil, in which case articles are
// returned with their inline payload only.
func New(st store.Store, payloads PayloadLoader, opts Options) *Repository {
	if opts.Schema.Indexes == nil {
		opts.Schema = keys.DefaultSchema("")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/DeafMist/diet-digest/backend/internal/repository")
	}
	return &Repository{
		store:    st,
		payloads: payloads,
		schema:   opts.Schema,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		tracer:   opts.Tracer,
	}
}

func (r *Repository) query(ctx context.Context, in store.QueryInput) (*store.Page, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	page, err := r.store.Query(ctx, in)
	if err != nil {
		return nil, store.Unavailable("query "+in.Partition, err)
	}
	r.log.Debug("store query",
		slog.String("index", in.Index),
		slog.String("partition", in.Partition),
		slog.Int("limit", in.Limit),
		slog.Int("items", len(page.Items)),
	)
	return page, nil
}

func (r *Repository) get(ctx context.Context, key keys.Key) (store.Item, bool, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	item, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, false, store.Unavailable("get "+key.PK, err)
	}
	return item, ok, nil
}

func (r *Repository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "repository."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func clamp(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	return max(lo, min(v, hi))
}
