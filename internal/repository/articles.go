package repository

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/mapper"
	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

// Headlines lists articles by date. The limit is clamped to [1, 50] with a
// default of 6 and a negative offset is treated as 0.
func (r *Repository) Headlines(ctx context.Context, params HeadlineParams) (_ *Headlines, err error) {
	limit := clamp(params.Limit, DefaultHeadlineLimit, 1, MaxHeadlineLimit)
	offset := max(params.Offset, 0)

	ctx, span := r.start(ctx, "Headlines",
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
		attribute.String("sort", string(params.Sort)),
	)
	defer func() { finish(span, err) }()

	page, err := r.query(ctx, store.QueryInput{
		Index:     r.schema.DateIndex,
		Partition: keys.ArticleEntity,
		Limit:     min(offset+limit, MaxHeadlineWindow),
		Forward:   params.Sort.Ascending(),
	})
	if err != nil {
		return nil, err
	}

	all := summaries(page.Items, mapper.ArticleSummary)
	end := min(offset+limit, len(all))
	items := []models.ArticleSummary{}
	if offset < end {
		items = all[offset:end]
	}
	return &Headlines{Items: items, HasMore: page.Cursor != ""}, nil
}

// SearchArticles reads one index partition chosen by the filters and narrows
// it in memory. See the package documentation for the first-term policy.
func (r *Repository) SearchArticles(ctx context.Context, filters models.SearchFilters) (_ []models.ArticleSummary, err error) {
	limit := clamp(filters.Limit, DefaultSearchLimit, 1, MaxSearchLimit)
	words := mapper.Strings(filters.Words)
	categories := mapper.Strings(filters.Categories)

	in := store.QueryInput{Limit: limit, Forward: filters.Sort.Ascending()}
	decode := mapper.IndexRecord
	path := "date"
	switch {
	case len(words) > 0:
		in.Partition = keys.KeywordPartition(words[0])
		path = "keyword"
	case len(categories) > 0:
		in.Partition = keys.CategoryPartition(categories[0])
		path = "category"
	default:
		in.Index = r.schema.DateIndex
		in.Partition = keys.ArticleEntity
		decode = mapper.ArticleSummary
	}

	ctx, span := r.start(ctx, "SearchArticles",
		attribute.String("path", path),
		attribute.String("partition", in.Partition),
		attribute.Int("limit", limit),
	)
	defer func() { finish(span, err) }()

	page, err := r.query(ctx, in)
	if err != nil {
		return nil, err
	}
	return FilterArticles(summaries(page.Items, decode), filters), nil
}

// Article fetches one article and stitches in its offloaded payload. A missing
// article is nil, nil. A payload that cannot be loaded leaves the inline
// fields in place.
func (r *Repository) Article(ctx context.Context, id string) (_ *models.Article, err error) {
	id = strings.TrimSpace(id)
	ctx, span := r.start(ctx, "Article", attribute.String("article.id", id))
	defer func() { finish(span, err) }()

	if id == "" {
		return nil, nil
	}

	item, ok, err := r.get(ctx, keys.Article(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	article, ok := mapper.Article(item)
	if !ok {
		r.log.Warn("article record without identity", slog.String("id", id))
		return nil, nil
	}

	if r.payloads != nil {
		key, url := mapper.PayloadRef(item)
		ref := payload.Reference{Key: key, URL: url}
		if !ref.Empty() {
			if blob, ok := r.payloads.Load(ctx, ref); ok {
				article.Payload = mapper.Merge(article.Payload, *blob)
			} else {
				span.AddEvent("payload unavailable")
			}
		}
	}
	return &article, nil
}

// Suggestions returns titles and keywords of the articles indexed under input
// as an exact keyword. Blank input returns an empty list without reading.
func (r *Repository) Suggestions(ctx context.Context, input string, limit int, filters models.SearchFilters) (_ []string, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return []string{}, nil
	}
	limit = clamp(limit, DefaultSuggestionLimit, 1, MaxSuggestionLimit)

	ctx, span := r.start(ctx, "Suggestions", attribute.Int("limit", limit))
	defer func() { finish(span, err) }()

	page, err := r.query(ctx, store.QueryInput{
		Partition: keys.KeywordPartition(input),
		Limit:     MaxSuggestionLimit,
		Forward:   filters.Sort.Ascending(),
	})
	if err != nil {
		return nil, err
	}

	matched := FilterArticles(summaries(page.Items, mapper.IndexRecord), filters)

	out := make([]string, 0, limit)
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, a := range matched {
		add(a.Title)
		for _, kw := range a.Keywords {
			add(kw.Keyword)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func summaries(items []store.Item, decode func(map[string]any) (models.ArticleSummary, bool)) []models.ArticleSummary {
	out := make([]models.ArticleSummary, 0, len(items))
	for _, item := range items {
		if s, ok := decode(item); ok {
			out = append(out, s)
		}
	}
	return out
}
