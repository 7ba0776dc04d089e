// Package querycache is a read-through cache in front of a repository.Reader.
package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/repository"
)

// Cache memoizes successful reads. Articles and listings live in separate
// caches so one article can be evicted without touching the others, while any
// article change drops every listing that might contain it. Errors and missing
// articles are never cached.
type Cache struct {
	next     repository.Reader
	articles *cache.Cache
	listings *cache.Cache
	log      *slog.Logger
}

var _ repository.Reader = (*Cache)(nil)

// New wraps next. A non-positive ttl defaults to one minute.
func New(next repository.Reader, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		next:     next,
		articles: cache.New(ttl, 2*ttl),
		listings: cache.New(ttl, 2*ttl),
		log:      logger,
	}
}

// Headlines implements repository.Reader.
func (c *Cache) Headlines(ctx context.Context, params repository.HeadlineParams) (*repository.Headlines, error) {
	key := headlineKey(params)
	if v, ok := c.listings.Get(key); ok {
		return v.(*repository.Headlines), nil
	}
	out, err := c.next.Headlines(ctx, params)
	if err != nil {
		return nil, err
	}
	c.listings.SetDefault(key, out)
	return out, nil
}

// SearchArticles implements repository.Reader.
func (c *Cache) SearchArticles(ctx context.Context, filters models.SearchFilters) ([]models.ArticleSummary, error) {
	key := "search|" + filterKey(filters)
	if v, ok := c.listings.Get(key); ok {
		return v.([]models.ArticleSummary), nil
	}
	out, err := c.next.SearchArticles(ctx, filters)
	if err != nil {
		return nil, err
	}
	c.listings.SetDefault(key, out)
	return out, nil
}

// Article implements repository.Reader.
func (c *Cache) Article(ctx context.Context, id string) (*models.Article, error) {
	id = strings.TrimSpace(id)
	if v, ok := c.articles.Get(id); ok {
		return v.(*models.Article), nil
	}
	out, err := c.next.Article(ctx, id)
	if err != nil || out == nil {
		return out, err
	}
	c.articles.SetDefault(id, out)
	return out, nil
}

// Suggestions implements repository.Reader.
func (c *Cache) Suggestions(ctx context.Context, input string, limit int, filters models.SearchFilters) ([]string, error) {
	if strings.TrimSpace(input) == "" {
		return c.next.Suggestions(ctx, input, limit, filters)
	}
	key := fmt.Sprintf("suggest|%s|%d|%s", strings.TrimSpace(input), limit, filterKey(filters))
	if v, ok := c.listings.Get(key); ok {
		return v.([]string), nil
	}
	out, err := c.next.Suggestions(ctx, input, limit, filters)
	if err != nil {
		return nil, err
	}
	c.listings.SetDefault(key, out)
	return out, nil
}

// InvalidateArticle evicts one article and every cached listing.
func (c *Cache) InvalidateArticle(id string) {
	c.articles.Delete(strings.TrimSpace(id))
	c.listings.Flush()
	c.log.Debug("cache invalidated", slog.String("article_id", id))
}

// Flush empties both caches.
func (c *Cache) Flush() {
	c.articles.Flush()
	c.listings.Flush()
}

// Len returns the number of cached articles and listings.
func (c *Cache) Len() (articles, listings int) {
	return c.articles.ItemCount(), c.listings.ItemCount()
}

// Warm reads the given headline pages from the underlying reader and stores
// them, replacing any cached copy.
func (c *Cache) Warm(ctx context.Context, pages ...repository.HeadlineParams) error {
	for _, p := range pages {
		out, err := c.next.Headlines(ctx, p)
		if err != nil {
			return fmt.Errorf("warm headlines: %w", err)
		}
		c.listings.SetDefault(headlineKey(p), out)
	}
	return nil
}

func headlineKey(p repository.HeadlineParams) string {
	return fmt.Sprintf("headlines|%d|%s|%d", p.Limit, p.Sort, p.Offset)
}

func filterKey(f models.SearchFilters) string {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%+v", f)
	}
	return string(data)
}
