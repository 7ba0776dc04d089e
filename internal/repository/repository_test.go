package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/repository"
	"github.com/DeafMist/diet-digest/backend/internal/seed"
	"github.com/DeafMist/diet-digest/backend/internal/store"
	"github.com/DeafMist/diet-digest/backend/internal/store/memory"
)

// countingStore records how often the wrapped store is read.
type countingStore struct {
	store.Store
	gets    int
	queries []store.QueryInput
}

func (c *countingStore) Get(ctx context.Context, key keys.Key) (store.Item, bool, error) {
	c.gets++
	return c.Store.Get(ctx, key)
}

func (c *countingStore) Query(ctx context.Context, in store.QueryInput) (*store.Page, error) {
	c.queries = append(c.queries, in)
	return c.Store.Query(ctx, in)
}

// blockingStore never answers before the context is done.
type blockingStore struct{}

func (blockingStore) Get(ctx context.Context, _ keys.Key) (store.Item, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (blockingStore) Query(ctx context.Context, _ store.QueryInput) (*store.Page, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, keys.Key) (store.Item, bool, error) {
	return nil, false, f.err
}

func (f failingStore) Query(context.Context, store.QueryInput) (*store.Page, error) {
	return nil, f.err
}

func fixtures() []seed.Record {
	return []seed.Record{
		{
			"id":            "issue-001",
			"title":         "予算委員会の審議",
			"date":          "2024-01-10",
			"categories":    []any{"財政"},
			"keywords":      []any{"予算", map[string]any{"keyword": "給食", "priority": "low"}},
			"nameOfHouse":   "参議院",
			"nameOfMeeting": "予算委員会",
			"summary":       "予算案を審議した",
		},
		{
			"id":            "issue-002",
			"title":         "学校給食の無償化",
			"date":          "2024-02-01",
			"categories":    []any{"教育"},
			"keywords":      []any{map[string]any{"keyword": "給食", "priority": "high"}},
			"nameOfHouse":   "衆議院",
			"nameOfMeeting": "文部科学委員会",
			"summary":       map[string]any{"summary": "無償化を議論した", "based_on_orders": []any{1.0}},
			"dialogs": []any{
				map[string]any{"order": 1.0, "summary": "質問", "reaction": "質問"},
				map[string]any{"summary": "順序なし"},
			},
		},
		{
			"id":            "issue-003",
			"title":         "GX推進法",
			"date":          "2024-02-02T09:30:00Z",
			"categories":    []any{"Energy"},
			"keywords":      []any{"Tax"},
			"nameOfHouse":   "衆議院",
			"nameOfMeeting": "経済産業委員会",
		},
		{
			"id":         "issue-004",
			"title":      "本会議",
			"date":       "2024-03-15",
			"categories": []any{"教育", "財政"},
			"keywords":   []any{"給食"},
			"payloadKey": "articles/missing.json",
		},
	}
}

func newRepo(t *testing.T) (*repository.Repository, *countingStore) {
	t.Helper()
	schema := keys.DefaultSchema("")
	src := seed.NewRecordSource(fixtures(), schema)
	st := &countingStore{Store: memory.New(src, schema)}
	loader := payload.NewLoader(src, "article-payloads", time.Second, nil)
	return repository.New(st, loader, repository.Options{Schema: schema, Timeout: time.Second}), st
}

func ids(items []models.ArticleSummary) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}

func TestHeadlinesOrderAndPaging(t *testing.T) {
	repo, st := newRepo(t)
	ctx := context.Background()

	page, err := repo.Headlines(ctx, repository.HeadlineParams{})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-004", "issue-003", "issue-002", "issue-001"}, ids(page.Items))
	require.False(t, page.HasMore)
	require.Equal(t, 6, st.queries[0].Limit)
	require.False(t, st.queries[0].Forward)

	page, err = repo.Headlines(ctx, repository.HeadlineParams{Limit: 2, Sort: models.SortDateAsc})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-001", "issue-002"}, ids(page.Items))
	require.True(t, page.HasMore)

	page, err = repo.Headlines(ctx, repository.HeadlineParams{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-002", "issue-001"}, ids(page.Items))
	require.False(t, page.HasMore)

	page, err = repo.Headlines(ctx, repository.HeadlineParams{Limit: 3, Offset: 10})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.NotNil(t, page.Items)
}

func TestHeadlinesClamp(t *testing.T) {
	tests := []struct {
		name      string
		params    repository.HeadlineParams
		wantLimit int
	}{
		{name: "default", params: repository.HeadlineParams{}, wantLimit: 6},
		{name: "too large", params: repository.HeadlineParams{Limit: 500}, wantLimit: 50},
		{name: "negative", params: repository.HeadlineParams{Limit: -3}, wantLimit: 1},
		{name: "negative offset", params: repository.HeadlineParams{Limit: 4, Offset: -7}, wantLimit: 4},
		{name: "window cap", params: repository.HeadlineParams{Limit: 50, Offset: 80}, wantLimit: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, st := newRepo(t)
			page, err := repo.Headlines(context.Background(), tt.params)
			require.NoError(t, err)
			require.Equal(t, tt.wantLimit, st.queries[0].Limit)
			require.LessOrEqual(t, len(page.Items), clampLimit(tt.params.Limit))
		})
	}
}

func clampLimit(n int) int {
	if n == 0 {
		return 6
	}
	return max(1, min(n, 50))
}

func TestHeadlinesDatesAreMonotonic(t *testing.T) {
	repo, _ := newRepo(t)
	for _, sort := range []models.Sort{models.SortDateDesc, models.SortDateAsc} {
		for limit := 1; limit <= 5; limit++ {
			for offset := 0; offset <= 4; offset++ {
				page, err := repo.Headlines(context.Background(), repository.HeadlineParams{Limit: limit, Sort: sort, Offset: offset})
				require.NoError(t, err)
				require.LessOrEqual(t, len(page.Items), limit)
				for i := 1; i < len(page.Items); i++ {
					prev, cur := page.Items[i-1].Date, page.Items[i].Date
					if sort.Ascending() {
						require.LessOrEqual(t, prev, cur)
					} else {
						require.GreaterOrEqual(t, prev, cur)
					}
				}
			}
		}
	}
}

func TestSearchScenario(t *testing.T) {
	repo, st := newRepo(t)
	ctx := context.Background()

	got, err := repo.SearchArticles(ctx, models.SearchFilters{Words: []string{"給食"}, Categories: []string{"教育"}})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-004", "issue-002"}, ids(got))
	require.Equal(t, "KEYWORD#給食", st.queries[0].Partition)
	require.Empty(t, st.queries[0].Index)
	require.Equal(t, 20, st.queries[0].Limit)

	got, err = repo.SearchArticles(ctx, models.SearchFilters{
		Words:      []string{"給食"},
		Categories: []string{"教育"},
		DateEnd:    "2024-02-29",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "issue-002", got[0].ID)
	require.Equal(t, []models.Keyword{{Keyword: "給食", Priority: models.PriorityHigh}}, got[0].Keywords)

	got, err = repo.SearchArticles(ctx, models.SearchFilters{Categories: []string{"環境"}})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSearchKeywordIsCaseInsensitive(t *testing.T) {
	repo, _ := newRepo(t)

	for _, word := range []string{"tax", "TAX", " Tax "} {
		got, err := repo.SearchArticles(context.Background(), models.SearchFilters{Words: []string{word}})
		require.NoError(t, err)
		require.Equal(t, []string{"issue-003"}, ids(got), word)
	}
}

func TestSearchUsesFirstTermOnly(t *testing.T) {
	repo, st := newRepo(t)

	got, err := repo.SearchArticles(context.Background(), models.SearchFilters{Words: []string{"tax", "給食"}})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-003"}, ids(got))
	require.Len(t, st.queries, 1)

	_, err = repo.SearchArticles(context.Background(), models.SearchFilters{Categories: []string{"財政", "教育"}, Limit: 500})
	require.NoError(t, err)
	require.Equal(t, "CATEGORY#財政", st.queries[1].Partition)
	require.Equal(t, 100, st.queries[1].Limit)
}

func TestSearchCategoryFiltering(t *testing.T) {
	repo, _ := newRepo(t)

	// the partition is case sensitive, the in-memory filter is not
	got, err := repo.SearchArticles(context.Background(), models.SearchFilters{Categories: []string{"energy"}})
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = repo.SearchArticles(context.Background(), models.SearchFilters{Words: []string{"tax"}, Categories: []string{"ENERGY"}})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-003"}, ids(got))
}

func TestSearchDateRangeIsInclusive(t *testing.T) {
	repo, st := newRepo(t)
	ctx := context.Background()

	got, err := repo.SearchArticles(ctx, models.SearchFilters{DateStart: "2024-02-01", DateEnd: "2024-02-02"})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-003", "issue-002"}, ids(got))
	require.Equal(t, keys.DefaultDateIndex, st.queries[0].Index)

	got, err = repo.SearchArticles(ctx, models.SearchFilters{DateEnd: "2024-02-01", Sort: models.SortDateAsc})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-001", "issue-002"}, ids(got))

	got, err = repo.SearchArticles(ctx, models.SearchFilters{DateStart: "2024-02-03"})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-004"}, ids(got))

	got, err = repo.SearchArticles(ctx, models.SearchFilters{Houses: []string{"衆議院"}, Meetings: []string{"経済産業委員会"}})
	require.NoError(t, err)
	require.Equal(t, []string{"issue-003"}, ids(got))
}

func TestArticle(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	a, err := repo.Article(ctx, "issue-002")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, "学校給食の無償化", a.Title)
	require.Equal(t, "2024-02", a.Month)
	require.Equal(t, models.SummaryBlock{BasedOnOrders: []int{1}, Summary: "無償化を議論した"}, a.Summary)
	require.Equal(t, []models.Dialog{{Order: 1, Summary: "質問", Reaction: models.ReactionQuestion}}, a.Dialogs)

	// a dangling payload reference degrades to the inline fields
	a, err = repo.Article(ctx, "issue-004")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.True(t, a.Payload.Empty())

	a, err = repo.Article(ctx, "missing-id")
	require.NoError(t, err)
	require.Nil(t, a)

	a, err = repo.Article(ctx, "  ")
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestSuggestions(t *testing.T) {
	repo, st := newRepo(t)
	ctx := context.Background()

	for _, blank := range []string{"", "   "} {
		got, err := repo.Suggestions(ctx, blank, 5, models.SearchFilters{})
		require.NoError(t, err)
		require.Equal(t, []string{}, got)
	}
	require.Empty(t, st.queries)
	require.Zero(t, st.gets)

	got, err := repo.Suggestions(ctx, "給食", 0, models.SearchFilters{})
	require.NoError(t, err)
	require.Equal(t, []string{"本会議", "給食", "学校給食の無償化", "予算委員会の審議", "予算"}, got)
	require.Equal(t, "KEYWORD#給食", st.queries[0].Partition)

	got, err = repo.Suggestions(ctx, "給食", 2, models.SearchFilters{})
	require.NoError(t, err)
	require.Equal(t, []string{"本会議", "給食"}, got)

	got, err = repo.Suggestions(ctx, "給食", 10, models.SearchFilters{Categories: []string{"財政"}, DateEnd: "2024-01-31"})
	require.NoError(t, err)
	require.Equal(t, []string{"予算委員会の審議", "予算", "給食"}, got)

	got, err = repo.Suggestions(ctx, "給", 10, models.SearchFilters{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadsAreIdempotent(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	first, err := repo.SearchArticles(ctx, models.SearchFilters{Words: []string{"給食"}})
	require.NoError(t, err)
	second, err := repo.SearchArticles(ctx, models.SearchFilters{Words: []string{"給食"}})
	require.NoError(t, err)
	require.Equal(t, first, second)

	a1, err := repo.Article(ctx, "issue-002")
	require.NoError(t, err)
	a2, err := repo.Article(ctx, "issue-002")
	require.NoError(t, err)
	require.Equal(t, a1, a2)
}

func TestStorageErrorsPropagate(t *testing.T) {
	repo := repository.New(failingStore{err: errors.New("access denied")}, nil, repository.Options{})
	ctx := context.Background()

	_, err := repo.Headlines(ctx, repository.HeadlineParams{})
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = repo.SearchArticles(ctx, models.SearchFilters{Words: []string{"x"}})
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = repo.Article(ctx, "issue-002")
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = repo.Suggestions(ctx, "x", 1, models.SearchFilters{})
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestTimeout(t *testing.T) {
	repo := repository.New(blockingStore{}, nil, repository.Options{Timeout: 10 * time.Millisecond})

	_, err := repo.Headlines(context.Background(), repository.HeadlineParams{})
	require.ErrorIs(t, err, store.ErrTimeout)
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = repo.Article(context.Background(), "issue-002")
	require.ErrorIs(t, err, store.ErrTimeout)
}

type slowObjects struct{}

func (slowObjects) GetObject(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestArticleWithSlowPayload(t *testing.T) {
	schema := keys.DefaultSchema("")
	src := seed.NewRecordSource(fixtures(), schema)
	repo := repository.New(memory.New(src, schema),
		payload.NewLoader(slowObjects{}, "article-payloads", 20*time.Millisecond, nil),
		repository.Options{Schema: schema, Timeout: time.Second},
	)

	start := time.Now()
	a, err := repo.Article(context.Background(), "issue-002")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, "学校給食の無償化", a.Title)
	require.True(t, a.Payload.Empty())
	require.Less(t, time.Since(start), time.Second)
}

func TestFilterArticles(t *testing.T) {
	items := []models.ArticleSummary{
		{ID: "a", Date: "2024-02-01T23:59:59.999Z", Categories: []string{"Education"}},
		{ID: "b", Date: "2024-02-02T00:00:00Z", Categories: []string{"education"}},
		{ID: "c", Date: "not a date", Categories: []string{"EDUCATION"}},
		{ID: "d", Date: "2024-01-31", Categories: []string{"環境"}},
	}

	got := repository.FilterArticles(items, models.SearchFilters{Categories: []string{"eDucation"}})
	require.Equal(t, []string{"a", "b", "c"}, ids(got))

	got = repository.FilterArticles(items, models.SearchFilters{DateStart: "2024-02-01", DateEnd: "2024-02-01"})
	require.Equal(t, []string{"a"}, ids(got))

	got = repository.FilterArticles(items, models.SearchFilters{DateStart: "garbage"})
	require.Len(t, got, 4)

	require.Empty(t, repository.FilterArticles(nil, models.SearchFilters{}))
}

func ExampleFilterArticles() {
	items := []models.ArticleSummary{
		{ID: "issue-001", Date: "2024-01-10", NameOfHouse: "参議院"},
		{ID: "issue-002", Date: "2024-02-01", NameOfHouse: "衆議院"},
	}
	for _, a := range repository.FilterArticles(items, models.SearchFilters{Houses: []string{"衆議院"}}) {
		fmt.Println(a.ID)
	}
	// Output: issue-002
}
