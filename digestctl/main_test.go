package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/diet-digest/backend/internal/backend"
	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/logger"
	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/repository"
	"github.com/DeafMist/diet-digest/backend/internal/seed"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

const fixtures = `[
  {"id": "issue-001", "title": "予算委員会の審議", "date": "2024-01-10",
   "categories": ["財政"], "keywords": ["予算", "給食"], "nameOfHouse": "参議院"},
  {"id": "issue-002", "title": "学校給食の無償化", "date": "2024-02-01",
   "categories": ["教育"], "keywords": [{"keyword": "給食", "priority": "high"}],
   "nameOfHouse": "衆議院", "summary": "無償化を議論した"},
  {"id": "issue-004", "title": "本会議", "date": "2024-03-15",
   "categories": ["教育", "財政"], "keywords": ["給食"]}
]`

func writeFixtures(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "articles.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtures), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SEED_PATH", writeFixtures(t))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHeadlinesCommand(t *testing.T) {
	out, err := execute(t, "headlines", "--limit", "2")
	require.NoError(t, err)

	var page repository.Headlines
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Items, 2)
	require.Equal(t, "issue-004", page.Items[0].ID)
	require.Equal(t, "issue-002", page.Items[1].ID)
	require.True(t, page.HasMore)
}

func TestSearchCommand(t *testing.T) {
	out, err := execute(t, "search", "給食", "--categories", "教育", "--to", "2024-02-29")
	require.NoError(t, err)

	var items []models.ArticleSummary
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	require.Equal(t, "issue-002", items[0].ID)

	out, err = execute(t, "search", "--words", "環境")
	require.NoError(t, err)
	require.JSONEq(t, `[]`, out)
}

func TestArticleCommand(t *testing.T) {
	out, err := execute(t, "article", "issue-002")
	require.NoError(t, err)

	var article models.Article
	require.NoError(t, json.Unmarshal([]byte(out), &article))
	require.Equal(t, "学校給食の無償化", article.Title)
	require.Equal(t, "無償化を議論した", article.Summary.Summary)

	_, err = execute(t, "article", "issue-999")
	require.ErrorContains(t, err, "not found")
}

func TestSuggestCommand(t *testing.T) {
	out, err := execute(t, "suggest", "給食", "--limit", "3")
	require.NoError(t, err)

	var got []string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, []string{"本会議", "給食", "学校給食の無償化"}, got)
}

func TestSeedCommandRejectsMemory(t *testing.T) {
	_, err := execute(t, "seed")
	require.ErrorIs(t, err, ErrReadOnly)
}

type recordingWriter struct {
	mu    sync.Mutex
	items []store.Item
}

func (w *recordingWriter) PutItems(_ context.Context, items []store.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, items...)
	return nil
}

func (w *recordingWriter) pks() []string {
	out := make([]string, 0, len(w.items))
	for _, item := range w.items {
		out = append(out, item.String(keys.AttrPK)+"|"+item.String(keys.AttrSK)[:1])
	}
	sort.Strings(out)
	return out
}

func TestRunSeed(t *testing.T) {
	schema := keys.DefaultSchema("")
	writer := &recordingWriter{}
	objects := payload.NewDirGetter(t.TempDir())
	b := &backend.Backend{
		Name:    "stub",
		Schema:  schema,
		Writer:  writer,
		Objects: objects,
		Putter:  objects,
		Bucket:  "article-payloads",
	}

	stats, err := runSeed(context.Background(), b, seed.NewSource(writeFixtures(t), schema),
		seedOptions{workers: 2, prepare: true}, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Articles)
	require.Equal(t, int64(1), stats.Payloads)
	require.Equal(t, int64(len(writer.items)), stats.Items)

	require.Equal(t, []string{
		"A#issue-001|M",
		"A#issue-002|M",
		"A#issue-004|M",
		"CATEGORY#教育|Y",
		"CATEGORY#教育|Y",
		"CATEGORY#財政|Y",
		"CATEGORY#財政|Y",
		"KEYWORD#予算|Y",
		"KEYWORD#給食|Y",
		"KEYWORD#給食|Y",
		"KEYWORD#給食|Y",
	}, writer.pks())

	data, err := objects.GetObject(context.Background(), "article-payloads", seed.PayloadKeyFor("issue-002"))
	require.NoError(t, err)
	require.Contains(t, string(data), "無償化を議論した")
}

func TestRunSeedErrors(t *testing.T) {
	schema := keys.DefaultSchema("")
	src := seed.NewSource(writeFixtures(t), schema)

	_, err := runSeed(context.Background(), &backend.Backend{Name: "memory", Schema: schema}, src, seedOptions{}, logger.Discard())
	require.ErrorIs(t, err, ErrReadOnly)

	_, err = runSeed(context.Background(), &backend.Backend{Name: "stub", Schema: schema, Writer: &recordingWriter{}}, src,
		seedOptions{reset: true}, logger.Discard())
	require.ErrorContains(t, err, "elasticsearch")

	// issue-002 has an offloaded payload but nowhere to put it
	_, err = runSeed(context.Background(), &backend.Backend{Name: "stub", Schema: schema, Writer: &recordingWriter{}}, src,
		seedOptions{workers: 1}, logger.Discard())
	require.ErrorContains(t, err, "issue-002")

	missing := seed.NewSource(filepath.Join(t.TempDir(), "none.json"), schema)
	_, err = runSeed(context.Background(), &backend.Backend{Name: "stub", Schema: schema, Writer: &recordingWriter{}}, missing,
		seedOptions{}, logger.Discard())
	require.ErrorContains(t, err, "load fixtures")
}
