// Package seed loads article fixtures for local development and tests.
//
// A Source reads its fixtures lazily and keeps the first successful load. It
// is injected wherever it is needed: the memory store reads items from it and
// the payload loader reads blobs from it. Nothing is cached at package level.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

// ErrUnsupportedFormat is returned for fixture files that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported seed format")

// Dataset is the fanned-out content of a Source.
type Dataset struct {
	Articles []Fanout
	objects  map[string][]byte
}

// Items returns every table item of the dataset.
func (d *Dataset) Items() []store.Item {
	var out []store.Item
	for _, a := range d.Articles {
		out = append(out, a.Items()...)
	}
	return out
}

// Source is a load-once fixture data source. A failed load is not
// remembered, so the next call reads the fixtures again.
type Source struct {
	read   func() ([]Record, error)
	schema keys.Schema

	mu   sync.Mutex
	data *Dataset
}

// NewSource reads fixtures from path, a .json/.yaml/.yml file or a directory of them.
func NewSource(path string, schema keys.Schema) *Source {
	return &Source{read: func() ([]Record, error) { return readPath(path) }, schema: schema}
}

// NewRecordSource serves records that are already in memory.
func NewRecordSource(records []Record, schema keys.Schema) *Source {
	return &Source{read: func() ([]Record, error) { return records, nil }, schema: schema}
}

// Load reads and fans out the fixtures on first use. Later calls return the
// same dataset.
func (s *Source) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		return s.data, nil
	}
	d, err := s.build()
	if err != nil {
		return nil, err
	}
	s.data = d
	return d, nil
}

func (s *Source) build() (*Dataset, error) {
	records, err := s.read()
	if err != nil {
		return nil, err
	}
	d := &Dataset{objects: map[string][]byte{}}
	for i, rec := range records {
		f, err := Build(rec, s.schema)
		if err != nil {
			if errors.Is(err, ErrMissingID) {
				continue
			}
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
		d.Articles = append(d.Articles, f)
		if f.Payload != nil {
			d.objects[f.PayloadKey] = f.Payload
		}
	}
	return d, nil
}

// Items implements the memory store's loader.
func (s *Source) Items(ctx context.Context) ([]store.Item, error) {
	d, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return d.Items(), nil
}

// GetObject serves the offloaded payload blobs of the dataset. The bucket is ignored.
func (s *Source) GetObject(ctx context.Context, _ string, key string) ([]byte, error) {
	d, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	data, ok := d.objects[key]
	if !ok {
		return nil, fmt.Errorf("seed object %s: %w", key, payload.ErrObjectNotFound)
	}
	return data, nil
}

func readPath(path string) ([]Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat seed path: %w", err)
	}
	if !info.IsDir() {
		return readFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read seed dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Record
	for _, name := range names {
		recs, err := readFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func readFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records(normalize(doc)), nil
}

// records accepts a bare list of articles or an {"articles": [...]} document.
func records(doc any) []Record {
	if m, ok := doc.(map[string]any); ok {
		doc = m["articles"]
	}
	list, _ := doc.([]any)
	out := make([]Record, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// normalize brings yaml.v3 output into the JSON value space.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case int:
		return float64(t)
	}
	return v
}
