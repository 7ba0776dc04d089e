// Package elasticsearch implements store.Store on an Elasticsearch index.
//
// Every table item becomes one document:
//
//	{"keys": {"PK": ..., "SK": ..., "entityType": ..., "date": ...}, "item": {...}}
//
// The key attributes of the schema are copied under "keys" as keyword fields so
// partitions can be selected with a term query and ordered with a sort. The item
// itself is stored but not indexed, which keeps heterogeneous attribute shapes
// out of the mapping.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

// Client wraps go-elasticsearch and serves the article table from one index.
type Client struct {
	es     *elasticsearch.Client
	index  string
	schema keys.Schema
	log    *slog.Logger
}

type document struct {
	Keys map[string]string `json:"keys"`
	Item store.Item        `json:"item"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, schema keys.Schema, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, schema: schema, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return store.Unavailable("ping elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return store.Unavailable("ping elasticsearch", fmt.Errorf("status %s", res.Status()))
	}

	return nil
}

// EnsureIndex creates the index with its key mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return store.Unavailable("check index", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"keys": map[string]any{
					"type":    "object",
					"dynamic": true,
				},
				"item": map[string]any{
					"type":    "object",
					"enabled": false,
				},
			},
			"dynamic_templates": []map[string]any{
				{"keys_as_keywords": map[string]any{
					"path_match": "keys.*",
					"mapping":    map[string]any{"type": "keyword"},
				}},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal index body: %w", err)
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return store.Unavailable("create index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(data)))
	}
	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// IndexItem writes one table item.
func (c *Client) IndexItem(ctx context.Context, item store.Item) error {
	doc, id, err := c.document(item)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return store.Unavailable("index doc", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// PutItems writes items with one bulk request and refreshes the index.
func (c *Client) PutItems(ctx context.Context, items []store.Item) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		doc, id, err := c.document(item)
		if err != nil {
			return err
		}
		if err := enc.Encode(map[string]any{"index": map[string]any{"_index": c.index, "_id": id}}); err != nil {
			return fmt.Errorf("marshal bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("marshal doc: %w", err)
		}
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return store.Unavailable("bulk index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk index failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		return fmt.Errorf("bulk index reported item errors")
	}
	return nil
}

// Get implements store.Store.
func (c *Client) Get(ctx context.Context, key keys.Key) (store.Item, bool, error) {
	res, err := c.es.Get(c.index, docID(key.PK, key.SK), c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, false, store.Unavailable("get doc", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, false, store.Unavailable("get doc", fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}

	var parsed struct {
		Found  bool     `json:"found"`
		Source document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found || parsed.Source.Item == nil {
		return nil, false, nil
	}
	return parsed.Source.Item, true, nil
}

// Query implements store.Store. The cursor is the number of hits returned so
// far, set only when the partition holds more.
func (c *Client) Query(ctx context.Context, in store.QueryInput) (*store.Page, error) {
	spec, err := c.schema.Lookup(in.Index)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	size := in.Limit
	if size <= 0 {
		size = 10000
	}
	order := "desc"
	if in.Forward {
		order = "asc"
	}
	partitionField := "keys." + spec.PartitionAttr
	sortField := "keys." + spec.SortAttr

	body := map[string]any{
		"size":             size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{partitionField: in.Partition}},
					{"exists": map[string]any{"field": sortField}},
				},
			},
		},
		"sort": []map[string]any{
			{sortField: map[string]any{"order": order, "unmapped_type": "keyword"}},
			{"keys." + c.schema.Table.PartitionAttr: map[string]any{"order": "asc", "unmapped_type": "keyword"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, store.Unavailable("search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, store.Unavailable("search", fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	page := &store.Page{Items: make([]store.Item, 0, len(parsed.Hits.Hits))}
	for _, hit := range parsed.Hits.Hits {
		if hit.Source.Item == nil {
			continue
		}
		page.Items = append(page.Items, hit.Source.Item)
	}
	if returned := int64(len(parsed.Hits.Hits)); parsed.Hits.Total.Value > returned {
		page.Cursor = strconv.FormatInt(returned, 10)
	}

	return page, nil
}

// Purge removes every document using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) Purge(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"match_all": map[string]any{},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
			c.es.DeleteByQuery.WithMaxDocs(batchSize),
		)
		if err != nil {
			return totalDeleted, store.Unavailable("delete by query", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return store.Unavailable("cluster health", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return store.Unavailable("cluster health", fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}
	return nil
}

func (c *Client) document(item store.Item) (document, string, error) {
	pk, sk := item.String(c.schema.Table.PartitionAttr), item.String(c.schema.Table.SortAttr)
	if pk == "" || sk == "" {
		return document{}, "", fmt.Errorf("item has no primary key")
	}

	doc := document{Keys: map[string]string{}, Item: item}
	specs := []keys.IndexSpec{c.schema.Table}
	for _, spec := range c.schema.Indexes {
		specs = append(specs, spec)
	}
	for _, spec := range specs {
		for _, attr := range []string{spec.PartitionAttr, spec.SortAttr} {
			if v, ok := item[attr].(string); ok {
				doc.Keys[attr] = v
			}
		}
	}
	return doc, docID(pk, sk), nil
}

// docID encodes the primary key so it can travel in a URL path.
func docID(pk, sk string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(pk + "|" + sk))
}
