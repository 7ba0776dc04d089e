package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/mapper"
	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

// ErrMissingID is returned for a record without an id.
var ErrMissingID = errors.New("record has no id")

// Record is one article as produced by the summarization pipeline.
type Record map[string]any

// payloadFields are offloaded to the payload bucket instead of the article record.
var payloadFields = []string{
	"summary", "soft_language_summary", "softLanguageSummary",
	"middle_summary", "middle_summaries", "middleSummaries",
	"dialogs", "key_points", "keyPoints",
}

// summaryFields are duplicated onto every index record.
var summaryFields = []string{
	"title", "description", keys.AttrDate, "month", "categories", "participants",
	"keywords", "imageKind", "session", "nameOfHouse", "nameOfMeeting", "terms",
}

// Fanout is everything one record turns into: the article item, its keyword
// and category index items, and the offloaded payload blob when it has one.
type Fanout struct {
	ID         string
	Article    store.Item
	Index      []store.Item
	PayloadKey string
	Payload    []byte
}

// Items returns the article item followed by its index items.
func (f Fanout) Items() []store.Item {
	out := make([]store.Item, 0, 1+len(f.Index))
	out = append(out, f.Article)
	return append(out, f.Index...)
}

// PayloadKeyFor is the object key a record's payload is written under.
func PayloadKeyFor(id string) string {
	return "articles/" + id + ".json"
}

// Build fans a record out into table items following schema.
func Build(rec Record, schema keys.Schema) (Fanout, error) {
	id := strings.TrimSpace(stringOf(rec["id"]))
	if id == "" {
		return Fanout{}, ErrMissingID
	}
	dateIndex, err := schema.Lookup(schema.DateIndex)
	if err != nil {
		return Fanout{}, fmt.Errorf("build %s: %w", id, err)
	}

	article := store.Item{}
	blob := map[string]any{}
	for k, v := range rec {
		if isPayloadField(k) {
			blob[k] = v
			continue
		}
		article[k] = v
	}
	date := stringOf(rec[keys.AttrDate])
	key := keys.Article(id)
	article[keys.AttrPK] = key.PK
	article[keys.AttrSK] = key.SK
	delete(article, dateIndex.PartitionAttr)
	delete(article, dateIndex.SortAttr)
	if date != "" {
		// undated articles stay point-gettable but out of the date index
		article[dateIndex.PartitionAttr] = keys.ArticleEntity
		article[dateIndex.SortAttr] = date
	}

	out := Fanout{ID: id, Article: article}

	_, hasKey := rec[mapper.AttrPayloadKey]
	_, hasURL := rec[mapper.AttrPayloadURL]
	if len(blob) > 0 && !hasKey && !hasURL {
		data, err := json.Marshal(blob)
		if err != nil {
			return Fanout{}, fmt.Errorf("marshal payload %s: %w", id, err)
		}
		out.PayloadKey = PayloadKeyFor(id)
		out.Payload = data
		article[mapper.AttrPayloadKey] = out.PayloadKey
	} else {
		// nothing to offload, keep legacy inline payload fields readable
		for k, v := range blob {
			article[k] = v
		}
	}

	ts, _ := models.ParseDate(date)
	sk := keys.IndexSort(ts, id)

	seen := map[string]struct{}{}
	add := func(pk string) {
		if _, dup := seen[pk]; dup {
			return
		}
		seen[pk] = struct{}{}
		item := store.Item{
			keys.AttrPK:          pk,
			keys.AttrSK:          sk,
			mapper.AttrArticleID: id,
		}
		for _, f := range summaryFields {
			if v, ok := rec[f]; ok {
				item[f] = v
			}
		}
		out.Index = append(out.Index, item)
	}
	for _, kw := range mapper.Keywords(rec["keywords"]) {
		add(keys.KeywordPartition(kw.Keyword))
	}
	for _, c := range mapper.Strings(rec["categories"]) {
		add(keys.CategoryPartition(c))
	}
	return out, nil
}

func isPayloadField(name string) bool {
	for _, f := range payloadFields {
		if f == name {
			return true
		}
	}
	return false
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
