// Package mapper normalizes stored records into canonical article shapes.
//
// Stored records were written over several schema revisions: keywords,
// participants and summaries appear either as bare strings or as objects.
// Every union-shaped field has exactly one decode function here. Mapping never
// fails: invalid list entries are dropped and only records without an identity
// are rejected as a whole.
package mapper

import (
	"strings"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/models"
)

// Attribute names of the payload reference on an article record.
const (
	AttrPayloadKey = "payloadKey"
	AttrPayloadURL = "payloadUrl"
	AttrArticleID  = "articleId"
)

// ArticleSummary maps an article record (PK=A#<id>). The id comes from the
// partition key, or from an id attribute on records that predate it.
func ArticleSummary(item map[string]any) (models.ArticleSummary, bool) {
	id, ok := keys.ArticleIDFromPK(str(item[keys.AttrPK]))
	if !ok {
		id = strings.TrimSpace(str(item["id"]))
	}
	if id == "" {
		return models.ArticleSummary{}, false
	}
	return summaryFields(id, item), true
}

// IndexRecord maps a keyword or category index record to the summary it
// duplicates. The id comes from articleId or from the sort key suffix.
func IndexRecord(item map[string]any) (models.ArticleSummary, bool) {
	id := strings.TrimSpace(str(first(item, AttrArticleID, "id")))
	if id == "" {
		id, _ = keys.ArticleIDFromSortKey(str(item[keys.AttrSK]))
	}
	if id == "" {
		return models.ArticleSummary{}, false
	}
	return summaryFields(id, item), true
}

// Article maps an article record including any payload fields stored inline.
func Article(item map[string]any) (models.Article, bool) {
	summary, ok := ArticleSummary(item)
	if !ok {
		return models.Article{}, false
	}
	return models.Article{ArticleSummary: summary, Payload: Payload(item)}, true
}

func summaryFields(id string, item map[string]any) models.ArticleSummary {
	date := strings.TrimSpace(str(item[keys.AttrDate]))
	month := strings.TrimSpace(str(item["month"]))
	if month == "" && len(date) >= 7 {
		month = date[:7]
	}
	session, _ := Int(item["session"])
	return models.ArticleSummary{
		ID:            id,
		Title:         str(item["title"]),
		Description:   str(item["description"]),
		Date:          date,
		Month:         month,
		Categories:    Strings(item["categories"]),
		Participants:  Participants(item["participants"]),
		Keywords:      Keywords(item["keywords"]),
		ImageKind:     ImageKind(item["imageKind"]),
		Session:       session,
		NameOfHouse:   str(item["nameOfHouse"]),
		NameOfMeeting: str(item["nameOfMeeting"]),
		Terms:         Terms(item["terms"]),
	}
}

// Payload maps the heavy article fields, accepting snake_case and camelCase
// spellings.
func Payload(m map[string]any) models.Payload {
	return models.Payload{
		Summary:             Summary(m["summary"], ""),
		SoftLanguageSummary: Summary(first(m, "soft_language_summary", "softLanguageSummary"), ""),
		MiddleSummaries:     Summaries(first(m, "middle_summary", "middle_summaries", "middleSummaries")),
		Dialogs:             Dialogs(m["dialogs"]),
		KeyPoints:           Strings(first(m, "key_points", "keyPoints")),
	}
}

// Merge overlays the non-empty fields of blob onto inline.
func Merge(inline, blob models.Payload) models.Payload {
	out := inline
	if blob.Summary.Summary != "" {
		out.Summary = blob.Summary
	}
	if blob.SoftLanguageSummary.Summary != "" {
		out.SoftLanguageSummary = blob.SoftLanguageSummary
	}
	if len(blob.MiddleSummaries) > 0 {
		out.MiddleSummaries = blob.MiddleSummaries
	}
	if len(blob.Dialogs) > 0 {
		out.Dialogs = blob.Dialogs
	}
	if len(blob.KeyPoints) > 0 {
		out.KeyPoints = blob.KeyPoints
	}
	return out
}

// PayloadRef returns the explicit object key and the URL stored on an article
// record. Either may be empty.
func PayloadRef(item map[string]any) (key, url string) {
	key = strings.TrimSpace(str(first(item, AttrPayloadKey, "payload_key")))
	url = strings.TrimSpace(str(first(item, AttrPayloadURL, "payload_url")))
	return key, url
}
