// Package keys builds the partition and sort keys of the single-table article layout.
//
// Layout:
//
//	article        PK=A#<id>                 SK=META
//	by date        entityType=ARTICLE        date=<ISO date>       (index ArticlesByDate)
//	keyword index  PK=KEYWORD#<lower(kw)>    SK=Y#<yyyy>#M#<mm>#D#<ISO>#A#<id>
//	category index PK=CATEGORY#<category>    SK=Y#<yyyy>#M#<mm>#D#<ISO>#A#<id>
//
// Keywords are lower-cased in their partition key, categories keep their case.
package keys

import (
	"fmt"
	"strings"
	"time"
)

const (
	ArticlePrefix  = "A#"
	KeywordPrefix  = "KEYWORD#"
	CategoryPrefix = "CATEGORY#"

	// MetaSort is the sort key of every article record.
	MetaSort = "META"
	// ArticleEntity is the date index partition shared by all articles.
	ArticleEntity = "ARTICLE"
)

// Key addresses one item of the base table.
type Key struct {
	PK string
	SK string
}

// Article returns the primary key of an article record.
func Article(id string) Key {
	return Key{PK: ArticlePrefix + id, SK: MetaSort}
}

// KeywordPartition returns the index partition for a keyword. The keyword is
// trimmed and lower-cased so lookups are case-insensitive.
func KeywordPartition(keyword string) string {
	return KeywordPrefix + strings.ToLower(strings.TrimSpace(keyword))
}

// CategoryPartition returns the index partition for a category. Case is preserved.
func CategoryPartition(category string) string {
	return CategoryPrefix + strings.TrimSpace(category)
}

// IndexSort builds the composite sort key of a keyword or category index record.
func IndexSort(ts time.Time, id string) string {
	ts = ts.UTC()
	return fmt.Sprintf("Y#%04d#M#%02d#D#%s#A#%s", ts.Year(), int(ts.Month()), ts.Format("2006-01-02T15:04:05.000Z"), id)
}

// ArticleIDFromPK extracts the article id from an A#<id> partition key.
func ArticleIDFromPK(pk string) (string, bool) {
	id, ok := strings.CutPrefix(pk, ArticlePrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ArticleIDFromSortKey extracts the trailing article id from an index sort key.
func ArticleIDFromSortKey(sk string) (string, bool) {
	i := strings.LastIndex(sk, "#A#")
	if i < 0 {
		return "", false
	}
	id := sk[i+len("#A#"):]
	if id == "" {
		return "", false
	}
	return id, true
}
