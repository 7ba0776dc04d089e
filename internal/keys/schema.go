package keys

import "fmt"

// Attribute names shared by every backend.
const (
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrEntityType = "entityType"
	AttrDate       = "date"
)

// DefaultDateIndex is the name of the articles-by-date secondary index.
const DefaultDateIndex = "ArticlesByDate"

// IndexSpec names the partition and sort attributes of the base table or of a
// secondary index. The base table has an empty Name.
type IndexSpec struct {
	Name          string
	PartitionAttr string
	SortAttr      string
}

// Schema describes the base table and its secondary indexes.
type Schema struct {
	Table     IndexSpec
	DateIndex string
	Indexes   map[string]IndexSpec
}

// DefaultSchema returns the schema with the date index registered under the given name.
// An empty name falls back to DefaultDateIndex.
func DefaultSchema(dateIndex string) Schema {
	if dateIndex == "" {
		dateIndex = DefaultDateIndex
	}
	return Schema{
		Table:     IndexSpec{PartitionAttr: AttrPK, SortAttr: AttrSK},
		DateIndex: dateIndex,
		Indexes: map[string]IndexSpec{
			dateIndex: {Name: dateIndex, PartitionAttr: AttrEntityType, SortAttr: AttrDate},
		},
	}
}

// Lookup resolves an index name. The empty name is the base table.
func (s Schema) Lookup(index string) (IndexSpec, error) {
	if index == "" {
		return s.Table, nil
	}
	spec, ok := s.Indexes[index]
	if !ok {
		return IndexSpec{}, fmt.Errorf("unknown index %q", index)
	}
	return spec, nil
}
