package models

// Sort orders listings and search results by article date.
type Sort string

const (
	SortDateDesc Sort = "date_desc"
	SortDateAsc  Sort = "date_asc"
)

// ParseSort maps free-form input to a Sort, defaulting to SortDateDesc.
func ParseSort(raw string) Sort {
	if Sort(raw) == SortDateAsc {
		return SortDateAsc
	}
	return SortDateDesc
}

// Ascending reports whether results are returned oldest first.
func (s Sort) Ascending() bool {
	return s == SortDateAsc
}

// SearchFilters narrows a search. It is never persisted.
type SearchFilters struct {
	Words      []string `json:"words,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Houses     []string `json:"houses,omitempty"`
	Meetings   []string `json:"meetings,omitempty"`
	DateStart  string   `json:"dateStart,omitempty"`
	DateEnd    string   `json:"dateEnd,omitempty"`
	Sort       Sort     `json:"sort,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}
