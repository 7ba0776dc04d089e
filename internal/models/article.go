package models

// ImageKind classifies the source record of a proceeding.
type ImageKind string

const (
	ImageKindMinutes    ImageKind = "会議録"
	ImageKindContents   ImageKind = "目次"
	ImageKindIndex      ImageKind = "索引"
	ImageKindAppendix   ImageKind = "附録"
	ImageKindSupplement ImageKind = "追録"
)

// DefaultImageKind is used when a record carries no valid kind.
const DefaultImageKind = ImageKindMinutes

// Valid reports whether k is one of the known kinds.
func (k ImageKind) Valid() bool {
	switch k {
	case ImageKindMinutes, ImageKindContents, ImageKindIndex, ImageKindAppendix, ImageKindSupplement:
		return true
	}
	return false
}

// Reaction is the stance of a single dialog turn.
type Reaction string

const (
	ReactionAgree    Reaction = "賛成"
	ReactionOppose   Reaction = "反対"
	ReactionQuestion Reaction = "質問"
	ReactionAnswer   Reaction = "回答"
	ReactionNeutral  Reaction = "中立"
)

// Valid reports whether r is one of the known reactions.
func (r Reaction) Valid() bool {
	switch r {
	case ReactionAgree, ReactionOppose, ReactionQuestion, ReactionAnswer, ReactionNeutral:
		return true
	}
	return false
}

// Priority ranks a keyword within an article.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Keyword is an indexed search term attached to an article.
type Keyword struct {
	Keyword  string   `json:"keyword"`
	Priority Priority `json:"priority"`
}

// Participant is a speaker appearing in the proceeding.
type Participant struct {
	Name          string `json:"name"`
	Position      string `json:"position,omitempty"`
	Summary       string `json:"summary"`
	BasedOnOrders []int  `json:"based_on_orders,omitempty"`
}

// Term is a glossary entry explaining jargon used in the article.
type Term struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// SummaryBlock is a summary together with the dialog orders it was derived from.
type SummaryBlock struct {
	BasedOnOrders []int  `json:"based_on_orders"`
	Summary       string `json:"summary"`
}

// Dialog is one summarized speech turn.
type Dialog struct {
	Order        int      `json:"order"`
	Summary      string   `json:"summary"`
	SoftLanguage string   `json:"soft_language"`
	Reaction     Reaction `json:"reaction"`
	OriginalText string   `json:"original_text,omitempty"`
	Speaker      string   `json:"speaker,omitempty"`
	Position     string   `json:"position,omitempty"`
}

// ArticleSummary holds every article field that is available without the
// offloaded payload. Listings and search results use it.
type ArticleSummary struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Date          string        `json:"date"`
	Month         string        `json:"month"`
	Categories    []string      `json:"categories"`
	Participants  []Participant `json:"participants"`
	Keywords      []Keyword     `json:"keywords"`
	ImageKind     ImageKind     `json:"imageKind"`
	Session       int           `json:"session"`
	NameOfHouse   string        `json:"nameOfHouse"`
	NameOfMeeting string        `json:"nameOfMeeting"`
	Terms         []Term        `json:"terms"`
}

// Payload is the heavy part of an article, stored apart from its metadata.
type Payload struct {
	Summary             SummaryBlock   `json:"summary"`
	SoftLanguageSummary SummaryBlock   `json:"soft_language_summary"`
	MiddleSummaries     []SummaryBlock `json:"middle_summary"`
	Dialogs             []Dialog       `json:"dialogs"`
	KeyPoints           []string       `json:"key_points,omitempty"`
}

// Empty reports whether no payload field carries content.
func (p Payload) Empty() bool {
	return p.Summary.Summary == "" && p.SoftLanguageSummary.Summary == "" &&
		len(p.MiddleSummaries) == 0 && len(p.Dialogs) == 0 && len(p.KeyPoints) == 0
}

// Article is the full article view returned for a single-article read.
type Article struct {
	ArticleSummary
	Payload
}
