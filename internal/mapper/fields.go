package mapper

import (
	"strings"

	"github.com/DeafMist/diet-digest/backend/internal/models"
)

// Keyword decodes a bare string or a {keyword, priority} object.
func Keyword(v any) (models.Keyword, bool) {
	switch t := v.(type) {
	case string:
		kw := strings.TrimSpace(t)
		if kw == "" {
			return models.Keyword{}, false
		}
		return models.Keyword{Keyword: kw, Priority: models.PriorityMedium}, true
	case map[string]any:
		kw := strings.TrimSpace(str(t["keyword"]))
		if kw == "" {
			return models.Keyword{}, false
		}
		return models.Keyword{Keyword: kw, Priority: priority(t["priority"])}, true
	}
	return models.Keyword{}, false
}

func priority(v any) models.Priority {
	switch p := models.Priority(strings.ToLower(strings.TrimSpace(str(v)))); p {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		return p
	}
	return models.PriorityMedium
}

// Keywords maps a keyword list, dropping invalid entries.
func Keywords(v any) []models.Keyword {
	items, _ := list(v)
	out := make([]models.Keyword, 0, len(items))
	for _, item := range items {
		if kw, ok := Keyword(item); ok {
			out = append(out, kw)
		}
	}
	return out
}

// Participant decodes a bare name or a participant object. Objects without a
// name are rejected.
func Participant(v any) (models.Participant, bool) {
	switch t := v.(type) {
	case string:
		name := strings.TrimSpace(t)
		if name == "" {
			return models.Participant{}, false
		}
		return models.Participant{Name: name}, true
	case map[string]any:
		name := strings.TrimSpace(str(t["name"]))
		if name == "" {
			return models.Participant{}, false
		}
		p := models.Participant{
			Name:     name,
			Position: strings.TrimSpace(str(t["position"])),
		}
		switch s := t["summary"].(type) {
		case string:
			p.Summary = s
		case map[string]any:
			p.Summary = Summary(s, "").Summary
		}
		if orders, ok := Orders(t["based_on_orders"]); ok && len(orders) > 0 {
			p.BasedOnOrders = orders
		}
		return p, true
	}
	return models.Participant{}, false
}

// Participants maps a participant list, dropping invalid entries.
func Participants(v any) []models.Participant {
	items, _ := list(v)
	out := make([]models.Participant, 0, len(items))
	for _, item := range items {
		if p, ok := Participant(item); ok {
			out = append(out, p)
		}
	}
	return out
}

// Summary decodes a summary-like value. A string becomes the summary with no
// source orders; an object must carry a string summary and a based_on_orders
// list, otherwise fallback is used.
func Summary(v any, fallback string) models.SummaryBlock {
	switch t := v.(type) {
	case string:
		return models.SummaryBlock{BasedOnOrders: []int{}, Summary: t}
	case map[string]any:
		s, isStr := t["summary"].(string)
		orders, isList := Orders(t["based_on_orders"])
		if isStr && isList {
			return models.SummaryBlock{BasedOnOrders: orders, Summary: s}
		}
	}
	return models.SummaryBlock{BasedOnOrders: []int{}, Summary: fallback}
}

// Summaries maps a list of summary-like values. Entries that are neither
// strings nor objects are dropped.
func Summaries(v any) []models.SummaryBlock {
	items, _ := list(v)
	out := make([]models.SummaryBlock, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case string, map[string]any:
			out = append(out, Summary(item, ""))
		}
	}
	return out
}

// Dialog decodes one dialog turn. A turn without a numeric order or a string
// summary is not a dialog and is rejected.
func Dialog(v any) (models.Dialog, bool) {
	m, ok := object(v)
	if !ok {
		return models.Dialog{}, false
	}
	order, ok := number(m["order"])
	if !ok {
		return models.Dialog{}, false
	}
	summary, ok := m["summary"].(string)
	if !ok {
		return models.Dialog{}, false
	}
	return models.Dialog{
		Order:        order,
		Summary:      summary,
		SoftLanguage: str(m["soft_language"]),
		Reaction:     Reaction(m["reaction"]),
		OriginalText: str(m["original_text"]),
		Speaker:      str(m["speaker"]),
		Position:     str(m["position"]),
	}, true
}

// Dialogs maps a dialog list, dropping invalid turns.
func Dialogs(v any) []models.Dialog {
	items, _ := list(v)
	out := make([]models.Dialog, 0, len(items))
	for _, item := range items {
		if d, ok := Dialog(item); ok {
			out = append(out, d)
		}
	}
	return out
}

// Terms maps a glossary list. Entries without a term are dropped.
func Terms(v any) []models.Term {
	items, _ := list(v)
	out := make([]models.Term, 0, len(items))
	for _, item := range items {
		m, ok := object(item)
		if !ok {
			continue
		}
		term := strings.TrimSpace(str(m["term"]))
		if term == "" {
			continue
		}
		out = append(out, models.Term{Term: term, Definition: str(m["definition"])})
	}
	return out
}

// ImageKind validates v against the known kinds.
func ImageKind(v any) models.ImageKind {
	if k := models.ImageKind(strings.TrimSpace(str(v))); k.Valid() {
		return k
	}
	return models.DefaultImageKind
}

// Reaction validates v against the known reactions.
func Reaction(v any) models.Reaction {
	if r := models.Reaction(strings.TrimSpace(str(v))); r.Valid() {
		return r
	}
	return models.ReactionNeutral
}
