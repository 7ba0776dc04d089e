package repository

import (
	"time"

	"golang.org/x/text/cases"

	"github.com/DeafMist/diet-digest/backend/internal/mapper"
	"github.com/DeafMist/diet-digest/backend/internal/models"
)

// FilterArticles keeps the articles matching every given dimension:
//
//   - categories: any article category equals any filter category, compared
//     with Unicode case folding;
//   - houses and meetings: exact match on NameOfHouse and NameOfMeeting;
//   - date range: the article date falls between the start of DateStart's day
//     and the end of DateEnd's day, both inclusive, in UTC.
//
// Words are not checked here, the keyword partition already selected them.
// Unparseable filter dates are ignored. When a range is active, articles whose
// date cannot be parsed are dropped.
func FilterArticles(items []models.ArticleSummary, filters models.SearchFilters) []models.ArticleSummary {
	fold := cases.Fold()

	categories := map[string]struct{}{}
	for _, c := range mapper.Strings(filters.Categories) {
		categories[fold.String(c)] = struct{}{}
	}
	houses := set(mapper.Strings(filters.Houses))
	meetings := set(mapper.Strings(filters.Meetings))

	var start, end time.Time
	if ts, ok := models.ParseDate(filters.DateStart); ok {
		start = startOfDay(ts)
	}
	if ts, ok := models.ParseDate(filters.DateEnd); ok {
		end = endOfDay(ts)
	}

	out := make([]models.ArticleSummary, 0, len(items))
	for _, a := range items {
		if len(categories) > 0 && !anyFolded(fold, a.Categories, categories) {
			continue
		}
		if len(houses) > 0 {
			if _, ok := houses[a.NameOfHouse]; !ok {
				continue
			}
		}
		if len(meetings) > 0 {
			if _, ok := meetings[a.NameOfMeeting]; !ok {
				continue
			}
		}
		if !start.IsZero() || !end.IsZero() {
			ts, ok := models.ParseDate(a.Date)
			if !ok {
				continue
			}
			if !start.IsZero() && ts.Before(start) {
				continue
			}
			if !end.IsZero() && ts.After(end) {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func anyFolded(fold cases.Caser, values []string, want map[string]struct{}) bool {
	for _, v := range values {
		if _, ok := want[fold.String(v)]; ok {
			return true
		}
	}
	return false
}

func set(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func startOfDay(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfDay(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC)
}
