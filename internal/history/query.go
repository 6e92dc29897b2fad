package history

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"whisper-desk/internal/domain"
)

// ApplyQuery filters, orders newest first and paginates records. It does not
// modify records and returns the same page for the same input.
func ApplyQuery(records []domain.JobRecord, query domain.JobQuery) domain.JobListResponse {
	matched := lo.Filter(records, func(r domain.JobRecord, _ int) bool {
		return Matches(r, query)
	})
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	total := len(matched)
	offset := query.EffectiveOffset()
	end := total
	if limit := query.EffectiveLimit(); offset < total && limit < total-offset {
		end = offset + limit
	}

	items := []domain.JobRecord{}
	if offset < total {
		items = append(items, matched[offset:end]...)
	}

	return domain.JobListResponse{
		Items:      items,
		TotalCount: total,
		HasMore:    end < total,
	}
}

// Matches reports whether rec satisfies every filter set on query.
// Date bounds compare timestamp strings lexicographically and inclusively; a
// date_to shorter than a full timestamp bounds on the matching prefix, so a
// bare date covers that whole day.
func Matches(rec domain.JobRecord, query domain.JobQuery) bool {
	if query.Search != nil && *query.Search != "" {
		needle := strings.ToLower(*query.Search)
		if !strings.Contains(strings.ToLower(rec.OriginalFileName), needle) {
			return false
		}
	}
	if query.ModelFilter != nil && rec.ModelUsed != *query.ModelFilter {
		return false
	}
	if query.FormatFilter != nil && !rec.HasFormat(*query.FormatFilter) {
		return false
	}
	if query.TagFilter != nil && !rec.HasTag(*query.TagFilter) {
		return false
	}
	if query.StatusFilter != nil && rec.Status != *query.StatusFilter {
		return false
	}
	if query.DateFrom != nil && rec.CreatedAt < *query.DateFrom {
		return false
	}
	if query.DateTo != nil && datePrefix(rec.CreatedAt, len(*query.DateTo)) > *query.DateTo {
		return false
	}
	return true
}

func datePrefix(ts string, n int) string {
	if n < len(ts) {
		return ts[:n]
	}
	return ts
}
