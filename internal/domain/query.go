package domain

// DefaultPageLimit applies when a query has no explicit limit.
const DefaultPageLimit = 50

// JobQuery selects a page of job records. Nil fields do not filter.
type JobQuery struct {
	Limit        *int       `json:"limit,omitempty"`
	Offset       *int       `json:"offset,omitempty"`
	Search       *string    `json:"search,omitempty"`
	ModelFilter  *string    `json:"model_filter,omitempty"`
	FormatFilter *string    `json:"format_filter,omitempty"`
	TagFilter    *string    `json:"tag_filter,omitempty"`
	StatusFilter *JobStatus `json:"status_filter,omitempty"`
	DateFrom     *string    `json:"date_from,omitempty"`
	DateTo       *string    `json:"date_to,omitempty"`
}

// EffectiveLimit returns the page size after defaults. Negative limits fall back to the default.
func (q JobQuery) EffectiveLimit() int {
	if q.Limit == nil || *q.Limit < 0 {
		return DefaultPageLimit
	}
	return *q.Limit
}

// EffectiveOffset returns the page start after defaults.
func (q JobQuery) EffectiveOffset() int {
	if q.Offset == nil || *q.Offset < 0 {
		return 0
	}
	return *q.Offset
}

// JobListResponse is one page of query results.
type JobListResponse struct {
	Items      []JobRecord `json:"items"`
	TotalCount int         `json:"total_count"`
	HasMore    bool        `json:"has_more"`
}
