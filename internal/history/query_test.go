package history

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-desk/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func sampleRecords() []domain.JobRecord {
	mk := func(id, name, model, created string, status domain.JobStatus, formats []string, tags ...string) domain.JobRecord {
		rec := domain.JobRecord{
			ID:               id,
			OriginalFileName: name,
			ModelUsed:        model,
			Status:           status,
			CreatedAt:        created,
			Tags:             append([]string{}, tags...),
			Results:          []domain.ResultEntry{},
		}
		for _, f := range formats {
			rec.Results = append(rec.Results, domain.ResultEntry{Format: f})
		}
		return rec
	}
	return []domain.JobRecord{
		mk("a", "Interview.mp3", "base", "2024-01-05T10:00:00.000000Z", domain.JobStatusCompleted, []string{"srt", "txt"}, "work"),
		mk("b", "podcast.wav", "small", "2024-02-10T10:00:00.000000Z", domain.JobStatusFailed, nil),
		mk("c", "interview-2.mp4", "base", "2024-03-15T10:00:00.000000Z", domain.JobStatusCompleted, []string{"vtt"}, "work", "draft"),
		mk("d", "lecture.m4a", "large-v3", "2024-03-20T10:00:00.000000Z", domain.JobStatusRunning, nil),
	}
}

func ids(items []domain.JobRecord) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// TestApplyQueryNewestFirst verifies default ordering and page defaults.
func TestApplyQueryNewestFirst(t *testing.T) {
	got := ApplyQuery(sampleRecords(), domain.JobQuery{})

	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(got.Items))
	assert.Equal(t, 4, got.TotalCount)
	assert.False(t, got.HasMore)
}

// TestApplyQueryFilters verifies each filter in isolation and combined.
func TestApplyQueryFilters(t *testing.T) {
	tests := []struct {
		name  string
		query domain.JobQuery
		want  []string
	}{
		{name: "search is case insensitive", query: domain.JobQuery{Search: ptr("INTERVIEW")}, want: []string{"c", "a"}},
		{name: "model", query: domain.JobQuery{ModelFilter: ptr("base")}, want: []string{"c", "a"}},
		{name: "format", query: domain.JobQuery{FormatFilter: ptr("srt")}, want: []string{"a"}},
		{name: "tag", query: domain.JobQuery{TagFilter: ptr("draft")}, want: []string{"c"}},
		{name: "status", query: domain.JobQuery{StatusFilter: ptr(domain.JobStatusFailed)}, want: []string{"b"}},
		{name: "date from", query: domain.JobQuery{DateFrom: ptr("2024-03-01")}, want: []string{"d", "c"}},
		{name: "date to", query: domain.JobQuery{DateTo: ptr("2024-02-28")}, want: []string{"b", "a"}},
		{name: "date to covers the whole day", query: domain.JobQuery{DateTo: ptr("2024-03-15")}, want: []string{"c", "b", "a"}},
		{name: "date range", query: domain.JobQuery{DateFrom: ptr("2024-02-01"), DateTo: ptr("2024-03-16")}, want: []string{"c", "b"}},
		{name: "combined", query: domain.JobQuery{ModelFilter: ptr("base"), TagFilter: ptr("work"), FormatFilter: ptr("vtt")}, want: []string{"c"}},
		{name: "no match", query: domain.JobQuery{Search: ptr("zzz")}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyQuery(sampleRecords(), tt.query)
			assert.Equal(t, tt.want, ids(got.Items))
			assert.Equal(t, len(tt.want), got.TotalCount)
		})
	}
}

// TestApplyQueryPagination verifies page size and has_more across offsets.
func TestApplyQueryPagination(t *testing.T) {
	records := make([]domain.JobRecord, 0, 7)
	for i := 0; i < 7; i++ {
		records = append(records, domain.JobRecord{
			ID:        fmt.Sprintf("j%d", i),
			CreatedAt: fmt.Sprintf("2024-01-%02dT00:00:00.000000Z", i+1),
		})
	}

	for _, limit := range []int{0, 1, 3, 7, 10} {
		for offset := 0; offset <= 9; offset++ {
			got := ApplyQuery(records, domain.JobQuery{Limit: ptr(limit), Offset: ptr(offset)})
			wantLen := max(0, min(limit, 7-offset))
			require.Len(t, got.Items, wantLen, "limit=%d offset=%d", limit, offset)
			assert.Equal(t, 7, got.TotalCount)
			assert.Equal(t, offset+limit < 7, got.HasMore, "limit=%d offset=%d", limit, offset)
		}
	}
}

// TestApplyQueryHugeLimit verifies limit and offset near the int range do not overflow.
func TestApplyQueryHugeLimit(t *testing.T) {
	records := sampleRecords()
	tests := []struct {
		name    string
		limit   int
		offset  int
		want    []string
		hasMore bool
	}{
		{name: "max limit with offset", limit: math.MaxInt, offset: 1, want: []string{"c", "b", "a"}},
		{name: "max limit from start", limit: math.MaxInt, offset: 0, want: []string{"d", "c", "b", "a"}},
		{name: "max offset", limit: 2, offset: math.MaxInt, want: []string{}},
		{name: "both max", limit: math.MaxInt, offset: math.MaxInt, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.JobListResponse
			require.NotPanics(t, func() {
				got = ApplyQuery(records, domain.JobQuery{Limit: ptr(tt.limit), Offset: ptr(tt.offset)})
			})
			assert.Equal(t, tt.want, ids(got.Items))
			assert.Equal(t, 4, got.TotalCount)
			assert.Equal(t, tt.hasMore, got.HasMore)
		})
	}
}

// TestApplyQueryDefaultLimit verifies the fifty-record default page.
func TestApplyQueryDefaultLimit(t *testing.T) {
	records := make([]domain.JobRecord, 0, 60)
	for i := 0; i < 60; i++ {
		records = append(records, domain.JobRecord{ID: fmt.Sprint(i), CreatedAt: fmt.Sprintf("2024-01-01T00:00:%02d.000000Z", i)})
	}

	got := ApplyQuery(records, domain.JobQuery{})
	assert.Len(t, got.Items, domain.DefaultPageLimit)
	assert.True(t, got.HasMore)
	assert.Equal(t, "59", got.Items[0].ID)
}

// TestApplyQueryIsPureAndIdempotent verifies input is untouched and results repeat.
func TestApplyQueryIsPureAndIdempotent(t *testing.T) {
	records := sampleRecords()
	before := ids(records)
	query := domain.JobQuery{ModelFilter: ptr("base"), Limit: ptr(1)}

	first := ApplyQuery(records, query)
	second := ApplyQuery(records, query)

	assert.Equal(t, first, second)
	assert.Equal(t, before, ids(records))
}

// TestListHistoryReadsIndex verifies the store-level query path.
func TestListHistoryReadsIndex(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"one.wav", "two.wav", "three.wav"} {
		_, err := store.CreateJob(name, "/"+name, "base", nil)
		require.NoError(t, err)
	}

	page, err := store.ListHistory(domain.JobQuery{Limit: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.True(t, page.HasMore)
	assert.Equal(t, "three.wav", page.Items[0].OriginalFileName)
}
