package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samzong/searchbeam/internal/cache/memory"
	"github.com/samzong/searchbeam/internal/domain"
)

func sampleResponse(ids ...string) *domain.SearchResponse {
	total := len(ids) * 10
	items := make([]domain.SearchResultItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, domain.SearchResultItem{
			VideoID:      id,
			VideoURL:     "https://www.youtube.com/watch?v=" + id,
			Title:        "video " + id,
			ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/mqdefault.jpg",
			Platform:     "youtube",
		})
	}
	return &domain.SearchResponse{
		Items:         items,
		NextPageToken: "CAUQAA",
		TotalResults:  &total,
	}
}

func TestResponseCache_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		pageToken string
	}{
		{"first page", ""},
		{"with cursor", "CAUQAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(memory.Config{})
			resp := sampleResponse("a", "b")

			c.Set("youtube", "cats", resp, tt.pageToken)

			got, ok := c.Get("youtube", "cats", tt.pageToken)
			require.True(t, ok)
			assert.Equal(t, resp, got)
		})
	}
}

func TestResponseCache_KeyIndependence(t *testing.T) {
	c := New(memory.Config{})
	c.Set("youtube", "cats", sampleResponse("yt"), "")

	_, ok := c.Get("bilibili", "cats", "")
	assert.False(t, ok)

	_, ok = c.Get("youtube", "cats", "CAUQAA")
	assert.False(t, ok)

	_, ok = c.Get("youtube", "dogs", "")
	assert.False(t, ok)
}

func TestResponseCache_FirstPageSentinel(t *testing.T) {
	c := New(memory.Config{})
	c.Set("youtube", "cats", sampleResponse("a"), "")

	got, ok := c.Get("youtube", "cats", FirstPage)
	require.True(t, ok)
	assert.Len(t, got.Items, 1)
}

func TestResponseCache_ErrorNotCached(t *testing.T) {
	c := New(memory.Config{})

	c.Set("youtube", "cats", domain.ErrorResponse("quota"), "")
	c.Set("youtube", "dogs", nil, "")

	assert.Equal(t, 0, c.Len())
}

func TestResponseCache_Overwrite(t *testing.T) {
	c := New(memory.Config{})

	c.Set("youtube", "cats", sampleResponse("a"), "")
	c.Set("youtube", "cats", sampleResponse("b", "c"), "")

	got, ok := c.Get("youtube", "cats", "")
	require.True(t, ok)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, 1, c.Len())
}

func TestResponseCache_StoresCopy(t *testing.T) {
	c := New(memory.Config{})
	resp := sampleResponse("a")

	c.Set("youtube", "cats", resp, "")
	resp.Items[0].Title = "mutated"

	got, _ := c.Get("youtube", "cats", "")
	assert.Equal(t, "video a", got.Items[0].Title)
}

func TestResponseCache_Delete(t *testing.T) {
	c := New(memory.Config{})
	c.Set("youtube", "cats", sampleResponse("a"), "")

	c.Delete("youtube", "cats", "")
	_, ok := c.Get("youtube", "cats", "")
	assert.False(t, ok)

	// отсутствующий ключ - no-op
	c.Delete("youtube", "cats", "")
	c.Delete("bilibili", "nothing", "tok")
}

func TestResponseCache_ClearTwice(t *testing.T) {
	c := New(memory.Config{})
	c.Set("youtube", "cats", sampleResponse("a"), "")
	c.Set("youtube", "dogs", sampleResponse("b"), "")

	c.Clear()
	assert.Equal(t, 0, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestResponseCache_TTL(t *testing.T) {
	c := New(memory.Config{TTL: 30 * time.Millisecond})
	c.Set("youtube", "cats", sampleResponse("a"), "")

	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("youtube", "cats", "")
	assert.False(t, ok)
}

func TestResponseCache_Capacity(t *testing.T) {
	c := New(memory.Config{MaxItems: 2, TTL: time.Hour})

	c.Set("youtube", "one", sampleResponse("1"), "")
	c.Set("youtube", "two", sampleResponse("2"), "")
	c.Set("youtube", "three", sampleResponse("3"), "")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("youtube", "one", "")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	tests := []struct {
		name      string
		platform  string
		query     string
		pageToken string
		want      string
	}{
		{"first page", "youtube", "baby", "", "youtube:baby:first"},
		{"cursor", "youtube", "baby", "CAoQAA", "youtube:baby:CAoQAA"},
		{"normalized", "youtube", "  Baby   Shark ", "", "youtube:baby shark:first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.platform, tt.query, tt.pageToken))
		})
	}
}
