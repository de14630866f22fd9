package domain

import (
	"encoding/json"
	"strings"
	"time"
)

const MaxQueryLength = 500

type SearchRequest struct {
	Platform   string
	Query      string
	PageToken  string
	MaxResults int
}

func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Platform) == "" {
		return ErrEmptyPlatform
	}
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if len(r.Query) > MaxQueryLength {
		return ErrQueryTooLong
	}
	return nil
}

// ClampPageSize приводит MaxResults к [1, maxSize]; 0 -> defaultSize
func (r *SearchRequest) ClampPageSize(defaultSize, maxSize int) {
	if maxSize < 1 {
		maxSize = 1
	}
	if r.MaxResults <= 0 {
		r.MaxResults = defaultSize
	}
	if r.MaxResults < 1 {
		r.MaxResults = 1
	}
	if r.MaxResults > maxSize {
		r.MaxResults = maxSize
	}
}

type SearchResponse struct {
	Items         []SearchResultItem `json:"items"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
	TotalResults  *int               `json:"totalResults,omitempty"`
	Error         string             `json:"error,omitempty"`
}

func ErrorResponse(msg string) *SearchResponse {
	return &SearchResponse{
		Items: []SearchResultItem{},
		Error: msg,
	}
}

func (r *SearchResponse) Failed() bool {
	return r.Error != ""
}

// Clone копирует ответ вместе со слайсом и extra-полями элементов
func (r *SearchResponse) Clone() *SearchResponse {
	if r == nil {
		return nil
	}
	out := *r
	if r.Items != nil {
		out.Items = make([]SearchResultItem, len(r.Items))
		for i, it := range r.Items {
			out.Items[i] = it.clone()
		}
	}
	if r.TotalResults != nil {
		total := *r.TotalResults
		out.TotalResults = &total
	}
	return &out
}

// SearchResultItem - элемент выдачи, не зависящий от платформы.
// VideoID, VideoURL, Title, ThumbnailURL и Platform заполняются всегда.
type SearchResultItem struct {
	VideoID      string
	VideoURL     string
	Title        string
	ThumbnailURL string
	Platform     string
	PublishedAt  *time.Time
	ChannelTitle string
	ViewCount    string
	Extra        map[string]any
}

func (it SearchResultItem) Complete() bool {
	return it.VideoID != "" && it.VideoURL != "" && it.Title != "" &&
		it.ThumbnailURL != "" && it.Platform != ""
}

func (it SearchResultItem) clone() SearchResultItem {
	if it.PublishedAt != nil {
		ts := *it.PublishedAt
		it.PublishedAt = &ts
	}
	if it.Extra != nil {
		extra := make(map[string]any, len(it.Extra))
		for k, v := range it.Extra {
			extra[k] = v
		}
		it.Extra = extra
	}
	return it
}

// MarshalJSON раскладывает Extra в корень объекта, основные поля имеют приоритет
func (it SearchResultItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Extra)+8)
	for k, v := range it.Extra {
		out[k] = v
	}

	out["videoId"] = it.VideoID
	out["videoUrl"] = it.VideoURL
	out["title"] = it.Title
	out["thumbnailUrl"] = it.ThumbnailURL
	out["platform"] = it.Platform
	if it.PublishedAt != nil {
		out["publishedAt"] = it.PublishedAt.UTC().Format(time.RFC3339)
	}
	if it.ChannelTitle != "" {
		out["channelTitle"] = it.ChannelTitle
	}
	if it.ViewCount != "" {
		out["viewCount"] = it.ViewCount
	}

	return json.Marshal(out)
}

type SearchRecord struct {
	ID          int64         `json:"id"`
	Platform    string        `json:"platform"`
	Query       string        `json:"query"`
	PageToken   string        `json:"pageToken,omitempty"`
	ResultCount int           `json:"resultCount"`
	CacheHit    bool          `json:"cacheHit"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"-"`
	CreatedAt   time.Time     `json:"createdAt"`
}
