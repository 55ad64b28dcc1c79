package models

import (
	"time"
)

// StoredContent is the persisted row of a ContentItem, unique per
// (user, platform, platform content id)
type StoredContent struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	UserID            string    `gorm:"size:255;not null;uniqueIndex:idx_content_key,priority:1;index:idx_user_fetched,priority:1" json:"user_id"`
	Platform          Platform  `gorm:"size:32;not null;uniqueIndex:idx_content_key,priority:2" json:"platform"`
	PlatformContentID string    `gorm:"size:255;not null;uniqueIndex:idx_content_key,priority:3" json:"platform_content_id"`
	Author            string    `gorm:"size:255" json:"author"`
	Content           string    `gorm:"type:text" json:"content"`
	Date              time.Time `json:"date"`
	Engagement        JSON      `gorm:"type:json" json:"engagement"`
	Metadata          JSON      `gorm:"type:json" json:"metadata"`
	FetchedAt         time.Time `gorm:"index:idx_user_fetched,priority:2" json:"fetched_at"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the table name of the original store
func (StoredContent) TableName() string {
	return "social_media_content"
}

// NewStoredContent maps an item onto its row for the given user
func NewStoredContent(userID string, item ContentItem, fetchedAt time.Time) *StoredContent {
	return &StoredContent{
		UserID:            userID,
		Platform:          item.Platform,
		PlatformContentID: item.ID,
		Author:            item.Author,
		Content:           item.Content,
		Date:              item.Date,
		Engagement:        engagementToJSON(item.Engagement),
		Metadata:          item.Metadata,
		FetchedAt:         fetchedAt,
	}
}

// Item converts the row back into a ContentItem
func (s *StoredContent) Item() ContentItem {
	author := s.Author
	if author == "" {
		author = "Unknown"
	}
	return ContentItem{
		ID:         s.PlatformContentID,
		Platform:   s.Platform,
		Author:     author,
		Content:    s.Content,
		Date:       s.Date.UTC(),
		Engagement: engagementFromJSON(s.Engagement),
		Metadata:   s.Metadata,
	}
}

func engagementToJSON(e *Engagement) JSON {
	if e == nil {
		return nil
	}
	out := JSON{}
	put := func(k string, v *int) {
		if v != nil {
			out[k] = *v
		}
	}
	put("likes", e.Likes)
	put("shares", e.Shares)
	put("comments", e.Comments)
	put("views", e.Views)
	return out
}

func engagementFromJSON(j JSON) *Engagement {
	if len(j) == 0 {
		return nil
	}
	get := func(k string) *int {
		switch v := j[k].(type) {
		case float64:
			return Count(int(v))
		case int:
			return Count(v)
		}
		return nil
	}
	return &Engagement{
		Likes:    get("likes"),
		Shares:   get("shares"),
		Comments: get("comments"),
		Views:    get("views"),
	}
}

// ScrapeRunStatus is the outcome of one platform scrape
type ScrapeRunStatus string

const (
	ScrapeRunSucceeded ScrapeRunStatus = "succeeded"
	ScrapeRunFailed    ScrapeRunStatus = "failed"
)

// ScrapeRun records one platform scrape for analytics
type ScrapeRun struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RunID        string          `gorm:"size:36;index;not null" json:"run_id"`
	UserID       string          `gorm:"size:255;index;not null" json:"user_id"`
	Platform     Platform        `gorm:"size:32;not null" json:"platform"`
	ItemCount    int             `json:"item_count"`
	Attempts     int             `json:"attempts"`
	Status       ScrapeRunStatus `gorm:"size:20" json:"status"`
	ErrorMessage string          `gorm:"type:text" json:"error_message"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
