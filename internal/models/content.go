package models

import (
	"time"
)

// Metadata keys written by the scrapers and the processing pipeline
const (
	MetaHashtags       = "hashtags"
	MetaSentimentScore = "sentimentScore"
	MetaSentimentLabel = "sentimentLabel"
	MetaFiltered       = "filtered"
	MetaTweetType      = "tweetType"
	MetaScrapedAt      = "scraped_at"
	MetaKeywords       = "keywords"
	MetaSource         = "source"
	MetaURL            = "url"
)

// Engagement holds the platform-dependent subset of interaction counters
type Engagement struct {
	Likes    *int `json:"likes,omitempty"`
	Shares   *int `json:"shares,omitempty"`
	Comments *int `json:"comments,omitempty"`
	Views    *int `json:"views,omitempty"`
}

// Count is a helper for building Engagement literals
func Count(n int) *int {
	return &n
}

// ContentItem is one scraped post, message, video or article
type ContentItem struct {
	ID         string      `json:"id"` // platform-unique, opaque
	Platform   Platform    `json:"platform"`
	Author     string      `json:"author"`
	Content    string      `json:"content"`
	Date       time.Time   `json:"date"` // normalized to UTC, marshals as RFC3339
	Engagement *Engagement `json:"engagement,omitempty"`
	Metadata   JSON        `json:"metadata,omitempty"`
}

// Clone copies the item and its metadata map
func (c ContentItem) Clone() ContentItem {
	out := c
	if c.Metadata != nil {
		out.Metadata = c.Metadata.Clone()
	}
	if c.Engagement != nil {
		e := *c.Engagement
		out.Engagement = &e
	}
	return out
}

// Meta sets a metadata key, allocating the map when needed
func (c *ContentItem) Meta(key string, value interface{}) {
	if c.Metadata == nil {
		c.Metadata = JSON{}
	}
	c.Metadata[key] = value
}

// IsFiltered reports whether any pipeline stage tagged the item for removal
func (c ContentItem) IsFiltered() bool {
	if c.Metadata == nil {
		return false
	}
	v, ok := c.Metadata[MetaFiltered]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}

// SentimentLabel returns the label attached by the sentiment stage
func (c ContentItem) SentimentLabel() string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata[MetaSentimentLabel].(string)
	return s
}
