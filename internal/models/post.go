package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ChannelType classifies the destination family of a post.
type ChannelType string

const (
	ChannelSocialMedia  ChannelType = "social_media"
	ChannelEmail        ChannelType = "email"
	ChannelBlog         ChannelType = "blog"
	ChannelPressRelease ChannelType = "press_release"
	ChannelAdCampaign   ChannelType = "ad_campaign"
)

// PostStatus is the lifecycle state of a scheduled post.
//
// scheduled -> published (terminal)
// scheduled -> cancelled (terminal)
// scheduled -> failed -> scheduled (automatic retry, at most 3 times)
// scheduled -> failed (terminal once the retry budget is spent)
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
	PostStatusCancelled PostStatus = "cancelled"
)

// MaxPublishRetries bounds automatic re-arming of failed posts.
const MaxPublishRetries = 3

// PostContent is the payload delivered to a channel adapter, supplied
// verbatim by the content-generation collaborator.
type PostContent struct {
	Text     string      `gorm:"type:text" json:"text"`
	Title    string      `gorm:"size:500" json:"title,omitempty"`
	Media    StringArray `gorm:"type:text[]" json:"media,omitempty"`
	Hashtags StringArray `gorm:"type:text[]" json:"hashtags,omitempty"`
	Mentions StringArray `gorm:"type:text[]" json:"mentions,omitempty"`
}

// ContentUpdate carries a partial content edit; nil fields are left untouched.
type ContentUpdate struct {
	Text     *string  `json:"text,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Media    []string `json:"media,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
}

// PostMetrics holds engagement counters reported by a channel adapter.
// The scheduler treats them as opaque; it only sums and averages them.
type PostMetrics struct {
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
	Engagements int64 `json:"engagements"`
	Shares      int64 `json:"shares"`
}

// Scan implements the sql.Scanner interface (jsonb column)
func (m *PostMetrics) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into PostMetrics", value)
	}
}

// Value implements the driver.Valuer interface
func (m PostMetrics) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// ScheduledPost is the atomic unit of dispatch work.
type ScheduledPost struct {
	ID           string         `gorm:"primaryKey;size:64" json:"id"`
	CampaignID   string         `gorm:"not null;index;size:64" json:"campaign_id"`
	ChannelType  ChannelType    `gorm:"not null;size:50" json:"channel_type"`
	ChannelID    string         `gorm:"not null;size:100" json:"channel_id"`
	Content      PostContent    `gorm:"embedded;embeddedPrefix:content_" json:"content"`
	ScheduledFor time.Time      `gorm:"not null;index" json:"scheduled_for"`
	Status       PostStatus     `gorm:"size:20;default:'scheduled';index" json:"status"`
	RetryCount   int            `gorm:"default:0" json:"retry_count"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	Metrics      *PostMetrics   `gorm:"type:jsonb" json:"metrics,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Apply merges a partial edit into the content.
func (c *PostContent) Apply(u ContentUpdate) {
	if u.Text != nil {
		c.Text = *u.Text
	}
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Media != nil {
		c.Media = u.Media
	}
	if u.Hashtags != nil {
		c.Hashtags = u.Hashtags
	}
	if u.Mentions != nil {
		c.Mentions = u.Mentions
	}
}
