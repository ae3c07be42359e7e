package models

import (
	"time"
)

// ChannelStats is a daily per-channel rollup persisted by the stats updater.
type ChannelStats struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Date           time.Time `gorm:"index;not null" json:"date"`
	ChannelID      string    `gorm:"size:100;not null;index" json:"channel_id"`
	TotalPosts     int       `gorm:"default:0" json:"total_posts"`
	PublishedPosts int       `gorm:"default:0" json:"published_posts"`
	FailedPosts    int       `gorm:"default:0" json:"failed_posts"`
	ScheduledPosts int       `gorm:"default:0" json:"scheduled_posts"`
	CancelledPosts int       `gorm:"default:0" json:"cancelled_posts"`
	Impressions    int64     `gorm:"default:0" json:"impressions"`
	Clicks         int64     `gorm:"default:0" json:"clicks"`
	Engagements    int64     `gorm:"default:0" json:"engagements"`
	Shares         int64     `gorm:"default:0" json:"shares"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
