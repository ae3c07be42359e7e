package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// SchedulingRule constrains when posts may be generated for a channel type.
// Rules are immutable once registered; custom rules shadow the built-in
// default for the same channel type.
type SchedulingRule struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ChannelType      ChannelType    `gorm:"not null;index;size:50" json:"channel_type"`
	Weekdays         StringArray    `gorm:"type:text[]" json:"weekdays"`
	TimeSlots        StringArray    `gorm:"type:text[]" json:"time_slots"`
	Timezone         string         `gorm:"size:64;default:'UTC'" json:"timezone"`
	MaxPostsPerDay   int            `gorm:"default:1" json:"max_posts_per_day"`
	MinIntervalHours int            `gorm:"default:0" json:"min_interval_hours"`
	Custom           bool           `gorm:"default:false" json:"custom"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lowercase day name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// AllowsWeekday reports whether posts may be generated on the given day.
// An empty weekday list allows no days at all.
func (r *SchedulingRule) AllowsWeekday(day time.Weekday) bool {
	for _, name := range r.Weekdays {
		if d, ok := ParseWeekday(name); ok && d == day {
			return true
		}
	}
	return false
}

// Location resolves the rule's timezone, falling back to UTC on a bad name.
func (r *SchedulingRule) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
