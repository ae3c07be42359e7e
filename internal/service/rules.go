package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/models"
)

// RuleCatalog holds the scheduling rules per channel type. It is seeded with
// built-in defaults; custom rules registered at runtime shadow the default for
// their channel type. Channel types with no rule at all are skipped by the
// timetable generator.
type RuleCatalog struct {
	mu     sync.RWMutex
	rules  map[models.ChannelType][]models.SchedulingRule
	logger *zap.Logger
}

func NewRuleCatalog(logger *zap.Logger) *RuleCatalog {
	c := &RuleCatalog{
		rules:  make(map[models.ChannelType][]models.SchedulingRule),
		logger: logger,
	}
	for _, r := range defaultRules() {
		c.rules[r.ChannelType] = append(c.rules[r.ChannelType], r)
	}
	return c
}

func defaultRules() []models.SchedulingRule {
	weekdays := models.StringArray{"monday", "tuesday", "wednesday", "thursday", "friday"}
	allDays := models.StringArray{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

	return []models.SchedulingRule{
		{
			ChannelType:      models.ChannelSocialMedia,
			Weekdays:         weekdays,
			TimeSlots:        models.StringArray{"09:00", "13:00", "18:00"},
			Timezone:         "UTC",
			MaxPostsPerDay:   3,
			MinIntervalHours: 2,
		},
		{
			ChannelType:      models.ChannelEmail,
			Weekdays:         models.StringArray{"tuesday", "thursday"},
			TimeSlots:        models.StringArray{"10:00"},
			Timezone:         "UTC",
			MaxPostsPerDay:   1,
			MinIntervalHours: 24,
		},
		{
			ChannelType:      models.ChannelBlog,
			Weekdays:         models.StringArray{"monday", "wednesday"},
			TimeSlots:        models.StringArray{"08:00"},
			Timezone:         "UTC",
			MaxPostsPerDay:   1,
			MinIntervalHours: 24,
		},
		{
			ChannelType:      models.ChannelPressRelease,
			Weekdays:         weekdays,
			TimeSlots:        models.StringArray{"09:00"},
			Timezone:         "UTC",
			MaxPostsPerDay:   1,
			MinIntervalHours: 24,
		},
		{
			ChannelType:      models.ChannelAdCampaign,
			Weekdays:         allDays,
			TimeSlots:        models.StringArray{"10:00", "15:00"},
			Timezone:         "UTC",
			MaxPostsPerDay:   2,
			MinIntervalHours: 4,
		},
	}
}

// Register adds a custom rule. The newest rule for a channel type wins lookups.
func (c *RuleCatalog) Register(rule models.SchedulingRule) {
	rule.Custom = true

	c.mu.Lock()
	c.rules[rule.ChannelType] = append(c.rules[rule.ChannelType], rule)
	c.mu.Unlock()

	c.logger.Info("Scheduling rule registered",
		zap.String("channel_type", string(rule.ChannelType)),
		zap.Int("slots", len(rule.TimeSlots)),
		zap.Int("max_posts_per_day", rule.MaxPostsPerDay))
}

// RuleFor returns the effective rule for a channel type, or nil when none is
// registered.
func (c *RuleCatalog) RuleFor(t models.ChannelType) *models.SchedulingRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rules := c.rules[t]
	if len(rules) == 0 {
		return nil
	}
	r := rules[len(rules)-1]
	return &r
}

// Rules returns a snapshot of every registered rule.
func (c *RuleCatalog) Rules() []models.SchedulingRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.SchedulingRule
	for _, rs := range c.rules {
		out = append(out, rs...)
	}
	return out
}
