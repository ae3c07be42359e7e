package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/models"
)

// Channel names one concrete destination requested by a campaign.
type Channel struct {
	Type models.ChannelType `json:"type"`
	ID   string             `json:"id"`
}

func (c Channel) String() string {
	return fmt.Sprintf("%s:%s", c.Type, c.ID)
}

// ParseChannel reads a "type:id" pair, e.g. "social_media:twitter".
func ParseChannel(s string) (Channel, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Channel{}, fmt.Errorf("invalid channel %q, want type:id", s)
	}
	return Channel{Type: models.ChannelType(parts[0]), ID: parts[1]}, nil
}

// CreateScheduleRequest carries everything the generator needs for one campaign.
type CreateScheduleRequest struct {
	CampaignID       string               `json:"campaign_id"`
	Title            string               `json:"title"`
	StartDate        time.Time            `json:"start_date"`
	EndDate          time.Time            `json:"end_date"`
	Channels         []Channel            `json:"channels"`
	ContentItems     []models.PostContent `json:"content_items"`
	Frequency        models.Frequency     `json:"frequency"`
	CustomCron       string               `json:"custom_cron,omitempty"`
	AutoPublish      bool                 `json:"auto_publish"`
	RequiresApproval bool                 `json:"requires_approval"`
}

// SchedulerService turns campaign requests into concrete timetables and hands
// them to the schedule store.
type SchedulerService struct {
	catalog *RuleCatalog
	store   *ScheduleStore
	clock   Clock
	logger  *zap.Logger
}

func NewSchedulerService(catalog *RuleCatalog, store *ScheduleStore, clock Clock, logger *zap.Logger) *SchedulerService {
	return &SchedulerService{
		catalog: catalog,
		store:   store,
		clock:   clock,
		logger:  logger,
	}
}

// CreateSchedule generates a timetable honoring each channel's rule and
// registers the resulting campaign schedule. Channels without a registered
// rule are skipped, not rejected; zero generated posts is a valid outcome.
func (s *SchedulerService) CreateSchedule(req CreateScheduleRequest) (*models.CampaignSchedule, error) {
	if req.StartDate.After(req.EndDate) {
		return nil, fmt.Errorf("start date %s is after end date %s",
			req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"))
	}
	if len(req.Channels) == 0 {
		return nil, fmt.Errorf("campaign needs at least one channel")
	}
	if len(req.ContentItems) == 0 {
		return nil, fmt.Errorf("campaign needs at least one content item")
	}

	campaignID := req.CampaignID
	if campaignID == "" {
		campaignID = "cmp_" + uuid.NewString()
	}
	frequency := req.Frequency
	if frequency == "" {
		frequency = models.FrequencyDaily
	}

	dayFilter, err := s.dayFilter(frequency, req.CustomCron)
	if err != nil {
		return nil, err
	}

	var posts []models.ScheduledPost
	contentIdx := 0
	for _, ch := range req.Channels {
		rule := s.catalog.RuleFor(ch.Type)
		if rule == nil {
			s.logger.Warn("No scheduling rule for channel type, skipping",
				zap.String("campaign_id", campaignID),
				zap.String("channel_type", string(ch.Type)),
				zap.String("channel_id", ch.ID))
			continue
		}
		generated := s.generateForChannel(campaignID, ch, rule, req, frequency, dayFilter, &contentIdx)
		posts = append(posts, generated...)
	}

	// Merge across channels in ascending time order; the stable sort keeps
	// channel order then generation order for equal timestamps.
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].ScheduledFor.Before(posts[j].ScheduledFor)
	})

	channels := make(models.StringArray, len(req.Channels))
	for i, ch := range req.Channels {
		channels[i] = ch.String()
	}

	autoPublish := req.AutoPublish
	if req.RequiresApproval {
		// Approval flips this back on explicitly.
		autoPublish = false
	}

	cs := &models.CampaignSchedule{
		ID:               campaignID,
		Title:            req.Title,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Frequency:        frequency,
		Channels:         channels,
		AutoPublish:      autoPublish,
		RequiresApproval: req.RequiresApproval,
		Posts:            posts,
	}

	if err := s.store.AddSchedule(cs); err != nil {
		return nil, err
	}

	s.logger.Info("Campaign schedule created",
		zap.String("campaign_id", campaignID),
		zap.String("title", req.Title),
		zap.Int("posts", len(posts)),
		zap.String("frequency", string(frequency)),
		zap.Bool("auto_publish", autoPublish))

	schedule, _ := s.store.GetSchedule(campaignID)
	return schedule, nil
}

// dayFilter builds the per-day admission check for the custom frequency.
// Custom campaigns walk the range at daily granularity and keep the days on
// which the caller's cron expression fires; other frequencies admit every
// cursor position.
func (s *SchedulerService) dayFilter(freq models.Frequency, customCron string) (func(day time.Time) bool, error) {
	if freq != models.FrequencyCustom || customCron == "" {
		return func(time.Time) bool { return true }, nil
	}

	schedule, err := cron.ParseStandard(customCron)
	if err != nil {
		return nil, fmt.Errorf("invalid custom cron expression %q: %w", customCron, err)
	}
	return func(day time.Time) bool {
		next := schedule.Next(day.Add(-time.Second))
		return !next.Before(day) && next.Before(day.AddDate(0, 0, 1))
	}, nil
}

func (s *SchedulerService) generateForChannel(
	campaignID string,
	ch Channel,
	rule *models.SchedulingRule,
	req CreateScheduleRequest,
	frequency models.Frequency,
	dayFilter func(time.Time) bool,
	contentIdx *int,
) []models.ScheduledPost {
	loc := rule.Location()
	start := dateIn(req.StartDate, loc)
	end := dateIn(req.EndDate, loc)
	minInterval := time.Duration(rule.MinIntervalHours) * time.Hour

	var posts []models.ScheduledPost
	var lastAt time.Time

	for day := start; !day.After(end); day = advance(day, frequency) {
		if !rule.AllowsWeekday(day.Weekday()) || !dayFilter(day) {
			continue
		}

		placed := 0
		for _, slot := range rule.TimeSlots {
			if placed >= rule.MaxPostsPerDay {
				break
			}
			at, err := slotTime(day, slot, loc)
			if err != nil {
				s.logger.Warn("Skipping malformed time slot",
					zap.String("channel_type", string(rule.ChannelType)),
					zap.String("slot", slot))
				continue
			}
			if !lastAt.IsZero() && at.Sub(lastAt) < minInterval {
				continue
			}

			content := req.ContentItems[*contentIdx%len(req.ContentItems)]
			*contentIdx++

			posts = append(posts, models.ScheduledPost{
				ID:           "post_" + uuid.NewString(),
				CampaignID:   campaignID,
				ChannelType:  ch.Type,
				ChannelID:    ch.ID,
				Content:      content,
				ScheduledFor: at,
				Status:       models.PostStatusScheduled,
			})
			lastAt = at
			placed++
		}
	}

	return posts
}

// advance steps the calendar cursor by the campaign frequency. Custom
// campaigns move day by day; the cron filter decides which days count.
func advance(day time.Time, freq models.Frequency) time.Time {
	switch freq {
	case models.FrequencyWeekly:
		return day.AddDate(0, 0, 7)
	case models.FrequencyBiweekly:
		return day.AddDate(0, 0, 14)
	case models.FrequencyMonthly:
		return day.AddDate(0, 1, 0)
	default:
		return day.AddDate(0, 0, 1)
	}
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func slotTime(day time.Time, slot string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", slot)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
