package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/models"
)

// ScheduleStore owns every campaign schedule and scheduled post. All reads and
// writes from the generator, dispatcher, publisher and analytics go through it.
//
// Locking is per campaign: the store-level RWMutex only guards the campaign
// map, so mutations on unrelated campaigns never contend. When a database is
// attached, every mutation is written through inside the campaign lock, which
// keeps the persisted scheduledFor of a re-armed post in step with memory.
type ScheduleStore struct {
	mu        sync.RWMutex
	campaigns map[string]*campaignEntry
	postIndex map[string]string // post id -> campaign id
	db        *gorm.DB
	logger    *zap.Logger
}

type campaignEntry struct {
	mu       sync.Mutex
	schedule *models.CampaignSchedule
}

// DuePost identifies a post claimed by a dispatch tick.
type DuePost struct {
	CampaignID   string
	PostID       string
	ChannelID    string
	ScheduledFor time.Time
}

// NewScheduleStore creates a store. db may be nil for a purely in-memory
// deployment (tests, ephemeral runs).
func NewScheduleStore(db *gorm.DB, logger *zap.Logger) *ScheduleStore {
	return &ScheduleStore{
		campaigns: make(map[string]*campaignEntry),
		postIndex: make(map[string]string),
		db:        db,
		logger:    logger,
	}
}

// Load restores campaign schedules from the database after a restart.
func (s *ScheduleStore) Load() error {
	if s.db == nil {
		return nil
	}

	var schedules []models.CampaignSchedule
	if err := s.db.Preload("Posts").Find(&schedules).Error; err != nil {
		return fmt.Errorf("failed to load campaign schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range schedules {
		cs := schedules[i]
		s.campaigns[cs.ID] = &campaignEntry{schedule: &cs}
		for _, p := range cs.Posts {
			s.postIndex[p.ID] = cs.ID
		}
	}

	s.logger.Info("Campaign schedules restored", zap.Int("count", len(schedules)))
	return nil
}

// AddSchedule registers a freshly generated campaign schedule.
func (s *ScheduleStore) AddSchedule(cs *models.CampaignSchedule) error {
	s.mu.Lock()
	if _, exists := s.campaigns[cs.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("campaign %s already scheduled", cs.ID)
	}
	s.campaigns[cs.ID] = &campaignEntry{schedule: cs}
	for _, p := range cs.Posts {
		s.postIndex[p.ID] = cs.ID
	}
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Create(cs).Error; err != nil {
			s.logger.Error("Failed to persist campaign schedule",
				zap.String("campaign_id", cs.ID), zap.Error(err))
		}
	}
	return nil
}

// GetSchedule returns a deep copy of a campaign schedule.
func (s *ScheduleStore) GetSchedule(campaignID string) (*models.CampaignSchedule, bool) {
	entry := s.entry(campaignID)
	if entry == nil {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return cloneSchedule(entry.schedule), true
}

// Snapshot returns deep copies of every campaign schedule.
func (s *ScheduleStore) Snapshot() []models.CampaignSchedule {
	s.mu.RLock()
	entries := make([]*campaignEntry, 0, len(s.campaigns))
	for _, e := range s.campaigns {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]models.CampaignSchedule, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, *cloneSchedule(e.schedule))
		e.mu.Unlock()
	}
	return out
}

// UpdateContent applies a partial content edit to a post that is still
// scheduled. Any other status makes the call a no-op.
func (s *ScheduleStore) UpdateContent(postID string, upd models.ContentUpdate) bool {
	return s.withScheduledPost(postID, func(p *models.ScheduledPost) {
		p.Content.Apply(upd)
	})
}

// CancelPost moves a scheduled post to its terminal cancelled state. Posts in
// any other status are left untouched.
func (s *ScheduleStore) CancelPost(postID string) bool {
	return s.withScheduledPost(postID, func(p *models.ScheduledPost) {
		p.Status = models.PostStatusCancelled
	})
}

// ReschedulePost overwrites the scheduled time of a still-scheduled post.
func (s *ScheduleStore) ReschedulePost(postID string, at time.Time) bool {
	return s.withScheduledPost(postID, func(p *models.ScheduledPost) {
		p.ScheduledFor = at
	})
}

// ApproveCampaign records the approver and enables auto-publish. Only
// meaningful for campaigns that require approval; otherwise a no-op.
// Re-approving simply overwrites approver and timestamp.
func (s *ScheduleStore) ApproveCampaign(campaignID, approver string, now time.Time) bool {
	entry := s.entry(campaignID)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	cs := entry.schedule
	if cs.RequiresApproval {
		cs.ApprovedBy = approver
		t := now
		cs.ApprovedAt = &t
		cs.AutoPublish = true
		s.persistCampaign(cs)
	}
	entry.mu.Unlock()
	return true
}

// DuePosts collects scheduled posts of auto-publish campaigns whose time falls
// within the tolerance window around now, ordered ascending by scheduled time.
func (s *ScheduleStore) DuePosts(now time.Time, tolerance time.Duration) []DuePost {
	s.mu.RLock()
	entries := make([]*campaignEntry, 0, len(s.campaigns))
	for _, e := range s.campaigns {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	windowStart := now.Add(-tolerance)
	windowEnd := now.Add(tolerance)

	var due []DuePost
	for _, e := range entries {
		e.mu.Lock()
		cs := e.schedule
		if cs.AutoPublish {
			for i := range cs.Posts {
				p := &cs.Posts[i]
				if p.Status != models.PostStatusScheduled {
					continue
				}
				if p.ScheduledFor.Before(windowStart) || p.ScheduledFor.After(windowEnd) {
					continue
				}
				due = append(due, DuePost{
					CampaignID:   cs.ID,
					PostID:       p.ID,
					ChannelID:    p.ChannelID,
					ScheduledFor: p.ScheduledFor,
				})
			}
		}
		e.mu.Unlock()
	}

	sortDue(due)
	return due
}

// MarkPublishing flips a scheduled post to published and stamps publishedAt
// before the adapter call, mirroring the eventual-confirmation pattern: the
// flip is reverted by MarkFailed if delivery does not go through. Returns a
// copy of the post for delivery and false when the post was cancelled or
// already claimed.
func (s *ScheduleStore) MarkPublishing(postID string, now time.Time) (models.ScheduledPost, bool) {
	var copied models.ScheduledPost
	ok := s.withScheduledPost(postID, func(p *models.ScheduledPost) {
		p.Status = models.PostStatusPublished
		t := now
		p.PublishedAt = &t
		copied = *clonePost(p)
	})
	return copied, ok
}

// AttachMetrics records adapter-reported engagement metrics on a published post.
func (s *ScheduleStore) AttachMetrics(postID string, m *models.PostMetrics) {
	if m == nil {
		return
	}
	s.withPost(postID, func(p *models.ScheduledPost) {
		if p.Status != models.PostStatusPublished {
			return
		}
		mc := *m
		p.Metrics = &mc
	})
}

// MarkFailed reverts an optimistic publish: the post becomes failed, the error
// is recorded and the retry count incremented. While the retry budget lasts
// the post is re-armed to scheduled at now+retryDelay; the new scheduledFor is
// persisted in the same mutation. Returns the resulting post state.
func (s *ScheduleStore) MarkFailed(postID, reason string, now time.Time, retryDelay time.Duration) (models.ScheduledPost, bool) {
	var copied models.ScheduledPost
	ok := s.withPost(postID, func(p *models.ScheduledPost) {
		if p.Status != models.PostStatusPublished {
			return
		}
		p.Status = models.PostStatusFailed
		p.PublishedAt = nil
		p.Error = reason
		p.RetryCount++
		if p.RetryCount < models.MaxPublishRetries {
			p.Status = models.PostStatusScheduled
			p.ScheduledFor = now.Add(retryDelay)
		}
		copied = *clonePost(p)
	})
	return copied, ok
}

// GetPost returns a deep copy of one post.
func (s *ScheduleStore) GetPost(postID string) (models.ScheduledPost, bool) {
	var copied models.ScheduledPost
	ok := s.withPost(postID, func(p *models.ScheduledPost) {
		copied = *clonePost(p)
	})
	return copied, ok
}

// internals

func (s *ScheduleStore) entry(campaignID string) *campaignEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.campaigns[campaignID]
}

func (s *ScheduleStore) entryForPost(postID string) *campaignEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	campaignID, ok := s.postIndex[postID]
	if !ok {
		return nil
	}
	return s.campaigns[campaignID]
}

// withPost runs fn on the post under its campaign lock and persists the result.
func (s *ScheduleStore) withPost(postID string, fn func(p *models.ScheduledPost)) bool {
	entry := s.entryForPost(postID)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for i := range entry.schedule.Posts {
		p := &entry.schedule.Posts[i]
		if p.ID == postID {
			fn(p)
			s.persistPost(p)
			return true
		}
	}
	return false
}

// withScheduledPost is the guarded mutation path: fn only runs while the post
// status is scheduled, every other status is a silent no-op.
func (s *ScheduleStore) withScheduledPost(postID string, fn func(p *models.ScheduledPost)) bool {
	entry := s.entryForPost(postID)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for i := range entry.schedule.Posts {
		p := &entry.schedule.Posts[i]
		if p.ID == postID {
			if p.Status != models.PostStatusScheduled {
				return true
			}
			fn(p)
			s.persistPost(p)
			return true
		}
	}
	return false
}

func (s *ScheduleStore) persistPost(p *models.ScheduledPost) {
	if s.db == nil {
		return
	}
	if err := s.db.Save(p).Error; err != nil {
		s.logger.Error("Failed to persist post",
			zap.String("post_id", p.ID), zap.Error(err))
	}
}

func (s *ScheduleStore) persistCampaign(cs *models.CampaignSchedule) {
	if s.db == nil {
		return
	}
	if err := s.db.Omit("Posts").Save(cs).Error; err != nil {
		s.logger.Error("Failed to persist campaign",
			zap.String("campaign_id", cs.ID), zap.Error(err))
	}
}

func sortDue(due []DuePost) {
	// Stable sort keeps equal timestamps in collection order, which is
	// channel order then generation order within a campaign.
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
}

func clonePost(p *models.ScheduledPost) *models.ScheduledPost {
	cp := *p
	cp.Content.Media = append(models.StringArray(nil), p.Content.Media...)
	cp.Content.Hashtags = append(models.StringArray(nil), p.Content.Hashtags...)
	cp.Content.Mentions = append(models.StringArray(nil), p.Content.Mentions...)
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		cp.PublishedAt = &t
	}
	if p.Metrics != nil {
		m := *p.Metrics
		cp.Metrics = &m
	}
	return &cp
}

func cloneSchedule(cs *models.CampaignSchedule) *models.CampaignSchedule {
	cp := *cs
	cp.Channels = append(models.StringArray(nil), cs.Channels...)
	if cs.ApprovedAt != nil {
		t := *cs.ApprovedAt
		cp.ApprovedAt = &t
	}
	cp.Posts = make([]models.ScheduledPost, len(cs.Posts))
	for i := range cs.Posts {
		cp.Posts[i] = *clonePost(&cs.Posts[i])
	}
	return &cp
}
