package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/models"
)

// StatsUpdater persists daily per-channel rollups on a timer so dashboards can
// query history without walking every campaign.
type StatsUpdater struct {
	store  *ScheduleStore
	db     *gorm.DB
	clock  Clock
	logger *zap.Logger
	ticker *time.Ticker
	done   chan bool
}

func NewStatsUpdater(store *ScheduleStore, db *gorm.DB, clock Clock, logger *zap.Logger, interval time.Duration) *StatsUpdater {
	return &StatsUpdater{
		store:  store,
		db:     db,
		clock:  clock,
		logger: logger,
		ticker: time.NewTicker(interval),
		done:   make(chan bool),
	}
}

// Start begins the periodic stats update process
func (s *StatsUpdater) Start(ctx context.Context) {
	go func() {
		s.logger.Info("Starting stats updater")
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.updateStats()
			}
		}
	}()
}

// Stop stops the stats updater
func (s *StatsUpdater) Stop() {
	s.ticker.Stop()
	close(s.done)
}

func (s *StatsUpdater) updateStats() {
	s.logger.Debug("Updating channel statistics")

	today := s.clock.Now().Truncate(24 * time.Hour)
	rollups := s.ChannelRollups()

	for channelID, r := range rollups {
		var stats models.ChannelStats
		result := s.db.Where("date = ? AND channel_id = ?", today, channelID).First(&stats)

		if result.Error == gorm.ErrRecordNotFound {
			stats = models.ChannelStats{
				Date:           today,
				ChannelID:      channelID,
				TotalPosts:     r.TotalPosts,
				PublishedPosts: r.Published,
				FailedPosts:    r.Failed,
				ScheduledPosts: r.Scheduled,
				CancelledPosts: r.Cancelled,
				Impressions:    r.Metrics.Impressions,
				Clicks:         r.Metrics.Clicks,
				Engagements:    r.Metrics.Engagements,
				Shares:         r.Metrics.Shares,
			}
			if err := s.db.Create(&stats).Error; err != nil {
				s.logger.Error("Failed to create channel stats",
					zap.String("channel_id", channelID), zap.Error(err))
			}
			continue
		}

		updates := map[string]interface{}{
			"total_posts":     r.TotalPosts,
			"published_posts": r.Published,
			"failed_posts":    r.Failed,
			"scheduled_posts": r.Scheduled,
			"cancelled_posts": r.Cancelled,
			"impressions":     r.Metrics.Impressions,
			"clicks":          r.Metrics.Clicks,
			"engagements":     r.Metrics.Engagements,
			"shares":          r.Metrics.Shares,
		}
		if err := s.db.Model(&stats).Updates(updates).Error; err != nil {
			s.logger.Error("Failed to update channel stats",
				zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	s.logger.Debug("Channel statistics updated", zap.Int("channels", len(rollups)))
}

// ChannelRollup accumulates post counters for one channel id.
type ChannelRollup struct {
	TotalPosts int
	Published  int
	Failed     int
	Scheduled  int
	Cancelled  int
	Metrics    models.PostMetrics
}

// ChannelRollups walks a store snapshot and aggregates per channel id.
func (s *StatsUpdater) ChannelRollups() map[string]*ChannelRollup {
	rollups := make(map[string]*ChannelRollup)

	for _, cs := range s.store.Snapshot() {
		for i := range cs.Posts {
			p := &cs.Posts[i]
			r := rollups[p.ChannelID]
			if r == nil {
				r = &ChannelRollup{}
				rollups[p.ChannelID] = r
			}
			r.TotalPosts++
			switch p.Status {
			case models.PostStatusPublished:
				r.Published++
				if p.Metrics != nil {
					r.Metrics.Impressions += p.Metrics.Impressions
					r.Metrics.Clicks += p.Metrics.Clicks
					r.Metrics.Engagements += p.Metrics.Engagements
					r.Metrics.Shares += p.Metrics.Shares
				}
			case models.PostStatusFailed:
				r.Failed++
			case models.PostStatusScheduled:
				r.Scheduled++
			case models.PostStatusCancelled:
				r.Cancelled++
			}
		}
	}

	return rollups
}
