package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/models"
)

// CampaignAnalytics is the per-campaign rollup returned on demand.
type CampaignAnalytics struct {
	CampaignID     string              `json:"campaign_id"`
	TotalPosts     int                 `json:"total_posts"`
	Published      int                 `json:"published"`
	Failed         int                 `json:"failed"`
	Scheduled      int                 `json:"scheduled"`
	Cancelled      int                 `json:"cancelled"`
	SuccessRate    float64             `json:"success_rate"`
	TotalMetrics   models.PostMetrics  `json:"total_metrics"`
	AverageMetrics *models.PostMetrics `json:"average_metrics,omitempty"`
}

// AnalyticsService computes read-only rollups over store snapshots.
type AnalyticsService struct {
	store  *ScheduleStore
	logger *zap.Logger
}

func NewAnalyticsService(store *ScheduleStore, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{store: store, logger: logger}
}

// GetCampaignAnalytics aggregates the current state of one campaign.
// Metrics are summed over published posts that carry them; the average is
// omitted entirely when no published post reported metrics.
func (s *AnalyticsService) GetCampaignAnalytics(campaignID string) (*CampaignAnalytics, error) {
	schedule, ok := s.store.GetSchedule(campaignID)
	if !ok {
		return nil, fmt.Errorf("campaign %s not found", campaignID)
	}

	out := &CampaignAnalytics{CampaignID: campaignID}
	withMetrics := 0

	for i := range schedule.Posts {
		p := &schedule.Posts[i]
		out.TotalPosts++
		switch p.Status {
		case models.PostStatusPublished:
			out.Published++
			if p.Metrics != nil {
				withMetrics++
				out.TotalMetrics.Impressions += p.Metrics.Impressions
				out.TotalMetrics.Clicks += p.Metrics.Clicks
				out.TotalMetrics.Engagements += p.Metrics.Engagements
				out.TotalMetrics.Shares += p.Metrics.Shares
			}
		case models.PostStatusFailed:
			out.Failed++
		case models.PostStatusScheduled:
			out.Scheduled++
		case models.PostStatusCancelled:
			out.Cancelled++
		}
	}

	if out.TotalPosts > 0 {
		out.SuccessRate = float64(out.Published) / float64(out.TotalPosts) * 100
	}

	if withMetrics > 0 {
		out.AverageMetrics = &models.PostMetrics{
			Impressions: out.TotalMetrics.Impressions / int64(withMetrics),
			Clicks:      out.TotalMetrics.Clicks / int64(withMetrics),
			Engagements: out.TotalMetrics.Engagements / int64(withMetrics),
			Shares:      out.TotalMetrics.Shares / int64(withMetrics),
		}
	}

	return out, nil
}
