package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/service/adapter"
)

// PublishService delivers one post through its channel adapter and applies the
// retry policy. The post is flipped to published before the adapter call and
// reverted on failure; the flip happens inside the store's campaign lock, so a
// concurrent reader never sees a half-applied transition.
type PublishService struct {
	store           *ScheduleStore
	adapters        *adapter.Registry
	clock           Clock
	logger          *zap.Logger
	retryDelay      time.Duration
	deliveryTimeout time.Duration
}

func NewPublishService(store *ScheduleStore, adapters *adapter.Registry, clock Clock, logger *zap.Logger, retryDelay, deliveryTimeout time.Duration) *PublishService {
	if retryDelay <= 0 {
		retryDelay = 15 * time.Minute
	}
	if deliveryTimeout <= 0 {
		deliveryTimeout = 30 * time.Second
	}
	return &PublishService{
		store:           store,
		adapters:        adapters,
		clock:           clock,
		logger:          logger,
		retryDelay:      retryDelay,
		deliveryTimeout: deliveryTimeout,
	}
}

// Publish claims the post, invokes the adapter and settles the outcome.
// A post that was cancelled or rescheduled since the tick claimed it is
// silently released.
func (s *PublishService) Publish(ctx context.Context, postID string) error {
	post, ok := s.store.MarkPublishing(postID, s.clock.Now())
	if !ok || post.Status != models.PostStatusPublished {
		return nil
	}

	result, err := s.deliver(ctx, &post)
	if err != nil {
		return s.settleFailure(postID, err.Error())
	}
	if !result.Delivered {
		reason := result.Reason
		if reason == "" {
			reason = "delivery rejected by channel adapter"
		}
		return s.settleFailure(postID, reason)
	}

	if result.Metrics != nil {
		s.store.AttachMetrics(postID, result.Metrics)
	}

	s.logger.Info("Post published",
		zap.String("post_id", postID),
		zap.String("channel_id", post.ChannelID),
		zap.Bool("has_metrics", result.Metrics != nil))
	return nil
}

// deliver runs the adapter call outside any store lock so unrelated campaigns
// keep making progress while this post is in flight.
func (s *PublishService) deliver(ctx context.Context, post *models.ScheduledPost) (*adapter.DeliveryResult, error) {
	adp, err := s.adapters.Get(post.ChannelID)
	if err != nil {
		return nil, err
	}

	deliverCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	result, err := adp.Deliver(deliverCtx, post)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("adapter for channel %s returned no result", post.ChannelID)
	}
	return result, nil
}

func (s *PublishService) settleFailure(postID, reason string) error {
	post, ok := s.store.MarkFailed(postID, reason, s.clock.Now(), s.retryDelay)
	if !ok {
		return fmt.Errorf("post %s vanished while settling failure", postID)
	}

	if post.Status == models.PostStatusScheduled {
		s.logger.Warn("Post delivery failed, re-armed for retry",
			zap.String("post_id", postID),
			zap.String("reason", reason),
			zap.Int("retry_count", post.RetryCount),
			zap.Time("next_attempt", post.ScheduledFor))
	} else {
		s.logger.Error("Post delivery failed permanently",
			zap.String("post_id", postID),
			zap.String("reason", reason),
			zap.Int("retry_count", post.RetryCount))
	}

	return fmt.Errorf("delivery of post %s failed: %s", postID, reason)
}
