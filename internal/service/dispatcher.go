package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher is the periodic loop that scans auto-publish campaigns and hands
// due posts to the publish service. It performs no retries itself; failed
// posts are re-armed by the publish service and picked up on a later tick.
type Dispatcher struct {
	store     *ScheduleStore
	publisher *PublishService
	clock     Clock
	logger    *zap.Logger
	tick      time.Duration
	tolerance time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
}

func NewDispatcher(store *ScheduleStore, publisher *PublishService, clock Clock, logger *zap.Logger, tick, tolerance time.Duration) *Dispatcher {
	if tick <= 0 {
		tick = time.Minute
	}
	if tolerance <= 0 {
		tolerance = 2 * time.Minute
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		tick:      tick,
		tolerance: tolerance,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the dispatch loop in a background goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ticker = time.NewTicker(d.tick)

	d.logger.Info("Starting dispatcher",
		zap.Duration("tick", d.tick),
		zap.Duration("tolerance", d.tolerance))

	go func() {
		for {
			select {
			case <-d.ticker.C:
				d.runTick(ctx)
			case <-d.stopCh:
				d.logger.Info("Dispatcher stopped")
				return
			case <-ctx.Done():
				d.logger.Info("Dispatcher context cancelled")
				return
			}
		}
	}()
}

// Stop halts the loop; a publish already in flight runs to completion.
func (d *Dispatcher) Stop() {
	if d.ticker != nil {
		d.ticker.Stop()
	}
	close(d.stopCh)
}

// runTick dispatches every due post in ascending scheduled order. A single
// post's failure is recorded on the post and never aborts the scan.
func (d *Dispatcher) runTick(ctx context.Context) {
	now := d.clock.Now()
	due := d.store.DuePosts(now, d.tolerance)
	if len(due) == 0 {
		return
	}

	d.logger.Debug("Dispatching due posts", zap.Int("count", len(due)))

	published := 0
	for _, dp := range due {
		if ctx.Err() != nil {
			return
		}
		if err := d.publisher.Publish(ctx, dp.PostID); err != nil {
			d.logger.Error("Dispatch failed",
				zap.String("campaign_id", dp.CampaignID),
				zap.String("post_id", dp.PostID),
				zap.String("channel_id", dp.ChannelID),
				zap.Error(err))
			continue
		}
		published++
	}

	d.logger.Info("Dispatch tick completed",
		zap.Int("due", len(due)),
		zap.Int("published", published))
}
