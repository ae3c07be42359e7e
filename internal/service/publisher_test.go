package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/service/adapter"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockAdapter records deliveries and returns a scripted outcome.
type mockAdapter struct {
	mu        sync.Mutex
	channelID string
	delivered []string
	err       error
	result    *adapter.DeliveryResult
}

func newMockAdapter(channelID string) *mockAdapter {
	return &mockAdapter{
		channelID: channelID,
		result:    &adapter.DeliveryResult{Delivered: true},
	}
}

func (a *mockAdapter) ChannelID() string { return a.channelID }

func (a *mockAdapter) Deliver(ctx context.Context, post *models.ScheduledPost) (*adapter.DeliveryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.delivered = append(a.delivered, post.ID)
	return a.result, nil
}

func (a *mockAdapter) deliveredIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.delivered...)
}

func newTestPublisher(t *testing.T, clock Clock, adapters ...adapter.Adapter) (*PublishService, *ScheduleStore) {
	t.Helper()
	logger := zap.NewNop()
	store := NewScheduleStore(nil, logger)
	registry := adapter.NewRegistry(logger)
	for _, a := range adapters {
		if err := registry.Register(a); err != nil {
			t.Fatalf("Register(%s): %v", a.ChannelID(), err)
		}
	}
	return NewPublishService(store, registry, clock, logger, 15*time.Minute, time.Second), store
}

func TestPublishSuccess(t *testing.T) {
	clock := &fakeClock{now: at(9, 0)}
	mock := newMockAdapter("twitter")
	mock.result = &adapter.DeliveryResult{
		Delivered: true,
		Metrics:   &models.PostMetrics{Impressions: 250, Clicks: 12},
	}
	svc, store := newTestPublisher(t, clock, mock)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	if err := svc.Publish(context.Background(), "post_1"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusPublished {
		t.Errorf("status = %s, want published", post.Status)
	}
	if post.PublishedAt == nil || !post.PublishedAt.Equal(at(9, 0)) {
		t.Errorf("publishedAt = %v", post.PublishedAt)
	}
	if post.Metrics == nil || post.Metrics.Impressions != 250 {
		t.Errorf("metrics = %+v, want adapter-reported metrics", post.Metrics)
	}
	if got := mock.deliveredIDs(); len(got) != 1 || got[0] != "post_1" {
		t.Errorf("delivered = %v", got)
	}
}

func TestPublishFailureReArmsPost(t *testing.T) {
	clock := &fakeClock{now: at(9, 0)}
	mock := newMockAdapter("twitter")
	mock.err = errors.New("connection refused")
	svc, store := newTestPublisher(t, clock, mock)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	if err := svc.Publish(context.Background(), "post_1"); err == nil {
		t.Fatal("expected delivery error")
	}

	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusScheduled {
		t.Fatalf("status = %s, want re-armed scheduled", post.Status)
	}
	if post.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", post.RetryCount)
	}
	if want := at(9, 15); !post.ScheduledFor.Equal(want) {
		t.Errorf("scheduledFor = %s, want %s", post.ScheduledFor, want)
	}
	if post.PublishedAt != nil {
		t.Error("publishedAt must be cleared on failure")
	}
	if post.Error != "connection refused" {
		t.Errorf("error = %q", post.Error)
	}
}

func TestPublishExhaustsRetryBudget(t *testing.T) {
	clock := &fakeClock{now: at(9, 0)}
	mock := newMockAdapter("twitter")
	mock.err = errors.New("boom")
	svc, store := newTestPublisher(t, clock, mock)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	for attempt := 1; attempt <= models.MaxPublishRetries; attempt++ {
		if err := svc.Publish(context.Background(), "post_1"); err == nil {
			t.Fatalf("attempt %d: expected error", attempt)
		}
		clock.Advance(15 * time.Minute)
	}

	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusFailed {
		t.Fatalf("status = %s, want terminally failed", post.Status)
	}
	if post.RetryCount != models.MaxPublishRetries {
		t.Errorf("retryCount = %d, want %d", post.RetryCount, models.MaxPublishRetries)
	}

	// The budget is spent; a further publish attempt must not resurrect it.
	lastScheduledFor := post.ScheduledFor
	if err := svc.Publish(context.Background(), "post_1"); err != nil {
		t.Fatalf("publish of failed post should be a silent release, got %v", err)
	}
	post, _ = store.GetPost("post_1")
	if post.Status != models.PostStatusFailed || !post.ScheduledFor.Equal(lastScheduledFor) {
		t.Error("terminally failed post was mutated by a later publish attempt")
	}
}

func TestPublishRejectedByAdapter(t *testing.T) {
	clock := &fakeClock{now: at(9, 0)}
	mock := newMockAdapter("twitter")
	mock.result = &adapter.DeliveryResult{Delivered: false, Reason: "rate limited"}
	svc, store := newTestPublisher(t, clock, mock)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	if err := svc.Publish(context.Background(), "post_1"); err == nil {
		t.Fatal("expected rejection error")
	}

	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusScheduled {
		t.Errorf("status = %s, want re-armed scheduled", post.Status)
	}
	if post.Error != "rate limited" {
		t.Errorf("error = %q, want adapter reason", post.Error)
	}
}

func TestPublishCancelledPostIsReleased(t *testing.T) {
	clock := &fakeClock{now: at(9, 0)}
	mock := newMockAdapter("twitter")
	svc, store := newTestPublisher(t, clock, mock)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	store.CancelPost("post_1")

	if err := svc.Publish(context.Background(), "post_1"); err != nil {
		t.Fatalf("Publish of cancelled post: %v", err)
	}
	if got := mock.deliveredIDs(); len(got) != 0 {
		t.Errorf("adapter called for a cancelled post: %v", got)
	}
	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusCancelled {
		t.Errorf("status = %s, want cancelled", post.Status)
	}
}

func TestPublishUnknownChannelAdapter(t *testing.T) {
	clock := &fakeClock{now: at(9, 0)}
	svc, store := newTestPublisher(t, clock) // no adapters registered
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "ghost", ScheduledFor: at(9, 0)})

	if err := svc.Publish(context.Background(), "post_1"); err == nil {
		t.Fatal("expected missing adapter error")
	}

	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusScheduled || post.RetryCount != 1 {
		t.Errorf("post = status %s retries %d, want re-armed with one retry",
			post.Status, post.RetryCount)
	}
}
