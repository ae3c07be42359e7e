package service

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/models"
)

func newTestStore(t *testing.T) *ScheduleStore {
	t.Helper()
	return NewScheduleStore(nil, zap.NewNop())
}

func seedCampaign(t *testing.T, store *ScheduleStore, campaignID string, autoPublish bool, posts ...models.ScheduledPost) {
	t.Helper()
	for i := range posts {
		posts[i].CampaignID = campaignID
		if posts[i].Status == "" {
			posts[i].Status = models.PostStatusScheduled
		}
	}
	err := store.AddSchedule(&models.CampaignSchedule{
		ID:          campaignID,
		Title:       "seeded " + campaignID,
		StartDate:   date(2026, time.March, 1),
		EndDate:     date(2026, time.March, 31),
		Frequency:   models.FrequencyDaily,
		AutoPublish: autoPublish,
		Posts:       posts,
	})
	if err != nil {
		t.Fatalf("AddSchedule(%s): %v", campaignID, err)
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, time.UTC)
}

func TestCancelPublishedPostIsNoOp(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	if _, ok := store.MarkPublishing("post_1", at(9, 0)); !ok {
		t.Fatal("MarkPublishing failed")
	}

	if !store.CancelPost("post_1") {
		t.Fatal("CancelPost should report the post as found")
	}

	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusPublished {
		t.Errorf("status = %s, cancel must not touch a published post", post.Status)
	}
}

func TestCancelScheduledPost(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	if !store.CancelPost("post_1") {
		t.Fatal("CancelPost failed")
	}
	post, _ := store.GetPost("post_1")
	if post.Status != models.PostStatusCancelled {
		t.Errorf("status = %s, want cancelled", post.Status)
	}

	// Cancelled is terminal: neither edits nor rescheduling apply.
	txt := "edited"
	store.UpdateContent("post_1", models.ContentUpdate{Text: &txt})
	store.ReschedulePost("post_1", at(18, 0))

	post, _ = store.GetPost("post_1")
	if post.Content.Text != "" || !post.ScheduledFor.Equal(at(9, 0)) {
		t.Error("mutations leaked into a cancelled post")
	}
}

func TestUpdateContentPartialEdit(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{
			ID:           "post_1",
			ChannelID:    "twitter",
			ScheduledFor: at(9, 0),
			Content: models.PostContent{
				Text:     "original",
				Title:    "keep me",
				Hashtags: models.StringArray{"#launch"},
			},
		})

	txt := "rewritten"
	if !store.UpdateContent("post_1", models.ContentUpdate{
		Text:     &txt,
		Hashtags: []string{"#launch", "#spring"},
	}) {
		t.Fatal("UpdateContent failed")
	}

	post, _ := store.GetPost("post_1")
	want := models.PostContent{
		Text:     "rewritten",
		Title:    "keep me",
		Hashtags: models.StringArray{"#launch", "#spring"},
	}
	if diff := cmp.Diff(want, post.Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestReschedulePost(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	newTime := at(17, 30)
	if !store.ReschedulePost("post_1", newTime) {
		t.Fatal("ReschedulePost failed")
	}
	post, _ := store.GetPost("post_1")
	if !post.ScheduledFor.Equal(newTime) {
		t.Errorf("scheduledFor = %s, want %s", post.ScheduledFor, newTime)
	}
}

func TestApproveCampaign(t *testing.T) {
	store := newTestStore(t)
	err := store.AddSchedule(&models.CampaignSchedule{
		ID:               "cmp_a",
		Title:            "needs approval",
		RequiresApproval: true,
	})
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}

	now := at(10, 0)
	if !store.ApproveCampaign("cmp_a", "alex", now) {
		t.Fatal("ApproveCampaign failed")
	}

	cs, _ := store.GetSchedule("cmp_a")
	if !cs.AutoPublish {
		t.Error("approval must enable auto-publish")
	}
	if cs.ApprovedBy != "alex" || cs.ApprovedAt == nil || !cs.ApprovedAt.Equal(now) {
		t.Errorf("approval not recorded: by=%q at=%v", cs.ApprovedBy, cs.ApprovedAt)
	}

	// Re-approval overwrites the record.
	later := at(11, 0)
	store.ApproveCampaign("cmp_a", "blair", later)
	cs, _ = store.GetSchedule("cmp_a")
	if cs.ApprovedBy != "blair" || !cs.ApprovedAt.Equal(later) {
		t.Errorf("re-approval not applied: by=%q at=%v", cs.ApprovedBy, cs.ApprovedAt)
	}

	if store.ApproveCampaign("cmp_missing", "alex", now) {
		t.Error("approving an unknown campaign should fail")
	}
}

func TestApproveCampaignWithoutRequirementIsNoOp(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", false)

	if !store.ApproveCampaign("cmp_a", "alex", at(10, 0)) {
		t.Fatal("ApproveCampaign should still report the campaign as found")
	}
	cs, _ := store.GetSchedule("cmp_a")
	if cs.AutoPublish || cs.ApprovedBy != "" {
		t.Error("approval must not change a campaign that does not require it")
	}
}

func TestDuePostsWindowAndOrder(t *testing.T) {
	store := newTestStore(t)
	now := at(12, 0)

	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_early", ChannelID: "twitter", ScheduledFor: now.Add(-10 * time.Minute)},
		models.ScheduledPost{ID: "post_late", ChannelID: "twitter", ScheduledFor: now.Add(-time.Minute)},
		models.ScheduledPost{ID: "post_future", ChannelID: "twitter", ScheduledFor: now.Add(30 * time.Minute)},
		models.ScheduledPost{ID: "post_cancelled", ChannelID: "twitter", ScheduledFor: now, Status: models.PostStatusCancelled},
	)
	// Campaign without auto-publish never yields due posts.
	seedCampaign(t, store, "cmp_manual", false,
		models.ScheduledPost{ID: "post_manual", ChannelID: "twitter", ScheduledFor: now})

	due := store.DuePosts(now, 2*time.Minute)

	var got []string
	for _, d := range due {
		got = append(got, d.PostID)
	}
	if diff := cmp.Diff([]string{"post_late"}, got); diff != "" {
		t.Errorf("due posts mismatch (-want +got):\n%s", diff)
	}
}

func TestDuePostsAscendingOrder(t *testing.T) {
	store := newTestStore(t)
	now := at(12, 0)

	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_b", ChannelID: "twitter", ScheduledFor: now.Add(time.Minute)},
		models.ScheduledPost{ID: "post_a", ChannelID: "twitter", ScheduledFor: now.Add(-time.Minute)},
		models.ScheduledPost{ID: "post_c", ChannelID: "twitter", ScheduledFor: now.Add(2 * time.Minute)},
	)

	due := store.DuePosts(now, 2*time.Minute)

	var got []string
	for _, d := range due {
		got = append(got, d.PostID)
	}
	if diff := cmp.Diff([]string{"post_a", "post_b", "post_c"}, got); diff != "" {
		t.Errorf("due order mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkFailedReArmsUntilBudgetSpent(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	retryDelay := 15 * time.Minute
	now := at(9, 0)

	for attempt := 1; attempt <= models.MaxPublishRetries; attempt++ {
		if _, ok := store.MarkPublishing("post_1", now); !ok {
			t.Fatalf("attempt %d: MarkPublishing failed", attempt)
		}
		post, ok := store.MarkFailed("post_1", "connection refused", now, retryDelay)
		if !ok {
			t.Fatalf("attempt %d: MarkFailed failed", attempt)
		}

		if post.RetryCount != attempt {
			t.Errorf("attempt %d: retryCount = %d", attempt, post.RetryCount)
		}
		if post.PublishedAt != nil {
			t.Errorf("attempt %d: publishedAt not cleared", attempt)
		}

		if attempt < models.MaxPublishRetries {
			if post.Status != models.PostStatusScheduled {
				t.Fatalf("attempt %d: status = %s, want re-armed scheduled", attempt, post.Status)
			}
			if want := now.Add(retryDelay); !post.ScheduledFor.Equal(want) {
				t.Errorf("attempt %d: scheduledFor = %s, want %s", attempt, post.ScheduledFor, want)
			}
			now = post.ScheduledFor
		} else {
			if post.Status != models.PostStatusFailed {
				t.Fatalf("final attempt: status = %s, want failed", post.Status)
			}
			if post.Error != "connection refused" {
				t.Errorf("final attempt: error = %q", post.Error)
			}
		}
	}
}

func TestMarkPublishingClaimsOnce(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	first, ok := store.MarkPublishing("post_1", at(9, 0))
	if !ok || first.Status != models.PostStatusPublished {
		t.Fatalf("first claim: ok=%v status=%s", ok, first.Status)
	}

	// The second claim finds the post but must not re-run the transition;
	// the zero-valued copy signals the claim did not take.
	second, ok := store.MarkPublishing("post_1", at(9, 1))
	if !ok {
		t.Fatal("second claim should still find the post")
	}
	if second.Status == models.PostStatusPublished {
		t.Error("second claim must not return a freshly claimed post")
	}
}

func TestAttachMetricsOnlyOnPublished(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	m := &models.PostMetrics{Impressions: 100, Clicks: 10}
	store.AttachMetrics("post_1", m)
	post, _ := store.GetPost("post_1")
	if post.Metrics != nil {
		t.Error("metrics attached to a post that was never published")
	}

	store.MarkPublishing("post_1", at(9, 0))
	store.AttachMetrics("post_1", m)
	post, _ = store.GetPost("post_1")
	if post.Metrics == nil || post.Metrics.Impressions != 100 {
		t.Errorf("metrics = %+v, want impressions 100", post.Metrics)
	}
}

func TestGetScheduleReturnsDeepCopy(t *testing.T) {
	store := newTestStore(t)
	seedCampaign(t, store, "cmp_a", true,
		models.ScheduledPost{ID: "post_1", ChannelID: "twitter", ScheduledFor: at(9, 0)})

	cs, _ := store.GetSchedule("cmp_a")
	cs.Posts[0].Status = models.PostStatusCancelled
	cs.Posts[0].Content.Text = "mutated"

	fresh, _ := store.GetSchedule("cmp_a")
	if fresh.Posts[0].Status != models.PostStatusScheduled || fresh.Posts[0].Content.Text != "" {
		t.Error("mutating a returned schedule leaked into the store")
	}
}

func TestUnknownPostOperations(t *testing.T) {
	store := newTestStore(t)

	if store.CancelPost("post_missing") {
		t.Error("CancelPost on unknown post should return false")
	}
	if store.ReschedulePost("post_missing", at(9, 0)) {
		t.Error("ReschedulePost on unknown post should return false")
	}
	if _, ok := store.GetPost("post_missing"); ok {
		t.Error("GetPost on unknown post should return false")
	}
}
