package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/service/adapter"
)

// Adapter delivers posts by POSTing them as JSON to a per-channel webhook.
type Adapter struct {
	logger    *zap.Logger
	client    *http.Client
	channelID string
	url       string
	authToken string
}

type deliverRequest struct {
	PostID     string             `json:"post_id"`
	CampaignID string             `json:"campaign_id"`
	Channel    string             `json:"channel"`
	Content    models.PostContent `json:"content"`
}

type deliverResponse struct {
	OK      bool                `json:"ok"`
	Reason  string              `json:"reason,omitempty"`
	Metrics *models.PostMetrics `json:"metrics,omitempty"`
}

func NewAdapter(logger *zap.Logger, channelID, url, authToken string) adapter.Adapter {
	return &Adapter{
		logger:    logger,
		channelID: channelID,
		url:       url,
		authToken: authToken,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *Adapter) ChannelID() string {
	return a.channelID
}

func (a *Adapter) Deliver(ctx context.Context, post *models.ScheduledPost) (*adapter.DeliveryResult, error) {
	payload := deliverRequest{
		PostID:     post.ID,
		CampaignID: post.CampaignID,
		Channel:    a.channelID,
		Content:    post.Content,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode post payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Warn("Webhook delivery rejected",
			zap.String("channel_id", a.channelID),
			zap.String("post_id", post.ID),
			zap.Int("status", resp.StatusCode))
		return &adapter.DeliveryResult{
			Delivered: false,
			Reason:    fmt.Sprintf("webhook returned status %d", resp.StatusCode),
		}, nil
	}

	var decoded deliverResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// A 2xx with an unreadable body still counts as delivered; the
		// endpoint accepted the post, it just reported no metrics.
		return &adapter.DeliveryResult{Delivered: true}, nil
	}

	result := &adapter.DeliveryResult{
		Delivered: decoded.OK,
		Reason:    decoded.Reason,
		Metrics:   decoded.Metrics,
	}

	a.logger.Debug("Webhook delivery completed",
		zap.String("channel_id", a.channelID),
		zap.String("post_id", post.ID),
		zap.Bool("delivered", result.Delivered))

	return result, nil
}
