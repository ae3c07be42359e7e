package adapter

import (
	"context"

	"github.com/cadencehq/cadence/internal/models"
)

// DeliveryResult is the outcome reported by a channel adapter. Metrics are
// optional and opaque to the scheduler; it never computes them itself.
type DeliveryResult struct {
	Delivered bool                `json:"delivered"`
	Reason    string              `json:"reason,omitempty"`
	Metrics   *models.PostMetrics `json:"metrics,omitempty"`
}

// Adapter delivers one post to a concrete channel. This is the only network
// boundary the publish service depends on; a timeout or transport error is
// treated the same as an adapter-reported failure.
type Adapter interface {
	ChannelID() string
	Deliver(ctx context.Context, post *models.ScheduledPost) (*DeliveryResult, error)
}
