package adapter

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the channel adapters keyed by channel id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

func (r *Registry) Register(a Adapter) error {
	channelID := a.ChannelID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[channelID]; exists {
		return fmt.Errorf("adapter for channel %s already registered", channelID)
	}
	r.adapters[channelID] = a

	r.logger.Info("Channel adapter registered", zap.String("channel_id", channelID))
	return nil
}

func (r *Registry) Get(channelID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, exists := r.adapters[channelID]
	if !exists {
		return nil, fmt.Errorf("adapter for channel %s not found", channelID)
	}
	return a, nil
}

// Channels lists the registered channel ids.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id := range r.adapters {
		out = append(out, id)
	}
	return out
}
