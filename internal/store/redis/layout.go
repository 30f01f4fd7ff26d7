package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketchart/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	layoutKeyPrefix = "chart:layout:"
	layoutTTL       = 30 * 24 * time.Hour
)

// LayoutStore persists each client's chart layout so a reconnecting client
// gets its view and overlays back.
type LayoutStore struct {
	kv KV
}

// NewLayoutStore creates a LayoutStore.
func NewLayoutStore(kv KV) *LayoutStore {
	return &LayoutStore{kv: kv}
}

// Load returns the saved layout for clientID. ok is false when there is none.
func (s *LayoutStore) Load(ctx context.Context, clientID string) (layout model.Layout, ok bool, err error) {
	data, err := s.kv.Get(ctx, layoutKeyPrefix+clientID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.Layout{}, false, nil
	}
	if err != nil {
		return model.Layout{}, false, fmt.Errorf("redis get layout: %w", err)
	}
	if err := json.Unmarshal(data, &layout); err != nil {
		return model.Layout{}, false, fmt.Errorf("decode layout %s: %w", clientID, err)
	}
	return layout, true, nil
}

// Save stores the layout for clientID, refreshing its expiry.
func (s *LayoutStore) Save(ctx context.Context, clientID string, layout model.Layout) error {
	data, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := s.kv.Set(ctx, layoutKeyPrefix+clientID, data, layoutTTL).Err(); err != nil {
		return fmt.Errorf("redis set layout: %w", err)
	}
	return nil
}
