package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	audit "mfrid/pkg/platform/audit"
)

const eventField = "event"

// StreamStore appends audit events to a capped Redis stream so downstream
// collectors can consume them with XREAD or a consumer group.
type StreamStore struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewStreamStore writes to stream, trimming it to roughly maxLen entries.
func NewStreamStore(client redis.UniversalClient, stream string, maxLen int64) *StreamStore {
	return &StreamStore{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamStore) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"action":   string(event.Action),
			"category": string(event.Category),
			eventField: payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// ListRecent reads the newest limit entries and returns them oldest first.
func (s *StreamStore) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	var (
		msgs []redis.XMessage
		err  error
	)
	if limit > 0 {
		msgs, err = s.client.XRevRangeN(ctx, s.stream, "+", "-", int64(limit)).Result()
	} else {
		msgs, err = s.client.XRevRange(ctx, s.stream, "+", "-").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", s.stream, err)
	}

	events := make([]audit.Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values[eventField].(string)
		if !ok {
			continue
		}
		var event audit.Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", msg.ID, err)
		}
		events = append(events, event)
	}
	slices.Reverse(events)
	return events, nil
}
