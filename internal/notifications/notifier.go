// Package notifications publishes campaign lifecycle events over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"fundsphere/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Campaign event channels.
const (
	CampaignChannelPrefix = "campaigns:events:"
	CampaignChannelGlob   = CampaignChannelPrefix + "*"
)

// Campaign event types.
const (
	EventCampaignPublished = "campaign.published"
	EventMediaAttached     = "campaign.media_attached"
	EventDraftsPurged      = "campaign.drafts_purged"
)

// CampaignEvent is the payload published for every lifecycle change.
type CampaignEvent struct {
	Type       string    `json:"type"`
	CampaignID string    `json:"campaign_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	Affected   int64     `json:"affected,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier publishes campaign events into Redis channels. A Notifier with a
// nil client drops every event.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// CampaignChannel derives the Redis channel name for an event type.
func CampaignChannel(eventType string) string {
	return CampaignChannelPrefix + eventType
}

// PublishCampaignEvent sends ev to the channel of its type.
func (n *Notifier) PublishCampaignEvent(ctx context.Context, ev CampaignEvent) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal campaign event: %w", err)
	}
	return n.rdb.Publish(ctx, CampaignChannel(ev.Type), payload).Err()
}

// StartCampaignSubscriber subscribes to every campaign event channel and
// calls onEvent for each decoded event until ctx is cancelled. Payloads that
// fail to decode are logged and skipped.
func (n *Notifier) StartCampaignSubscriber(ctx context.Context, onEvent func(CampaignEvent)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, CampaignChannelGlob)
	// Wait for the subscription to be confirmed so events published right
	// after this call are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe campaign events: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev CampaignEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					middleware.Logger.Warn("dropping malformed campaign event",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in campaign event handler",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onEvent(ev)
				}()
			}
		}
	}()

	return nil
}
