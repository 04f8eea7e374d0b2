// Package events fans out dashboard change notifications through Redis Pub/Sub.
// The API publishes candidate mutations, the worker publishes finished exports,
// and every connected admin WebSocket forwards them so clients can refetch.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// AdminChannel is the Pub/Sub channel every admin connection subscribes to.
const AdminChannel = "admin_notify:candidates"

// Event types.
const (
	TypeCandidateCreated = "candidate.created"
	TypeCandidateDeleted = "candidate.deleted"
	TypeExportFinished   = "export.finished"
)

// Event is the JSON message delivered to dashboard clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	At   int64  `json:"at"`
}

// Publisher is satisfied by *redis.Client and redis.UniversalClient.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publish sends an event on AdminChannel. A nil publisher is a no-op.
func Publish(ctx context.Context, pub Publisher, eventType string, data any) error {
	if pub == nil {
		return nil
	}
	payload, err := json.Marshal(Event{Type: eventType, Data: data, At: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if err := pub.Publish(ctx, AdminChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Subscriber is satisfied by *redis.Client and redis.UniversalClient.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// IsCandidateMutation reports whether the event changes the candidate listing.
func (e Event) IsCandidateMutation() bool {
	return e.Type == TypeCandidateCreated || e.Type == TypeCandidateDeleted
}

// Decode parses one Pub/Sub payload.
func Decode(payload string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return evt, nil
}

// Watch subscribes to AdminChannel and calls handle for every event until ctx
// is done. It returns once the subscription is confirmed; consumption runs in
// its own goroutine.
func Watch(ctx context.Context, sub Subscriber, logger *slog.Logger, handle func(Event)) error {
	pubsub := sub.Subscribe(ctx, AdminChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", AdminChannel, err)
	}
	go func() {
		defer pubsub.Close()
		Consume(ctx, pubsub.Channel(), logger, handle)
	}()
	return nil
}

// Consume drains msgs until ctx is done or msgs is closed. Undecodable
// payloads are logged and skipped.
func Consume(ctx context.Context, msgs <-chan *redis.Message, logger *slog.Logger, handle func(Event)) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			evt, err := Decode(msg.Payload)
			if err != nil {
				logger.Warn("skipping admin event", slog.String("channel", msg.Channel), slog.Any("error", err))
				continue
			}
			handle(evt)
		}
	}
}
