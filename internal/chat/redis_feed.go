package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/placehive/placehive-backend/internal/models"
	"github.com/placehive/placehive-backend/pkg/logger"
)

// Channel layout for the three logical feeds. Every event is published to
// the sender feed, the recipient feed (when addressed) and the place feed;
// a subscriber covering overlapping predicates relies on the store's
// id-idempotence rather than on single delivery.
func senderChannel(userID string) string    { return "chat:sender:" + userID }
func recipientChannel(userID string) string { return "chat:recipient:" + userID }
func placeChannel(placeID string) string    { return "chat:place:" + placeID }

// RedisFeed implements both sides of the push channel: Feed for the
// session reconcilers and EventPublisher for the backend adapter.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

const subBuffer = 64

// Subscribe opens one pub/sub subscription covering the user's three
// predicates: messages they sent, messages addressed to them, and messages
// in places they own.
func (f *RedisFeed) Subscribe(ctx context.Context, userID string, ownedPlaces []string) (Subscription, error) {
	channels := []string{senderChannel(userID), recipientChannel(userID)}
	for _, placeID := range ownedPlaces {
		channels = append(channels, placeChannel(placeID))
	}

	pubsub := f.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("chat: redis subscribe: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan PushEvent, subBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(pubsub.Channel())
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan PushEvent
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan PushEvent { return s.events }

func (s *redisSubscription) Close() error {
	// done unblocks a pump stuck on a full events buffer; closing the PubSub
	// ends its range loop, which closes the events channel.
	s.once.Do(func() { close(s.done) })
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

func (s *redisSubscription) pump(msgs <-chan *redis.Message) {
	defer close(s.events)
	for msg := range msgs {
		var ev PushEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn().Err(err).Str("channel", msg.Channel).Msg("Undecodable push payload")
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// --- EventPublisher ---

func (f *RedisFeed) publish(ctx context.Context, ev PushEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	channels := []string{senderChannel(ev.Row.SenderID), placeChannel(ev.Row.PlaceID)}
	if ev.Row.RecipientID != nil {
		channels = append(channels, recipientChannel(*ev.Row.RecipientID))
	}
	for _, ch := range channels {
		if err := f.client.Publish(ctx, ch, data).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (f *RedisFeed) PublishInsert(ctx context.Context, m *models.Message) error {
	return f.publish(ctx, PushEvent{Type: EventInsert, Table: "messages", Row: rowFromMessage(m)})
}

func (f *RedisFeed) PublishUpdate(ctx context.Context, rows []PushRow) error {
	for i := range rows {
		if err := f.publish(ctx, PushEvent{Type: EventUpdate, Table: "messages", Row: rows[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (f *RedisFeed) PublishDelete(ctx context.Context, m *models.Message) error {
	return f.publish(ctx, PushEvent{Type: EventDelete, Table: "messages", Row: PushRow{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		PlaceID:     m.PlaceID,
	}})
}

func rowFromMessage(m *models.Message) PushRow {
	createdAt := m.CreatedAt
	isRead := m.IsRead
	return PushRow{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		PlaceID:     m.PlaceID,
		Content:     m.Content,
		ImageURL:    m.ImageURL,
		AudioURL:    m.AudioURL,
		ProductID:   m.ProductID,
		ReplyToID:   m.ReplyToID,
		EmployeeID:  m.EmployeeID,
		IsRead:      &isRead,
		CreatedAt:   &createdAt,
		ClientID:    m.ClientID,
	}
}
