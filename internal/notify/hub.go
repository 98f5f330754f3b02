// Package notify fans gateway events out to in-process subscribers. Delivery
// is best effort: a subscriber whose channel is full simply misses the
// message, publishers never block and never fail.
package notify

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/user/neuroclaw/internal/flags"
	"github.com/user/neuroclaw/internal/types"
)

// Topics the hub publishes on.
const (
	TopicSuggestionCard     = "neuro.suggestion.card"
	TopicSuggestionFeedback = "neuro.suggestion.feedback"
	TopicFlagsChanged       = "neuro.flags.changed"
)

// Message is one published event. Payload is the already-encoded JSON body.
type Message struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Subscription receives messages until Close is called.
type Subscription struct {
	C    <-chan Message
	hub  *Hub
	ch   chan Message
	once sync.Once
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.ch)
		close(s.ch)
	})
}

// Hub is the in-process broadcast registry. Safe for concurrent use.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Message]bool
	buffer      int
	dropped     int64
}

const defaultBuffer = 64

// NewHub builds a hub. buffer <= 0 selects the default channel depth.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subscribers: make(map[chan Message]bool),
		buffer:      buffer,
	}
}

// Subscribe registers a new listener for all topics.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Message, h.buffer)
	h.mu.Lock()
	h.subscribers[ch] = true
	h.mu.Unlock()
	return &Subscription{C: ch, hub: h, ch: ch}
}

func (h *Hub) unsubscribe(ch chan Message) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

// SubscriberCount reports the number of attached subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped reports how many messages were discarded because a subscriber
// channel was full.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Publish encodes body and delivers it to every subscriber that has room.
func (h *Hub) Publish(topic string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Warn("notify payload encode failed", "topic", topic, "error", err)
		return
	}
	msg := Message{Topic: topic, Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.dropped++
			slog.Debug("notify subscriber slow, message dropped", "topic", topic)
		}
	}
}

// CardUpsert announces a new or replaced suggestion card.
func (h *Hub) CardUpsert(card types.SuggestionCard) {
	h.Publish(TopicSuggestionCard, map[string]any{
		"op":   "upsert",
		"card": card,
	})
}

// CardRemove announces that a card is gone.
func (h *Hub) CardRemove(sessionKey types.SessionKey, suggestionID types.SuggestionID) {
	h.Publish(TopicSuggestionCard, map[string]any{
		"op":           "remove",
		"sessionKey":   sessionKey,
		"suggestionId": suggestionID,
	})
}

// Feedback announces a recorded suggestion feedback event.
func (h *Hub) Feedback(feedback types.SuggestionFeedback) {
	h.Publish(TopicSuggestionFeedback, feedback)
}

// FlagsChanged announces a new flag snapshot.
func (h *Hub) FlagsChanged(snapshot flags.Snapshot) {
	h.Publish(TopicFlagsChanged, snapshot)
}
