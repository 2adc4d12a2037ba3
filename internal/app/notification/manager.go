// Package notification provides the notification manager for broadcasting
// playback events to remote subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuedeck/internal/app/playback"
)

// sendTimeout bounds a single subscriber send.
const sendTimeout = 500 * time.Millisecond

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*structpb.Struct) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Broadcast sends a playback event to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
// Subscribers whose stream fails are dropped.
func (m *Manager) Broadcast(ev playback.Event) error {
	msg, err := Encode(m.NextSequenceNo(), ev)
	if err != nil {
		return err
	}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(msg)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed, dropping subscriber: id=%s err=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: id=%s", s.id)
			}
		}(sub)
	}

	wg.Wait()
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

// Encode converts a playback event to its wire form. Optional fields are
// omitted when empty.
func Encode(sequenceNo uint64, ev playback.Event) (*structpb.Struct, error) {
	fields := map[string]any{
		"sequence_no": sequenceNo,
		"type":        ev.Type.String(),
		"cue_id":      ev.CueID,
	}
	switch ev.Type {
	case playback.EventStatus:
		fields["status"] = string(ev.Status)
		if ev.Details != "" {
			fields["details"] = ev.Details
		}
	case playback.EventTimeUpdate:
		fields["position_ms"] = ev.Position.Milliseconds()
		fields["duration_ms"] = ev.Duration.Milliseconds()
		fields["remaining_ms"] = ev.Remaining.Milliseconds()
	case playback.EventDurationDiscovered:
		fields["duration_ms"] = ev.Duration.Milliseconds()
	}
	if ev.InstanceID != "" {
		fields["instance_id"] = ev.InstanceID
	}
	if ev.ItemID != "" {
		fields["item_id"] = ev.ItemID
	}
	if ev.ItemName != "" {
		fields["item_name"] = ev.ItemName
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode notification")
	}
	return msg, nil
}
