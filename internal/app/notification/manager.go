// Package notification provides the notification manager for broadcasting
// playback and render events to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind represents a notification kind.
type Kind int

const (
	KindRenderProgress    Kind = iota // Composer render percent-complete update
	KindExternalError                 // Non-fatal renderer/composer command failure
	KindPlaybackCompleted             // Playback reached the end of the timeline
	KindInfo                          // Informational message
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRenderProgress:
		return "render_progress"
	case KindExternalError:
		return "external_error"
	case KindPlaybackCompleted:
		return "playback_completed"
	case KindInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Notification is a sequence-numbered message delivered to subscribers.
type Notification struct {
	SequenceNo uint64
	Kind       Kind
	Message    string
	Percent    int // Meaningful for KindRenderProgress only
	At         time.Time
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
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

// Broadcast sends a notification to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (m *Manager) Broadcast(kind Kind, message string, percent int) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	currentSequenceNo := m.sequenceNo
	m.sequenceNoMu.Unlock()

	n := &Notification{
		SequenceNo: currentSequenceNo,
		Kind:       kind,
		Message:    message,
		Percent:    percent,
		At:         time.Now(),
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
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
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					// Subscription will be cleaned up on next failure
				}
			case <-ctx.Done():
				// Timeout - continue to next subscriber
			}
		}(sub)
	}
	wg.Wait()
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
