package server

import (
	"context"
	"sync"
	"time"
)

const (
	// EventResponseCreated notifies a task author that someone responded.
	EventResponseCreated = "response-created"
	eventHeartbeat       = "heartbeat"
)

// Event is a notification addressed to a single user.
type Event struct {
	UserID     string    `json:"-"`
	Type       string    `json:"type"`
	TaskID     string    `json:"taskId,omitempty"`
	ResponseID string    `json:"responseId,omitempty"`
	FromUserID string    `json:"fromUserId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier fans events out to a user's connected event streams. Delivery is
// best effort: slow consumers drop events rather than block publishers, and
// nothing is persisted.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*notifierSubscriber
	nextID      int64
	bufferSize  int
}

type notifierSubscriber struct {
	id     int64
	stream chan Event
}

// NewNotifier constructs an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[string]map[int64]*notifierSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for the user. The returned cleanup function
// unregisters it; cancellation of ctx does the same.
func (n *Notifier) Subscribe(ctx context.Context, userID string) (<-chan Event, func()) {
	if userID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	subscriber := &notifierSubscriber{
		id:     n.nextSequence(),
		stream: make(chan Event, n.bufferSize),
	}
	n.registerSubscriber(userID, subscriber)
	cleanup := func() {
		n.unregisterSubscriber(userID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the event to every stream of its addressee.
func (n *Notifier) Publish(event Event) {
	if event.UserID == "" || event.Type == "" {
		return
	}
	n.mu.RLock()
	subscribers := n.subscribers[event.UserID]
	if len(subscribers) == 0 {
		n.mu.RUnlock()
		return
	}
	copies := make([]*notifierSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	n.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (n *Notifier) nextSequence() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	return n.nextID
}

func (n *Notifier) registerSubscriber(userID string, subscriber *notifierSubscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[userID]; !ok {
		n.subscribers[userID] = make(map[int64]*notifierSubscriber)
	}
	n.subscribers[userID][subscriber.id] = subscriber
}

func (n *Notifier) unregisterSubscriber(userID string, subscriberID int64) {
	n.mu.Lock()
	subscribers := n.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(n.subscribers, userID)
		}
	}
	n.mu.Unlock()
}
