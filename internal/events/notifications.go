package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationKind tags a Notification by what happened.
type NotificationKind string

const (
	NotificationStateChanged     NotificationKind = "state_changed"
	NotificationTickAdvanced     NotificationKind = "tick_advanced"
	NotificationTimeRangeChanged NotificationKind = "time_range_changed"
	NotificationTalkerAdded      NotificationKind = "talker_added"
	NotificationTalkerRemoved    NotificationKind = "talker_removed"
	NotificationTalkerRenamed    NotificationKind = "talker_renamed"
	NotificationTalkerChanged    NotificationKind = "talker_changed"
	NotificationSelectionChanged NotificationKind = "selection_changed"
	NotificationError            NotificationKind = "error"
	NotificationSessionNew       NotificationKind = "session_new"
	NotificationSessionLoaded    NotificationKind = "session_loaded"
	NotificationSessionSaved     NotificationKind = "session_saved"
)

// Notification is a single tagged event delivered to observers of the bus.
// Payload holds kind-specific data (a State value, a talker id, an error,
// ...); observers type-switch on Kind before reading it.
type Notification struct {
	ID        string
	Kind      NotificationKind
	Payload   any
	Timestamp time.Time
}

// Bus fans out Notifications to every subscribed observer callback.
// Publish calls each observer synchronously on the publishing goroutine;
// publishers include the control surface's HTTP handlers, which run on
// their own request goroutines. The observer map is guarded by a mutex,
// so Subscribe, Unsubscribe and Publish may be called concurrently.
type Bus struct {
	mu        sync.RWMutex
	observers map[string]func(Notification)
}

// NewBus creates an empty notification bus.
func NewBus() *Bus {
	return &Bus{observers: make(map[string]func(Notification))}
}

// Subscribe registers an observer's callback under name, replacing any
// previous subscription with the same name.
func (b *Bus) Subscribe(name string, callback func(Notification)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[name] = callback
}

// Unsubscribe removes an observer.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.observers, name)
}

// Publish delivers a notification of the given kind to every observer,
// stamping it with a fresh id and timestamp.
func (b *Bus) Publish(kind NotificationKind, payload any) {
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	observers := make([]func(Notification), 0, len(b.observers))
	for _, cb := range b.observers {
		observers = append(observers, cb)
	}
	b.mu.RUnlock()

	for _, cb := range observers {
		cb(n)
	}
}
