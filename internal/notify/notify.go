// Package notify carries soft, user-facing notifications (toasts) from the
// workflow to whatever presents them.
package notify

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// Topic is the event bus topic every notification is published on.
const Topic = "lesioncheck:notification"

// Kind identifies a notification.
type Kind string

const (
	KindAnalysisComplete  Kind = "analysis_complete"
	KindAnalysisDemo      Kind = "analysis_demo"
	KindInvalidFormat     Kind = "invalid_format"
	KindTooLarge          Kind = "too_large"
	KindCameraUnavailable Kind = "camera_unavailable"
	KindEmptySelection    Kind = "empty_selection"
	KindNoImage           Kind = "no_image"
	KindConsentRequired   Kind = "consent_required"
)

// Notification is one message for the user. Destructive marks errors and the
// demo fallback.
type Notification struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Reason      string    `json:"reason,omitempty"`
	Destructive bool      `json:"destructive"`
	At          time.Time `json:"at"`
}

// Bus publishes notifications to synchronous subscribers.
type Bus struct {
	bus evbus.Bus
	now func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{bus: evbus.New(), now: time.Now}
}

// Notify stamps n and delivers it to every subscriber.
func (b *Bus) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = b.now().UTC()
	}
	b.bus.Publish(Topic, n)
}

// Subscribe registers fn for every future notification.
func (b *Bus) Subscribe(fn func(Notification)) error {
	return b.bus.Subscribe(Topic, fn)
}

// Inbox keeps the most recent notifications for polling clients.
type Inbox struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

// NewInbox returns an inbox holding at most limit notifications.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 20
	}
	return &Inbox{limit: limit}
}

// Attach subscribes the inbox to b.
func (in *Inbox) Attach(b *Bus) error {
	return b.Subscribe(in.add)
}

func (in *Inbox) add(n Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = append(in.items, n)
	if over := len(in.items) - in.limit; over > 0 {
		in.items = append([]Notification(nil), in.items[over:]...)
	}
}

// Recent returns the retained notifications, oldest first.
func (in *Inbox) Recent() []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Notification, len(in.items))
	copy(out, in.items)
	return out
}

// Drain returns and forgets the retained notifications.
func (in *Inbox) Drain() []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.items
	in.items = nil
	return out
}
