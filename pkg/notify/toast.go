package notify

import (
	"sync"
	"time"

	"github.com/example/staffops/pkg/models"
)

const (
	// ToastDuration is how long a toast stays on screen
	ToastDuration = 5 * time.Second

	subscriberBuffer = 16
)

// Toast is a transient on-screen notification. It is derived from a
// persisted notification but delivered independently of it: a toast that
// expires or is dropped leaves the persisted record untouched.
type Toast struct {
	Notification models.Notification `json:"notification"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

// ToastCenter fans toasts out to in-process subscribers. Delivery is
// best-effort: a subscriber that cannot keep up loses toasts rather than
// blocking the dispatcher.
type ToastCenter struct {
	mu      sync.RWMutex
	subs    map[int]chan Toast
	nextSub int
	now     func() time.Time
}

// NewToastCenter creates a toast center with no subscribers
func NewToastCenter() *ToastCenter {
	return &ToastCenter{
		subs: make(map[int]chan Toast),
		now:  time.Now,
	}
}

// WithClock overrides the clock, for tests
func (t *ToastCenter) WithClock(now func() time.Time) *ToastCenter {
	t.now = now
	return t
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel; calling it more than once is safe.
func (t *ToastCenter) Subscribe() (<-chan Toast, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.nextSub
	t.nextSub++
	ch := make(chan Toast, subscriberBuffer)
	t.subs[key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, key)
			close(ch)
		})
	}
	return ch, cancel
}

// Push delivers one toast to every subscriber without blocking
func (t *ToastCenter) Push(notification models.Notification) {
	toast := Toast{
		Notification: notification,
		ExpiresAt:    t.now().Add(ToastDuration),
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subs {
		select {
		case ch <- toast:
		default:
		}
	}
}

// Subscribers returns the current subscriber count
func (t *ToastCenter) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
