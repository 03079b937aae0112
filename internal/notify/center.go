package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/picrate/picrate/internal/ops"
	"github.com/picrate/picrate/internal/protocol"
)

// Notification records one externally-pushed feed update. Immutable
// once created except for the Read flag.
type Notification struct {
	ID          string
	Feed        protocol.Feed
	LatestEntry protocol.FeedEntry
	CreatedAt   time.Time
	Read        bool
}

// ToastFunc surfaces a transient notification. It receives the same
// Notification value held in the list, so acting on either surfaces
// the same target item.
type ToastFunc func(Notification)

// Center converts externally-pushed feed updates into an ordered,
// most-recent-first notification list with unread tracking and a
// transient toast hook. Self-initiated feed replies never reach it.
type Center struct {
	mu            sync.RWMutex
	notifications []*Notification
	unread        int

	toast  ToastFunc
	logger *ops.Logger
}

// NewCenter creates a notification center.
func NewCenter(logger *ops.Logger) *Center {
	if logger == nil {
		logger = ops.Default()
	}
	return &Center{
		logger: logger.WithComponent("notify"),
	}
}

// SetToastFunc registers the transient surfacing hook. The hook runs
// once per qualifying push, synchronously on the dispatch path.
func (c *Center) SetToastFunc(fn ToastFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toast = fn
}

// OnFeedUpdate creates one notification for an externally-pushed feed
// update, inserts it at the head of the list, and fires the toast.
// Pushes with no entries produce nothing.
func (c *Center) OnFeedUpdate(f protocol.Feed) (Notification, bool) {
	latest := f.LatestEntry()
	if latest == nil {
		return Notification{}, false
	}

	n := &Notification{
		ID:          uuid.NewString(),
		Feed:        f,
		LatestEntry: *latest,
		CreatedAt:   time.Now(),
	}

	c.mu.Lock()
	c.notifications = append([]*Notification{n}, c.notifications...)
	c.unread++
	toast := c.toast
	snapshot := *n
	c.mu.Unlock()

	c.logger.Info("feed update notification",
		"filename", f.ImageFilename,
		"user", latest.UserName,
		"rating", latest.Rating)

	if toast != nil {
		toast(snapshot)
	}
	return snapshot, true
}

// MarkRead marks one notification read. Idempotent: marking an
// already-read or unknown id leaves the unread count untouched.
func (c *Center) MarkRead(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.notifications {
		if n.ID == id {
			if !n.Read {
				n.Read = true
				c.unread--
			}
			return
		}
	}
}

// MarkAllRead marks every notification read and zeroes the unread
// count.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.notifications {
		n.Read = true
	}
	c.unread = 0
}

// ClearAll empties the notification list.
func (c *Center) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = nil
	c.unread = 0
}

// UnreadCount returns the number of unread notifications. Always
// equals the count of entries with Read == false.
func (c *Center) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// Count returns the total number of notifications.
func (c *Center) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.notifications)
}

// Notifications returns a snapshot of the list, most recent first.
func (c *Center) Notifications() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Notification, len(c.notifications))
	for i, n := range c.notifications {
		out[i] = *n
	}
	return out
}
