package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/picrate/picrate/internal/config"
	"github.com/picrate/picrate/internal/conn"
	"github.com/picrate/picrate/internal/feed"
	"github.com/picrate/picrate/internal/gallery"
	"github.com/picrate/picrate/internal/notify"
	"github.com/picrate/picrate/internal/ops"
	"github.com/picrate/picrate/internal/protocol"
	"github.com/picrate/picrate/internal/router"
	"github.com/picrate/picrate/internal/storage"
)

// Client wires the connection manager, message router, and the local
// stores into one reconciliation engine. All store mutation happens on
// the router dispatch path or in the user-action methods below; the
// stores themselves are safe to read from other goroutines.
type Client struct {
	config *config.Config
	logger *ops.Logger

	conn          *conn.Manager
	router        *router.Router
	feeds         *feed.Store
	gallery       *gallery.Controller
	notifications *notify.Center
	store         *storage.Store
	seen          *storage.SeenSet

	patchTTL time.Duration

	// Set from the first file_list push
	mu         sync.RWMutex
	sessionID  string
	categories []string
}

// New creates a client. The storage backend is passed in so callers
// own its lifecycle.
func New(cfg *config.Config, st *storage.Store, logger *ops.Logger) *Client {
	if logger == nil {
		logger = ops.Default()
	}

	patchTTL := time.Duration(cfg.Feeds.OptimisticTTLMs) * time.Millisecond

	c := &Client{
		config:        cfg,
		logger:        logger.WithComponent("client"),
		conn:          conn.NewManager(&cfg.Connection, logger),
		router:        router.New(logger),
		feeds:         feed.NewStore(patchTTL, logger),
		gallery:       gallery.NewController(cfg.Gallery.PageSize, cfg.AssetURL, logger),
		notifications: notify.NewCenter(logger),
		store:         st,
		patchTTL:      patchTTL,
	}

	c.registerHandlers()
	c.conn.OnMessage(c.router.Dispatch)

	return c
}

func (c *Client) registerHandlers() {
	c.router.Register(protocol.TypeFileList, c.handleFileList)
	c.router.Register(protocol.TypeMoreImages, c.handleMoreImages)
	c.router.Register(protocol.TypeFileListUpdate, c.handleFileListUpdate)
	c.router.Register(protocol.TypeRatingFeedUpdate, c.handleRatingFeedUpdate)
	c.router.Register(protocol.TypeFeedResponse, c.handleFeedResponse)
	c.router.Register(protocol.TypeHeartbeat, c.handleHeartbeat)
	c.router.Register(protocol.TypeText, c.handleText)
}

// Start loads the persisted seen set and opens the channel.
func (c *Client) Start(ctx context.Context) error {
	seen, err := storage.LoadSeenSet(ctx, c.store, c.config.Identity.UserName)
	if err != nil {
		return fmt.Errorf("failed to load seen set: %w", err)
	}
	c.seen = seen

	c.logger.Info("starting client",
		"user", c.config.Identity.UserName,
		"server", c.config.ServerURL(),
		"seen_items", seen.Count())

	c.conn.SetTarget(c.config.ServerURL())
	return nil
}

// Stop closes the channel. The storage backend stays open for the
// caller to close.
func (c *Client) Stop() {
	c.conn.Close()
}

// Message handlers

func (c *Client) handleFileList(msg *protocol.Message) {
	c.mu.Lock()
	if msg.UserID != "" {
		c.sessionID = msg.UserID
	}
	if len(msg.Categories) > 0 {
		c.categories = msg.Categories
	}
	c.mu.Unlock()
	c.gallery.LoadInitial(msg.Files, msg.TotalCount, msg.HasMore)
}

func (c *Client) handleMoreImages(msg *protocol.Message) {
	c.gallery.AppendPage(msg.Files, msg.TotalCount, msg.HasMore)
}

func (c *Client) handleFileListUpdate(msg *protocol.Message) {
	c.gallery.ReplaceAll(msg.Files, msg.TotalCount, msg.HasMore)
	if msg.RemovedFile != "" {
		c.feeds.Evict(msg.RemovedFile)
		c.logger.Info("item removed", "filename", msg.RemovedFile)
	}
}

func (c *Client) handleRatingFeedUpdate(msg *protocol.Message) {
	c.applyFeed(msg.Feed(), true)
}

func (c *Client) handleFeedResponse(msg *protocol.Message) {
	c.applyFeed(msg.Feed(), false)
}

func (c *Client) handleHeartbeat(msg *protocol.Message) {
	c.logger.Debug("heartbeat", "timestamp", msg.Timestamp)
}

func (c *Client) handleText(msg *protocol.Message) {
	c.logger.Debug("plain text message", "content", msg.Content)
}

// applyFeed is the single entry point for both push kinds: replace the
// cached feed wholesale, and raise a notification only for externally
// pushed updates, never for replies to our own feed requests.
func (c *Client) applyFeed(f protocol.Feed, notifyUpdate bool) {
	c.feeds.ReplaceFeed(f)
	c.logger.LogFeedReplace(f.ImageFilename, len(f.Entries), notifyUpdate)

	if notifyUpdate {
		c.notifications.OnFeedUpdate(f)
	}
}

// User actions

// SubmitRating sends an image_rating and installs an optimistic
// override so the just-made choice cannot be reverted by a stale
// server echo. Returns false, with nothing installed, when the
// channel is not open.
func (c *Client) SubmitRating(filename string, rating int, comment, category string) bool {
	if rating < 0 || rating > 5 {
		c.logger.Warn("rating out of range, not sent", "filename", filename, "rating", rating)
		return false
	}

	user := c.config.Identity.UserName
	c.feeds.SetPatch(filename, user, rating, category, c.patchTTL)

	if !c.conn.Send(protocol.NewImageRating(filename, rating, comment, category, user)) {
		c.feeds.ClearPatch(filename)
		return false
	}

	// Cleanup timer; harmless if a server push cleared the patch first.
	time.AfterFunc(c.patchTTL, func() {
		c.feeds.ExpirePatch(filename)
	})
	return true
}

// RequestFeed asks the server for one image's feed. The reply comes
// back as a feed_response and never raises a notification.
func (c *Client) RequestFeed(filename string) bool {
	return c.conn.Send(protocol.NewRequestFeed(filename))
}

// LoadMore requests the next gallery page. No-op when the server has
// no more items or the channel is not open.
func (c *Client) LoadMore() bool {
	req, ok := c.gallery.NextPageRequest()
	if !ok {
		return false
	}
	return c.conn.Send(req)
}

// TrashImage requests removal of an image. The item set is only
// updated when the server pushes the resulting file_list_update.
func (c *Client) TrashImage(filename string) bool {
	return c.conn.Send(protocol.NewTrashImage(filename, c.config.Identity.UserName))
}

// MarkViewed records a filename in the durable per-user seen set.
func (c *Client) MarkViewed(ctx context.Context, filename string) error {
	return c.seen.MarkSeen(ctx, filename)
}

// Accessors for the UI layer, which reads snapshots and never mutates.

// Connection returns the connection manager.
func (c *Client) Connection() *conn.Manager {
	return c.conn
}

// Router returns the message router.
func (c *Client) Router() *router.Router {
	return c.router
}

// Feeds returns the feed store.
func (c *Client) Feeds() *feed.Store {
	return c.feeds
}

// Gallery returns the pagination controller.
func (c *Client) Gallery() *gallery.Controller {
	return c.gallery
}

// Notifications returns the notification center.
func (c *Client) Notifications() *notify.Center {
	return c.notifications
}

// Seen returns the seen-items set. Nil before Start.
func (c *Client) Seen() *storage.SeenSet {
	return c.seen
}

// SessionID returns the server-assigned session id, if one was pushed.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Categories returns the static category metadata pushed with the
// initial file list.
func (c *Client) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// UserName returns the configured local user.
func (c *Client) UserName() string {
	return c.config.Identity.UserName
}

// EffectiveRating returns the rating the local user currently sees
// for a filename, optimistic override included.
func (c *Client) EffectiveRating(filename string) (int, bool) {
	return c.feeds.EffectiveRating(filename, c.config.Identity.UserName)
}

// EffectiveCategory returns the category the local user currently
// sees for a filename, optimistic override included.
func (c *Client) EffectiveCategory(filename string) string {
	return c.feeds.EffectiveCategory(filename, c.config.Identity.UserName)
}

// ConnectionStats implements ops.StatsSource.
func (c *Client) ConnectionStats() ops.ConnectionStats {
	return ops.ConnectionStats{
		Target:     c.conn.Target(),
		State:      c.conn.State().String(),
		StatusText: c.conn.StatusText(),
	}
}

// StoreStats implements ops.StatsSource.
func (c *Client) StoreStats() ops.StoreStats {
	stats := ops.StoreStats{
		GalleryItems:   c.gallery.Count(),
		GalleryTotal:   c.gallery.TotalCount(),
		GalleryHasMore: c.gallery.HasMore(),
		CachedFeeds:    c.feeds.Count(),
		ActivePatches:  c.feeds.PatchCount(),
		Notifications:  c.notifications.Count(),
		UnreadCount:    c.notifications.UnreadCount(),
		MessageLogSize: c.router.LogSize(),
	}
	if c.seen != nil {
		stats.SeenItems = c.seen.Count()
	}
	return stats
}
