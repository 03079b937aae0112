package gallery

import (
	"sync"

	"github.com/picrate/picrate/internal/ops"
	"github.com/picrate/picrate/internal/protocol"
)

// Item is one gallery entry. ID is a local sequence number assigned on
// load; Filename is the stable server-side identity key used for all
// feed lookups; Locator is the HTTP URL the image is fetched from.
type Item struct {
	ID       int
	Filename string
	Locator  string
}

// LocatorFunc builds the asset URL for a filename.
type LocatorFunc func(filename string) string

// Controller tracks how many gallery items have been loaded from the
// logically larger server-side collection and builds requests for
// more. The offset advances monotonically with the local item count;
// filenames remain the cross-session identity key.
type Controller struct {
	mu sync.RWMutex

	items      []Item
	index      map[string]int // filename -> slice position
	totalCount int
	hasMore    bool
	pageSize   int

	locator LocatorFunc
	logger  *ops.Logger
}

// NewController creates a pagination controller.
func NewController(pageSize int, locator LocatorFunc, logger *ops.Logger) *Controller {
	if logger == nil {
		logger = ops.Default()
	}
	if locator == nil {
		locator = func(filename string) string { return filename }
	}
	return &Controller{
		index:    make(map[string]int),
		pageSize: pageSize,
		locator:  locator,
		logger:   logger.WithComponent("gallery"),
	}
}

// LoadInitial replaces the item set from an initial file_list push.
// Sequence ids restart from 1.
func (c *Controller) LoadInitial(files []string, totalCount int, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = c.items[:0]
	c.index = make(map[string]int, len(files))
	c.appendLocked(files)
	c.setCollectionLocked(totalCount, hasMore)

	c.logger.Info("gallery loaded",
		"items", len(c.items),
		"total", c.totalCount,
		"has_more", c.hasMore)
}

// AppendPage adds a pagination push to the item set. New items get
// sequence ids continuing from the current item count; filenames
// already present are skipped rather than duplicated.
func (c *Controller) AppendPage(files []string, totalCount int, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := c.appendLocked(files)
	c.setCollectionLocked(totalCount, hasMore)

	c.logger.Info("gallery page appended",
		"added", added,
		"items", len(c.items),
		"has_more", c.hasMore)
}

// ReplaceAll swaps in the full replacement list pushed after a
// removal. Sequence ids are reassigned from 1; the removed filename is
// returned to the caller by the push itself and handled there.
func (c *Controller) ReplaceAll(files []string, totalCount int, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = c.items[:0]
	c.index = make(map[string]int, len(files))
	c.appendLocked(files)
	c.setCollectionLocked(totalCount, hasMore)

	c.logger.Info("gallery replaced", "items", len(c.items))
}

func (c *Controller) appendLocked(files []string) int {
	added := 0
	for _, filename := range files {
		if filename == "" {
			continue
		}
		if _, exists := c.index[filename]; exists {
			continue
		}
		item := Item{
			ID:       len(c.items) + 1,
			Filename: filename,
			Locator:  c.locator(filename),
		}
		c.index[filename] = len(c.items)
		c.items = append(c.items, item)
		added++
	}
	return added
}

func (c *Controller) setCollectionLocked(totalCount int, hasMore bool) {
	if totalCount > 0 {
		c.totalCount = totalCount
	} else if len(c.items) > c.totalCount {
		c.totalCount = len(c.items)
	}
	c.hasMore = hasMore
}

// NextPageRequest builds the outbound load_more_images payload for the
// next page. The second return is false when the server has no more
// items; callers must not send in that case.
func (c *Controller) NextPageRequest() (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasMore {
		return nil, false
	}
	return protocol.NewLoadMoreImages(len(c.items), c.pageSize), true
}

// Item returns the gallery entry for a filename.
func (c *Controller) Item(filename string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.index[filename]
	if !ok {
		return Item{}, false
	}
	return c.items[pos], true
}

// Items returns a snapshot of the loaded items in load order.
func (c *Controller) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns the number of loaded items. This is also the offset
// for the next pagination request.
func (c *Controller) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// TotalCount returns the server-side collection size, as last pushed.
func (c *Controller) TotalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalCount
}

// HasMore reports whether the server holds items beyond those loaded.
func (c *Controller) HasMore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasMore
}
