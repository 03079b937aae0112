package feed

import (
	"sync"
	"time"

	"github.com/picrate/picrate/internal/ops"
	"github.com/picrate/picrate/internal/protocol"
)

// Patch is a short-lived local override created the instant the user
// submits a rating. While unexpired it shadows the server-derived
// rating and category for its image, so a stale or late server echo
// cannot visually revert a just-made choice. It never suppresses new
// comments or other users' entries.
type Patch struct {
	UserName  string
	Rating    int
	Category  string
	ExpiresAt time.Time
}

// Expired reports whether the patch's window has elapsed.
func (p *Patch) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Store caches the authoritative feed per image filename plus the
// optimistic overlay. Feeds are replaced wholesale on every server
// push; nothing is merged field by field, and total/average ratings
// are never recomputed locally.
type Store struct {
	mu      sync.RWMutex
	feeds   map[string]protocol.Feed
	patches map[string]Patch

	defaultTTL time.Duration

	// now is swappable for tests
	now func() time.Time

	logger *ops.Logger
}

// NewStore creates a feed store. defaultTTL bounds how long an
// optimistic patch shadows server data when no TTL is given per call.
func NewStore(defaultTTL time.Duration, logger *ops.Logger) *Store {
	if logger == nil {
		logger = ops.Default()
	}
	return &Store{
		feeds:      make(map[string]protocol.Feed),
		patches:    make(map[string]Patch),
		defaultTTL: defaultTTL,
		now:        time.Now,
		logger:     logger.WithComponent("feed"),
	}
}

// GetFeed returns the cached feed for a filename, if any.
func (s *Store) GetFeed(filename string) (protocol.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.feeds[filename]
	return f, ok
}

// ReplaceFeed overwrites the cached feed for the push's filename
// wholesale. If the push confirms an unexpired patch (the server now
// derives the same rating the patch holds for its user), the patch is
// cleared immediately rather than waiting out its window.
func (s *Store) ReplaceFeed(f protocol.Feed) {
	if f.ImageFilename == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.feeds[f.ImageFilename] = f

	if p, ok := s.patches[f.ImageFilename]; ok {
		if p.Expired(s.now()) || f.RatingFor(p.UserName) == p.Rating {
			delete(s.patches, f.ImageFilename)
		}
	}

	s.logger.Debug("feed replaced",
		"filename", f.ImageFilename,
		"entries", len(f.Entries))
}

// SetPatch installs an optimistic override for a filename, valid for
// ttl (or the store default when ttl is zero). A newer patch replaces
// an older one for the same filename.
func (s *Store) SetPatch(filename, userName string, rating int, category string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.patches[filename] = Patch{
		UserName:  userName,
		Rating:    rating,
		Category:  category,
		ExpiresAt: s.now().Add(ttl),
	}
}

// ClearPatch removes the optimistic override for a filename.
// Idempotent: clearing an absent or already-cleared patch is a no-op,
// so an expiry timer firing after a server push already cleared the
// patch does no harm.
func (s *Store) ClearPatch(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patches, filename)
}

// ExpirePatch removes the patch for a filename only if its window has
// elapsed. This is the expiry-timer entry point: a timer firing after
// the patch was already cleared, or after a newer patch replaced it,
// must not disturb current state.
func (s *Store) ExpirePatch(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.patches[filename]; ok && p.Expired(s.now()) {
		delete(s.patches, filename)
	}
}

// ActivePatch returns the unexpired patch for a filename, if any.
// Expiry is checked lazily here; an expired patch is dropped on read.
func (s *Store) ActivePatch(filename string) (Patch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePatchLocked(filename)
}

func (s *Store) activePatchLocked(filename string) (Patch, bool) {
	p, ok := s.patches[filename]
	if !ok {
		return Patch{}, false
	}
	if p.Expired(s.now()) {
		delete(s.patches, filename)
		return Patch{}, false
	}
	return p, true
}

// EffectiveRating returns the rating the given user should currently
// see for a filename: an unexpired patch for that user wins, otherwise
// the user's most recent entry in the cached feed. The second return
// is false when neither source has a rating.
func (s *Store) EffectiveRating(filename, userName string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.activePatchLocked(filename); ok && p.UserName == userName {
		return p.Rating, true
	}

	f, ok := s.feeds[filename]
	if !ok {
		return 0, false
	}
	if r := f.RatingFor(userName); r >= 0 {
		return r, true
	}
	return 0, false
}

// EffectiveCategory follows the same precedence as EffectiveRating:
// optimistic category first, then the most recent categorized entry by
// the user in the cached feed.
func (s *Store) EffectiveCategory(filename, userName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.activePatchLocked(filename); ok && p.UserName == userName && p.Category != "" {
		return p.Category
	}

	f, ok := s.feeds[filename]
	if !ok {
		return ""
	}
	return f.CategoryFor(userName)
}

// Evict drops the cached feed and any patch for a removed item.
func (s *Store) Evict(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.feeds, filename)
	delete(s.patches, filename)
}

// Count returns the number of cached feeds.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feeds)
}

// PatchCount returns the number of installed patches, expired or not.
func (s *Store) PatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patches)
}

// SweepExpired drops every expired patch and returns how many were
// removed. The store works without sweeping (expiry is lazy on read);
// this keeps the patch map from accumulating overrides for images the
// user never looks at again.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for filename, p := range s.patches {
		if p.Expired(now) {
			delete(s.patches, filename)
			removed++
		}
	}
	return removed
}
