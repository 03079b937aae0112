package protocol

import (
	"encoding/json"
	"time"
)

// Inbound message types pushed by the server.
const (
	TypeFileList         = "file_list"
	TypeMoreImages       = "more_images"
	TypeFileListUpdate   = "file_list_update"
	TypeRatingFeedUpdate = "rating_feed_update"
	TypeFeedResponse     = "feed_response"
	TypeHeartbeat        = "heartbeat"
	TypeText             = "text"
)

// Outbound message types sent by the client.
const (
	TypeConnection     = "connection"
	TypeImageRating    = "image_rating"
	TypeRequestFeed    = "request_feed"
	TypeLoadMoreImages = "load_more_images"
	TypeTrashImage     = "trash_image"
)

// ClientType identifies this client in outbound message stamps.
const ClientType = "picrate"

// Message is a decoded inbound message. Type is always set; the
// remaining fields are populated depending on the message kind, and
// Raw preserves the full payload for the router's message log.
type Message struct {
	Type       string          `json:"type"`
	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"-"`

	// file_list / more_images / file_list_update
	Files       []string `json:"files,omitempty"`
	TotalCount  int      `json:"total_count,omitempty"`
	HasMore     bool     `json:"has_more,omitempty"`
	Offset      int      `json:"offset,omitempty"`
	RemovedFile string   `json:"removed_file,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	// rating_feed_update / feed_response
	ImageFilename string      `json:"image_filename,omitempty"`
	RatingsFeed   []FeedEntry `json:"ratings_feed,omitempty"`
	TotalRatings  int         `json:"total_ratings,omitempty"`
	AverageRating float64     `json:"average_rating,omitempty"`

	// text (decode fallback)
	Content string `json:"content,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}

// Comment is one comment attached to a feed entry.
type Comment struct {
	CommentText string `json:"comment_text"`
	Timestamp   string `json:"timestamp"`
}

// FeedEntry is one user's current rating of one image, with the
// ordered comment history. A user contributes at most one current
// rating per image; Timestamp establishes recency.
type FeedEntry struct {
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Category  string    `json:"category,omitempty"`
	Comments  []Comment `json:"comments,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// Feed is the authoritative server view of one image's ratings. The
// server always pushes a complete snapshot; feeds are replaced
// wholesale, never merged. TotalRatings and AverageRating are
// server-computed and never recomputed locally.
type Feed struct {
	ImageFilename string      `json:"image_filename"`
	Entries       []FeedEntry `json:"ratings_feed"`
	TotalRatings  int         `json:"total_ratings"`
	AverageRating float64     `json:"average_rating"`
}

// Feed extracts the feed payload from a rating_feed_update or
// feed_response message.
func (m *Message) Feed() Feed {
	return Feed{
		ImageFilename: m.ImageFilename,
		Entries:       m.RatingsFeed,
		TotalRatings:  m.TotalRatings,
		AverageRating: m.AverageRating,
	}
}

// LatestEntry returns the newest entry in the feed. The server orders
// ratings_feed newest-first, so this is the head when present.
func (f *Feed) LatestEntry() *FeedEntry {
	if len(f.Entries) == 0 {
		return nil
	}
	return &f.Entries[0]
}

// RatingFor returns the most recent rating contributed by the given
// user, or -1 if the user has no entry in the feed.
func (f *Feed) RatingFor(userName string) int {
	if e := f.entryFor(userName); e != nil {
		return e.Rating
	}
	return -1
}

// CategoryFor returns the category from the most recent entry by the
// given user that carries one, or "" if none does.
func (f *Feed) CategoryFor(userName string) string {
	var best *FeedEntry
	for i := range f.Entries {
		e := &f.Entries[i]
		if e.UserName != userName || e.Category == "" {
			continue
		}
		if best == nil || e.Timestamp > best.Timestamp {
			best = e
		}
	}
	if best == nil {
		return ""
	}
	return best.Category
}

func (f *Feed) entryFor(userName string) *FeedEntry {
	var best *FeedEntry
	for i := range f.Entries {
		e := &f.Entries[i]
		if e.UserName != userName {
			continue
		}
		if best == nil || e.Timestamp > best.Timestamp {
			best = e
		}
	}
	return best
}

// Decode parses an inbound payload. Malformed JSON and JSON without a
// type tag are downgraded to a text message carrying the raw payload;
// no inbound data is ever dropped.
func Decode(data []byte) *Message {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil || msg.Type == "" {
		msg = &Message{
			Type:      TypeText,
			Content:   string(data),
			Timestamp: time.Now().Format(time.RFC3339),
		}
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	msg.ReceivedAt = time.Now()
	return msg
}

// Outbound payload constructors. Every outbound message is further
// stamped with timestamp and client_type by the connection manager
// before transmission.

// NewConnectionHello builds the greeting sent immediately after the
// channel opens.
func NewConnectionHello() map[string]interface{} {
	return map[string]interface{}{
		"type":    TypeConnection,
		"message": "picrate client connected",
	}
}

// NewImageRating builds an image_rating submission.
func NewImageRating(filename string, rating int, comment, category, userName string) map[string]interface{} {
	msg := map[string]interface{}{
		"type":           TypeImageRating,
		"image_filename": filename,
		"rating":         rating,
		"comment":        comment,
		"user_name":      userName,
	}
	if category != "" {
		msg["category"] = category
	}
	return msg
}

// NewRequestFeed builds an explicit feed request for one image.
func NewRequestFeed(filename string) map[string]interface{} {
	return map[string]interface{}{
		"type":           TypeRequestFeed,
		"image_filename": filename,
	}
}

// NewLoadMoreImages builds a pagination request.
func NewLoadMoreImages(offset, limit int) map[string]interface{} {
	return map[string]interface{}{
		"type":   TypeLoadMoreImages,
		"offset": offset,
		"limit":  limit,
	}
}

// NewTrashImage builds an image removal request.
func NewTrashImage(filename, userName string) map[string]interface{} {
	return map[string]interface{}{
		"type":           TypeTrashImage,
		"image_filename": filename,
		"user_name":      userName,
	}
}
