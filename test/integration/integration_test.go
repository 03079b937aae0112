package integration

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/picrate/picrate/internal/client"
	"github.com/picrate/picrate/internal/config"
	"github.com/picrate/picrate/internal/conn"
	"github.com/picrate/picrate/internal/storage"
)

// testGallery is an in-process stand-in for the rating server. It
// accepts upgrades, records everything the client sends, and lets
// tests push arbitrary payloads back down the open socket.
type testGallery struct {
	srv      *httptest.Server
	inbound  chan map[string]interface{}
	sessions chan *websocket.Conn
}

func startTestGallery(t *testing.T) *testGallery {
	t.Helper()

	g := &testGallery{
		inbound:  make(chan map[string]interface{}, 32),
		sessions: make(chan *websocket.Conn, 4),
	}

	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.sessions <- ws
		for {
			var msg map[string]interface{}
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			g.inbound <- msg
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *testGallery) session(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-g.sessions:
		return ws
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func (g *testGallery) recv(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-g.inbound:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a client message")
		return nil
	}
}

func (g *testGallery) recvType(t *testing.T, msgType string) map[string]interface{} {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-g.inbound:
			if msg["type"] == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s message", msgType)
			return nil
		}
	}
}

func testConfig(t *testing.T, g *testGallery) *config.Config {
	t.Helper()

	u, err := url.Parse(g.srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("failed to split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	cfg := config.DefaultConfig()
	cfg.Identity.UserName = "alice"
	cfg.Server.Scheme = "ws"
	cfg.Server.Host = host
	cfg.Server.Port = port
	cfg.Connection.ReconnectDelaySeconds = 1
	cfg.Seen.SQLitePath = filepath.Join(t.TempDir(), "test.db")
	return cfg
}

func startTestClient(t *testing.T, cfg *config.Config) *client.Client {
	t.Helper()

	st, err := storage.New(context.Background(), &cfg.Seen)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := client.New(cfg, st, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionLifecycle(t *testing.T) {
	g := startTestGallery(t)
	cfg := testConfig(t, g)
	c := startTestClient(t, cfg)

	// Greeting arrives as soon as the channel opens.
	hello := g.recv(t)
	if hello["type"] != "connection" {
		t.Fatalf("first message type = %v, want connection", hello["type"])
	}
	if hello["client_type"] != "picrate" {
		t.Errorf("client_type = %v, want picrate", hello["client_type"])
	}

	session := g.session(t)

	// Initial file_list populates the gallery and session metadata.
	err := session.WriteJSON(map[string]interface{}{
		"type":        "file_list",
		"files":       []string{"a.png", "b.png"},
		"total_count": 4,
		"has_more":    true,
		"user_id":     "session-7",
		"categories":  []string{"landscape"},
	})
	if err != nil {
		t.Fatalf("server write error = %v", err)
	}

	waitFor(t, "gallery load", func() bool { return c.Gallery().Count() == 2 })
	if c.SessionID() != "session-7" {
		t.Errorf("SessionID() = %q, want session-7", c.SessionID())
	}

	item, ok := c.Gallery().Item("a.png")
	if !ok {
		t.Fatal("expected gallery item a.png")
	}
	if item.Locator != cfg.AssetURL("a.png") {
		t.Errorf("locator = %q, want %q", item.Locator, cfg.AssetURL("a.png"))
	}

	// Pagination round trip.
	if !c.LoadMore() {
		t.Fatal("LoadMore() = false, want true")
	}
	more := g.recvType(t, "load_more_images")
	if more["offset"] != float64(2) {
		t.Errorf("offset = %v, want 2", more["offset"])
	}

	err = session.WriteJSON(map[string]interface{}{
		"type":        "more_images",
		"files":       []string{"c.png", "d.png"},
		"total_count": 4,
		"has_more":    false,
	})
	if err != nil {
		t.Fatalf("server write error = %v", err)
	}
	waitFor(t, "page append", func() bool { return c.Gallery().Count() == 4 })
	if c.Gallery().HasMore() {
		t.Error("expected has_more false after final page")
	}
}

func TestRatingRoundTrip(t *testing.T) {
	g := startTestGallery(t)
	cfg := testConfig(t, g)
	c := startTestClient(t, cfg)
	g.recv(t) // greeting
	session := g.session(t)

	if !c.SubmitRating("a.png", 4, "great light", "landscape") {
		t.Fatal("SubmitRating() = false, want true")
	}

	sent := g.recvType(t, "image_rating")
	if sent["image_filename"] != "a.png" || sent["rating"] != float64(4) {
		t.Errorf("image_rating payload = %v", sent)
	}
	if sent["user_name"] != "alice" {
		t.Errorf("user_name = %v, want alice", sent["user_name"])
	}

	// The optimistic override holds until the server confirms it.
	if rating, ok := c.EffectiveRating("a.png"); !ok || rating != 4 {
		t.Fatalf("EffectiveRating = %d, %v, want 4, true", rating, ok)
	}

	err := session.WriteJSON(map[string]interface{}{
		"type":           "rating_feed_update",
		"image_filename": "a.png",
		"ratings_feed": []map[string]interface{}{
			{"user_name": "alice", "rating": 4, "timestamp": "2026-09-01T10:00:00Z"},
		},
		"total_ratings":  1,
		"average_rating": 4.0,
	})
	if err != nil {
		t.Fatalf("server write error = %v", err)
	}

	waitFor(t, "confirming push", func() bool { return c.Feeds().PatchCount() == 0 })
	if rating, ok := c.EffectiveRating("a.png"); !ok || rating != 4 {
		t.Errorf("EffectiveRating after confirm = %d, %v, want 4, true", rating, ok)
	}
}

func TestExternalUpdateNotifies(t *testing.T) {
	g := startTestGallery(t)
	cfg := testConfig(t, g)
	c := startTestClient(t, cfg)
	g.recv(t)
	session := g.session(t)

	err := session.WriteJSON(map[string]interface{}{
		"type":           "rating_feed_update",
		"image_filename": "b.png",
		"ratings_feed": []map[string]interface{}{
			{"user_name": "bob", "rating": 5, "timestamp": "2026-09-01T11:00:00Z"},
		},
		"total_ratings":  1,
		"average_rating": 5.0,
	})
	if err != nil {
		t.Fatalf("server write error = %v", err)
	}

	waitFor(t, "notification", func() bool { return c.Notifications().Count() == 1 })
	head := c.Notifications().Notifications()[0]
	if head.LatestEntry.UserName != "bob" || head.LatestEntry.Rating != 5 {
		t.Errorf("latest entry = %+v", head.LatestEntry)
	}
	if c.Notifications().UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", c.Notifications().UnreadCount())
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	g := startTestGallery(t)
	cfg := testConfig(t, g)
	c := startTestClient(t, cfg)
	g.recv(t)
	session := g.session(t)

	session.Close()
	waitFor(t, "close detection", func() bool {
		s := c.Connection().State()
		return s == conn.StateClosed || s == conn.StateReconnecting
	})

	// One reconnect attempt fires after the configured delay and the
	// greeting repeats on the fresh socket.
	waitFor(t, "reconnect", func() bool { return c.Connection().State() == conn.StateOpen })
	hello := g.recv(t)
	if hello["type"] != "connection" {
		t.Errorf("post-reconnect message type = %v, want connection", hello["type"])
	}
}
