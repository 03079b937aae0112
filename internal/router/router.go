package router

import (
	"sync"

	"github.com/picrate/picrate/internal/ops"
	"github.com/picrate/picrate/internal/protocol"
)

// Handler processes one inbound message of a registered type
type Handler func(*protocol.Message)

// LogEntry is one retained inbound message. Every message is kept,
// unknown types included, so the stream can be replayed or audited.
type LogEntry struct {
	ID      int
	Message *protocol.Message
}

// Router classifies inbound messages by their type tag and fans each
// one out, in arrival order, to every handler registered for that
// type. Unknown types are retained in the log but are otherwise no-ops.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      []LogEntry
	nextID   int

	logger *ops.Logger
}

// New creates a message router
func New(logger *ops.Logger) *Router {
	if logger == nil {
		logger = ops.Default()
	}
	return &Router{
		handlers: make(map[string][]Handler),
		nextID:   1,
		logger:   logger.WithComponent("router"),
	}
}

// Register adds a handler for one message type. Handlers for a type
// run in registration order.
func (r *Router) Register(msgType string, h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = append(r.handlers[msgType], h)
}

// Dispatch records the message in the log and delivers it to every
// handler registered for its type. Messages with no registered
// handler are logged and dropped from handling, never from the log.
func (r *Router) Dispatch(msg *protocol.Message) {
	if msg == nil {
		return
	}

	r.mu.Lock()
	r.log = append(r.log, LogEntry{ID: r.nextID, Message: msg})
	r.nextID++
	handlers := r.handlers[msg.Type]
	r.mu.Unlock()

	if len(handlers) == 0 {
		r.logger.Debug("no handler for message type", "type", msg.Type)
		return
	}

	r.logger.LogDispatch(msg.Type, len(handlers))
	for _, h := range handlers {
		h(msg)
	}
}

// Log returns a snapshot of the retained message log in arrival order.
func (r *Router) Log() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogEntry, len(r.log))
	copy(out, r.log)
	return out
}

// LogSize returns the number of retained messages.
func (r *Router) LogSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.log)
}

// ClearLog empties the retained message log.
func (r *Router) ClearLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = nil
}
