package conn

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/picrate/picrate/internal/config"
	"github.com/picrate/picrate/internal/ops"
	"github.com/picrate/picrate/internal/protocol"
)

// State is the connection lifecycle state
type State int

const (
	// StateIdle means no connection has been requested. Distinct from
	// StateClosed so callers can tell "not yet enabled" apart from a
	// real disconnect.
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateReconnecting
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MessageHandler receives each decoded inbound message
type MessageHandler func(*protocol.Message)

// StateHandler is notified on every state transition
type StateHandler func(State)

// Manager owns the duplex message channel lifecycle: connect, detect
// open/close/error, schedule a single reconnect attempt per close, and
// stamp every outbound payload with timestamp and client_type.
type Manager struct {
	mu sync.Mutex

	target     string // websocket URL; "" means explicitly disabled
	state      State
	failReason string

	ws  *websocket.Conn
	gen int // socket generation; stale read loops must not touch state

	reconnectTimer   *time.Timer
	reconnectDelay   time.Duration
	handshakeTimeout time.Duration

	onMessage MessageHandler
	onState   StateHandler

	logger *ops.Logger
}

// NewManager creates a connection manager. No channel is opened until
// SetTarget provides a concrete endpoint.
func NewManager(cfg *config.Connection, logger *ops.Logger) *Manager {
	if logger == nil {
		logger = ops.Default()
	}
	return &Manager{
		state:            StateIdle,
		reconnectDelay:   time.Duration(cfg.ReconnectDelaySeconds) * time.Second,
		handshakeTimeout: time.Duration(cfg.HandshakeTimeoutSeconds) * time.Second,
		logger:           logger.WithComponent("conn"),
	}
}

// OnMessage registers the inbound message handler. Must be set before
// SetTarget opens a channel.
func (m *Manager) OnMessage(fn MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// OnStateChange registers an observer for state transitions. The
// observer runs on the manager's dispatch path and must not call back
// into the manager.
func (m *Manager) OnStateChange(fn StateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = fn
}

// SetTarget sets the endpoint and opens a channel. An empty target
// disables the manager: any open channel is closed, pending reconnects
// are cancelled, and the state reports idle rather than closed.
func (m *Manager) SetTarget(url string) {
	m.mu.Lock()
	m.target = url
	m.stopReconnectTimerLocked()
	m.closeSocketLocked()

	if url == "" {
		m.setStateLocked(StateIdle, "")
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.connect()
}

// Target returns the currently configured endpoint.
func (m *Manager) Target() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the channel is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// StatusText returns the human-readable connection status label.
func (m *Manager) StatusText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateIdle:
		return "Not connected"
	case StateConnecting:
		return "Connecting..."
	case StateOpen:
		return "Connected"
	case StateClosing:
		return "Disconnecting..."
	case StateClosed:
		return "Disconnected"
	case StateReconnecting:
		return "Reconnecting..."
	case StateFailed:
		return fmt.Sprintf("Error: %s", m.failReason)
	default:
		return "Unknown"
	}
}

// Send stamps the payload with an ISO-8601 timestamp and the client
// type tag, then transmits it. Returns false without transmitting if
// the channel is not open; callers must treat the return value as the
// only success signal.
func (m *Manager) Send(payload map[string]interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendLocked(payload)
}

func (m *Manager) sendLocked(payload map[string]interface{}) bool {
	if m.state != StateOpen || m.ws == nil {
		m.logger.Warn("send while not connected, message dropped",
			"state", m.state.String(),
			"type", payload["type"])
		return false
	}

	stamped := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		stamped[k] = v
	}
	stamped["timestamp"] = time.Now().Format(time.RFC3339)
	stamped["client_type"] = protocol.ClientType

	if err := m.ws.WriteJSON(stamped); err != nil {
		m.logger.Warn("send failed", "error", err)
		return false
	}
	return true
}

// Reconnect closes the current socket; the close path schedules the
// usual single reconnect attempt while the target remains enabled.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	ws := m.ws
	m.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

// Close tears the manager down: disables the target, cancels any
// pending reconnect, and closes the socket. Safe to call more than
// once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = ""
	m.stopReconnectTimerLocked()
	if m.ws != nil {
		m.setStateLocked(StateClosing, "")
	}
	m.closeSocketLocked()
	m.setStateLocked(StateIdle, "")
}

// connect dials the target and, on success, starts the read loop and
// emits the connection greeting.
func (m *Manager) connect() {
	m.mu.Lock()
	target := m.target
	if target == "" {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting, "")
	timeout := m.handshakeTimeout
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.Dial(target, nil)

	m.mu.Lock()
	if m.target != target {
		// Target changed or disabled while dialing
		m.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return
	}

	if err != nil {
		m.setStateLocked(StateFailed, err.Error())
		m.logger.LogConnectionEvent(target, "dial_failed", err)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.ws = ws
	m.gen++
	gen := m.gen
	m.setStateLocked(StateOpen, "")
	m.logger.LogConnectionEvent(target, "open", nil)

	// Greeting carries the client-type tag regardless of caller
	// payloads; the stamp adds timestamp and client_type.
	m.sendLocked(protocol.NewConnectionHello())
	m.mu.Unlock()

	go m.readLoop(ws, gen)
}

// readLoop delivers inbound frames until the socket closes. The
// generation guard keeps a replaced socket from delivering into the
// manager's new state.
func (m *Manager) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}

		msg := protocol.Decode(data)

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		handler := m.onMessage
		m.mu.Unlock()

		if handler != nil {
			handler(msg)
		}
	}
}

// handleClose processes a socket close and schedules exactly one
// reconnect attempt while the target remains enabled.
func (m *Manager) handleClose(gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}

	m.ws = nil
	m.setStateLocked(StateClosed, "")
	m.logger.LogConnectionEvent(m.target, "closed", err)
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single-shot reconnect timer. A
// prior pending timer is replaced, never stacked.
func (m *Manager) scheduleReconnectLocked() {
	if m.target == "" {
		return
	}

	m.stopReconnectTimerLocked()
	m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		if m.target == "" {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(StateReconnecting, "")
		m.mu.Unlock()

		m.logger.Info("attempting to reconnect")
		m.connect()
	})
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) closeSocketLocked() {
	if m.ws != nil {
		m.ws.Close()
		m.ws = nil
		m.gen++
	}
}

func (m *Manager) setStateLocked(s State, reason string) {
	if m.state == s && reason == m.failReason {
		return
	}
	m.state = s
	m.failReason = reason
	if m.onState != nil {
		m.onState(s)
	}
}
