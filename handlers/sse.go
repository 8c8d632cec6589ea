package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"paysession/utils"
)

// SSE event names pushed to the payment view.
const (
	EventStateChange = "state-change"
	EventCountdown   = "countdown"
	EventQR          = "qr"
	EventSuccess     = "success"
)

type sseMessage struct {
	event string
	data  string
}

// SSEConnection represents a Server-Sent Events connection
type SSEConnection struct {
	ID        string
	PaymentID string
	send      chan sseMessage
	Done      chan struct{}
	closeOnce sync.Once
}

// enqueue queues msg without blocking and reports whether it was accepted.
func (c *SSEConnection) enqueue(msg sseMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *SSEConnection) close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// SSEBroadcaster manages SSE connections and broadcasting
type SSEBroadcaster struct {
	connections map[string]*SSEConnection
	mutex       sync.RWMutex
}

// NewSSEBroadcaster returns an empty broadcaster.
func NewSSEBroadcaster() *SSEBroadcaster {
	return &SSEBroadcaster{connections: make(map[string]*SSEConnection)}
}

// AddConnection registers a subscriber for paymentID.
func (b *SSEBroadcaster) AddConnection(paymentID string) *SSEConnection {
	conn := &SSEConnection{
		ID:        uuid.NewString(),
		PaymentID: paymentID,
		send:      make(chan sseMessage, 32),
		Done:      make(chan struct{}),
	}

	b.mutex.Lock()
	b.connections[conn.ID] = conn
	b.mutex.Unlock()

	utils.Debug("sse", "New connection", "payment_id", paymentID, "conn_id", conn.ID)
	return conn
}

// RemoveConnection removes an SSE connection
func (b *SSEBroadcaster) RemoveConnection(connID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if conn, exists := b.connections[connID]; exists {
		conn.close()
		delete(b.connections, connID)
		utils.Debug("sse", "Removed connection", "payment_id", conn.PaymentID, "conn_id", connID)
	}
}

// ClosePayment ends every stream subscribed to paymentID.
func (b *SSEBroadcaster) ClosePayment(paymentID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for id, conn := range b.connections {
		if conn.PaymentID == paymentID {
			conn.close()
			delete(b.connections, id)
		}
	}
}

// ConnectionCount returns the number of open streams for paymentID.
func (b *SSEBroadcaster) ConnectionCount(paymentID string) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	n := 0
	for _, conn := range b.connections {
		if conn.PaymentID == paymentID {
			n++
		}
	}
	return n
}

func renderString(component templ.Component) string {
	var buf strings.Builder
	if err := component.Render(context.Background(), &buf); err != nil {
		utils.Error("sse", "Error rendering component", "error", err)
	}
	return buf.String()
}

// Broadcast renders component once and queues it for every stream of
// paymentID. Slow subscribers drop events rather than block the session.
func (b *SSEBroadcaster) Broadcast(paymentID, event string, component templ.Component) {
	var buf strings.Builder
	if err := component.Render(context.Background(), &buf); err != nil {
		utils.Error("sse", "Error rendering component", "payment_id", paymentID, "event", event, "error", err)
		return
	}
	msg := sseMessage{event: event, data: buf.String()}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	sent := 0
	for _, conn := range b.connections {
		if conn.PaymentID != paymentID {
			continue
		}
		if conn.enqueue(msg) {
			sent++
		} else {
			utils.Warn("sse", "Subscriber queue full, dropping event", "conn_id", conn.ID, "event", event)
		}
	}
	if sent > 0 {
		utils.Debug("sse", "Sent payment update", "payment_id", paymentID, "event", event, "subscribers", sent)
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, msg sseMessage) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.event, msg.data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// Serve streams events for conn until the client leaves or the connection is closed.
func (b *SSEBroadcaster) Serve(w http.ResponseWriter, r *http.Request, conn *SSEConnection) {
	defer b.RemoveConnection(conn.ID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported by client", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-conn.send:
			if err := writeSSE(w, flusher, msg); err != nil {
				utils.Debug("sse", "Write failed, dropping connection", "conn_id", conn.ID, "error", err)
				return
			}
		case <-conn.Done:
			// flush whatever was queued before the stream was closed
			for {
				select {
				case msg := <-conn.send:
					if err := writeSSE(w, flusher, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
