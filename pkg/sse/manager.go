// Package sse pushes sync status events ("Connecting…", "Loading…",
// failure text) to connected UI clients over server-sent events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Manager fans events out to every connected client. Slow clients are
// skipped rather than blocking the sender.
type Manager struct {
	mu      sync.Mutex
	clients map[chan event]struct{}
}

func NewManager() *Manager {
	return &Manager{clients: make(map[chan event]struct{})}
}

// Broadcast sends an event to all connected clients without blocking.
func (m *Manager) Broadcast(eventType string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := event{Type: eventType, Payload: payload}
	for ch := range m.clients {
		select {
		case ch <- ev:
		default:
			// Client is not draining; drop the event for it.
		}
	}
}

// Status broadcasts a human-readable sync phase message.
func (m *Manager) Status(phase string) {
	m.Broadcast("status", map[string]string{"phase": phase})
}

// ServeHTTP streams events to one client until it disconnects.
func (m *Manager) ServeHTTP(c *gin.Context) {
	ch := make(chan event, 16)

	m.mu.Lock()
	m.clients[ch] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.clients, ch)
		m.mu.Unlock()
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		log.Warn("[SSE] Response writer does not support flushing")
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
