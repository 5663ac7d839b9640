package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"hazard-reporter/internal/logger"
	"hazard-reporter/internal/observer"
	"hazard-reporter/internal/submission"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	submissionID string
	conn         *websocket.Conn
	send         chan observer.SubmissionEvent
}

// Hub streams submission events to websocket clients watching that submission.
// It is an observer on the pipeline's publisher; a client that cannot keep up
// is disconnected rather than blocking the pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]struct{})}
}

// OnEvent forwards the event to the submission's watchers
func (h *Hub) OnEvent(ctx context.Context, event observer.SubmissionEvent) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients[event.SubmissionID] {
		select {
		case c.send <- event:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.WithField("submission_id", c.submissionID).Warn("Websocket client too slow, disconnecting")
		h.unregister(c)
	}
}

// GetObserverName returns the observer name
func (h *Hub) GetObserverName() string {
	return "websocket_hub"
}

// ClientCount returns the number of connected watchers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Serve upgrades the request and streams sub's events until the peer leaves.
// The first message is the current state of the submission.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sub *submission.Submission) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).WithField("submission_id", sub.ID).Error("Websocket upgrade failed")
		return
	}

	c := &client{
		submissionID: sub.ID,
		conn:         conn,
		send:         make(chan observer.SubmissionEvent, sendBuffer),
	}
	h.register(c, sub)

	logger.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"clients":       h.ClientCount(),
	}).Info("Websocket client connected")

	go h.writePump(c)
	h.readPump(c)
}

// register adds c and queues the current state under the same lock, so no
// event published afterwards can overtake it
func (h *Hub) register(c *client, sub *submission.Submission) {
	h.mu.Lock()
	defer h.mu.Unlock()

	view := sub.Snapshot()
	c.send <- observer.SubmissionEvent{
		EventType:    observer.StateChanged,
		Timestamp:    time.Now(),
		SubmissionID: sub.ID,
		State:        view.State,
		ErrorMessage: view.Error,
		Metadata:     map[string]interface{}{"snapshot": true},
	}

	set, ok := h.clients[c.submissionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.submissionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.submissionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.submissionID)
	}
	close(c.send)
}

// readPump only drains control frames; watchers have nothing to say
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		logger.WithField("submission_id", c.submissionID).Info("Websocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).WithField("submission_id", c.submissionID).Debug("Websocket read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				logger.WithError(err).WithField("submission_id", c.submissionID).Debug("Websocket write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
