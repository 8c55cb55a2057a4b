package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub owns the websocket side of change propagation. It keeps exactly one
// bus subscription per session with connected clients, acquired when the
// first client registers and released when the last one leaves, and turns
// bus events into typed messages plus recomputed aggregations.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*Client]bool
	feeds   map[uint]*sessionFeed

	bus       Bus
	presence  Presence
	sessions  *SessionService
	questions *QuestionService
	responses *ResponseService
}

type sessionFeed struct {
	sub *Subscription
}

type Client struct {
	hub           *Hub
	socket        *websocket.Conn
	send          chan []byte
	sessionID     uint
	participantID string // empty for the presenter connection
	displayName   string
	presenter     bool

	// sendMu orders enqueue against the close in unregisterClient, so a
	// state sync racing a disconnect can never hit a closed channel.
	sendMu sync.Mutex
	closed bool
}

// enqueue hands a frame to the write pump, dropping it if the client is
// already gone or its buffer is full.
func (c *Client) enqueue(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Send buffer full for a client of session %d, dropping message", c.sessionID)
	}
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewHub(bus Bus, presence Presence, sessions *SessionService, questions *QuestionService, responses *ResponseService) *Hub {
	return &Hub{
		clients:   make(map[uint]map[*Client]bool),
		feeds:     make(map[uint]*sessionFeed),
		bus:       bus,
		presence:  presence,
		sessions:  sessions,
		questions: questions,
		responses: responses,
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn, sessionID uint, participantID, displayName string, presenter bool) *Client {
	client := &Client{
		hub:           h,
		socket:        conn,
		send:          make(chan []byte, 256),
		sessionID:     sessionID,
		participantID: participantID,
		displayName:   displayName,
		presenter:     presenter,
	}

	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*Client]bool)
	}
	h.clients[sessionID][client] = true
	if err := h.ensureFeedLocked(sessionID); err != nil {
		log.Printf("Failed to subscribe session %d feed: %v", sessionID, err)
	}
	total := len(h.clients[sessionID])
	h.mu.Unlock()

	log.Printf("Client connected to session %d (%s, total: %d)", sessionID, client.describe(), total)

	go client.writePump()
	go client.readPump()

	if !client.presenter {
		client.joinPresence()
	}
	client.sendStateSync()

	return client
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	session := h.clients[client.sessionID]
	if _, ok := session[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(session, client)
	client.sendMu.Lock()
	client.closed = true
	close(client.send)
	client.sendMu.Unlock()
	var released *Subscription
	if len(session) == 0 {
		delete(h.clients, client.sessionID)
		if feed, ok := h.feeds[client.sessionID]; ok {
			released = feed.sub
			delete(h.feeds, client.sessionID)
		}
	}
	h.mu.Unlock()

	if released != nil {
		released.Close()
	}

	log.Printf("Client disconnected from session %d (%s)", client.sessionID, client.describe())

	if !client.presenter {
		ctx := context.Background()
		if err := h.presence.Leave(ctx, client.sessionID, client.participantID); err != nil {
			log.Printf("Presence leave failed for session %d: %v", client.sessionID, err)
		}
		h.publishPresence(client.sessionID)
	}
}

// ensureFeedLocked subscribes the session feed on first use. Callers hold h.mu.
func (h *Hub) ensureFeedLocked(sessionID uint) error {
	if _, ok := h.feeds[sessionID]; ok {
		return nil
	}
	sub, err := h.bus.Subscribe(context.Background(), sessionID)
	if err != nil {
		return err
	}
	h.feeds[sessionID] = &sessionFeed{sub: sub}
	go h.runFeed(sessionID, sub)
	return nil
}

func (h *Hub) runFeed(sessionID uint, sub *Subscription) {
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			h.broadcast(sessionID, Message{Type: event.Type, Payload: event.Payload})
			switch event.Type {
			case EventResponseInserted, EventQuestionChanged:
				h.broadcastAggregation(sessionID)
			}
		case <-sub.Resync():
			// Transport dropped events; push authoritative state to everyone.
			log.Printf("Resyncing all clients of session %d after feed disruption", sessionID)
			h.broadcastStateSync(sessionID)
		}
	}
}

func (h *Hub) broadcast(sessionID uint, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		client.enqueue(data)
	}
}

// broadcastAggregation recomputes the active question's buckets from the
// full response set and fans them out. Recomputation from the store is what
// makes replayed or out-of-order notifications harmless.
func (h *Hub) broadcastAggregation(sessionID uint) {
	question, err := h.questions.ActiveQuestion(sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("Failed to load active question for session %d: %v", sessionID, err)
		}
		return
	}
	aggregation, err := h.responses.AggregateQuestion(sessionID, question.QuestionKey)
	if err != nil {
		log.Printf("Failed to aggregate session %d question %s: %v", sessionID, question.QuestionKey, err)
		return
	}
	h.broadcast(sessionID, Message{
		Type: "aggregation_update",
		Payload: gin.H{
			"question_key": question.QuestionKey,
			"aggregation":  aggregation,
		},
	})
}

func (h *Hub) broadcastStateSync(sessionID uint) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[sessionID]))
	for client := range h.clients[sessionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.sendStateSync()
	}
}

func (h *Hub) publishPresence(sessionID uint) {
	ctx := context.Background()
	snapshot, err := h.presence.Snapshot(ctx, sessionID)
	if err != nil {
		log.Printf("Presence snapshot failed for session %d: %v", sessionID, err)
		return
	}
	// Always the full set, never an increment: late subscribers reconstruct
	// presence from any single event.
	err = h.bus.Publish(ctx, Event{
		Type:      EventPresenceSynced,
		SessionID: sessionID,
		Payload:   gin.H{"participants": snapshot},
	})
	if err != nil {
		log.Printf("Failed to publish presence for session %d: %v", sessionID, err)
	}
}

func (c *Client) describe() string {
	if c.presenter {
		return "presenter"
	}
	return "participant " + c.participantID
}

func (c *Client) joinPresence() {
	ctx := context.Background()
	entry := PresenceEntry{
		ParticipantID: c.participantID,
		DisplayName:   c.displayName,
		JoinedAt:      time.Now(),
	}
	if err := c.hub.presence.Join(ctx, c.sessionID, entry); err != nil {
		log.Printf("Presence join failed for session %d: %v", c.sessionID, err)
		return
	}
	c.hub.publishPresence(c.sessionID)
}

// sendStateSync pushes the authoritative current state to one client:
// session status, active question, presence and, for participants, whether
// they already answered. Reconnecting clients rebuild from this instead of
// assuming a blank slate.
func (c *Client) sendStateSync() {
	ctx := context.Background()
	payload := gin.H{}

	session, err := c.hub.sessions.GetSession(c.sessionID)
	if err != nil {
		log.Printf("State sync failed for session %d: %v", c.sessionID, err)
		return
	}
	payload["session"] = session

	if question, err := c.hub.questions.ActiveQuestion(c.sessionID); err == nil {
		payload["active_question"] = question
		if aggregation, err := c.hub.responses.AggregateQuestion(c.sessionID, question.QuestionKey); err == nil {
			payload["aggregation"] = aggregation
		}
		if !c.presenter {
			submitted, err := c.hub.responses.HasSubmitted(c.participantID, question.QuestionKey)
			if err == nil {
				payload["submitted"] = submitted
			}
		}
	} else if !errors.Is(err, ErrNotFound) {
		log.Printf("State sync failed for session %d: %v", c.sessionID, err)
	}

	if snapshot, err := c.hub.presence.Snapshot(ctx, c.sessionID); err == nil {
		payload["participants"] = snapshot
	}

	data, err := json.Marshal(Message{Type: "state_sync", Payload: payload})
	if err != nil {
		log.Printf("Error marshaling state sync: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "heartbeat":
		if c.presenter {
			return
		}
		err := c.hub.presence.Heartbeat(context.Background(), c.sessionID, c.participantID)
		if errors.Is(err, ErrNotFound) {
			// TTL lapsed while the connection lived on; re-register.
			c.joinPresence()
		}
	case "request_state":
		c.sendStateSync()
	default:
		log.Printf("Unknown message type %q from %s in session %d", msg.Type, c.describe(), c.sessionID)
	}
}
