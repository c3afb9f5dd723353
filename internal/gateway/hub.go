package gateway

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub is the connection registry: one live client per user id, ticket
// rooms and coach presence. All methods are safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	rooms    map[string]map[*Client]struct{}
	presence map[string]bool

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: make(map[string]bool),
		log:      log,
	}
}

// Register makes c the live client of its user and returns the client it
// replaced, if any. The caller closes the replaced client. Coaches are
// marked online.
func (h *Hub) Register(c *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.clients[c.UserID()]
	h.clients[c.UserID()] = c
	if c.Identity().IsCoach() {
		h.presence[c.UserID()] = true
	}
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes c from every room. It reports the rooms c was in and
// whether c was still the live client of its user; only then does a coach
// go offline.
func (h *Hub) Unregister(c *Client) (rooms []string, current bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.UserID()] == c {
		delete(h.clients, c.UserID())
		delete(h.presence, c.UserID())
		current = true
	}
	for id := range c.rooms {
		rooms = append(rooms, id)
		h.leaveLocked(c, id)
	}
	sort.Strings(rooms)
	return rooms, current
}

func (h *Hub) Client(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[userID]
	return c, ok
}

// Join subscribes c to the ticket room. It refuses clients that are no
// longer the live connection of their user.
func (h *Hub) Join(c *Client, ticketID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.UserID()] != c {
		return false
	}
	room, ok := h.rooms[ticketID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[ticketID] = room
	}
	room[c] = struct{}{}
	c.rooms[ticketID] = struct{}{}
	return true
}

func (h *Hub) leaveLocked(c *Client, ticketID string) {
	delete(c.rooms, ticketID)
	if room, ok := h.rooms[ticketID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, ticketID)
		}
	}
}

func (h *Hub) InRoom(c *Client, ticketID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[ticketID]
	return ok
}

func (h *Hub) IsOnline(coachID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence[coachID]
}

// OnlineCoaches returns the ids of coaches currently connected.
func (h *Hub) OnlineCoaches() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.presence))
	for id := range h.presence {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SendTo delivers to the live client of userID. A missing client is a no-op.
func (h *Hub) SendTo(userID string, f Frame) bool {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Send(f)
}

// BroadcastRoom delivers to every member of the ticket room except skip.
func (h *Hub) BroadcastRoom(ticketID string, f Frame, skip *Client) {
	b, err := encode(f)
	if err != nil {
		h.log.Error("encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[ticketID] {
		if c != skip {
			c.enqueue(b)
		}
	}
}

// Broadcast delivers to every live client accepted by match; nil matches all.
func (h *Hub) Broadcast(f Frame, match func(*Client) bool) {
	b, err := encode(f)
	if err != nil {
		h.log.Error("encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if match == nil || match(c) {
			c.enqueue(b)
		}
	}
}

// CloseAll disconnects every client; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Close("server shutting down")
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
