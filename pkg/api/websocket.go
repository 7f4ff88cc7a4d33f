package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

const (
	wsSendBuffer   = 32
	wsWriteWait    = 10 * time.Second
	wsMaxReadBytes = 512
)

// wsClient is one progress subscriber. Messages are queued on send and
// written by the client's own goroutine.
type wsClient struct {
	conn      *websocket.Conn
	send      chan any
	userID    string
	listingID string // empty means every listing of the user
}

func (c *wsClient) wants(msg progressMessage) bool {
	if c.userID != msg.userID {
		return false
	}
	return c.listingID == "" || c.listingID == msg.ListingID
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Debugf("API: websocket write to %s failed: %v", c.userID, err)
			c.conn.Close()
			return
		}
	}
}

type progressMessage struct {
	Type      string `json:"type"`
	ListingID string `json:"listing_id"`
	photo.Progress

	userID string
}

// checkOrigin allows same-host requests, plus the configured origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// handleWebSocket upgrades an authorized request. Clients only listen; the
// optional ?listing= query narrows the feed to one listing.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("API: WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(wsMaxReadBytes)

	c := &wsClient{
		conn:      conn,
		send:      make(chan any, wsSendBuffer),
		userID:    session.UserID,
		listingID: r.URL.Query().Get("listing"),
	}

	s.clientsMu.Lock()
	if s.stopping.Value() {
		s.clientsMu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	go c.writeLoop()
	defer s.removeClient(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.removeClientLocked(c)
}

// removeClientLocked closes the client once; later calls are no-ops.
func (s *Server) removeClientLocked(c *wsClient) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	c.conn.Close()
}

// BroadcastProgress sends a "progress" message to userID's subscribers.
func (s *Server) BroadcastProgress(userID, listingID string, p photo.Progress) {
	s.broadcast(progressMessage{Type: "progress", ListingID: listingID, Progress: p, userID: userID})
}

// broadcast never blocks: a client whose queue is full is dropped.
func (s *Server) broadcast(msg progressMessage) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for c := range s.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			log.Printf("API: dropping slow websocket client %s", c.userID)
			s.removeClientLocked(c)
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}
