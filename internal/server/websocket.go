package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. A failed ping drops the client.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

func (s *BundleServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Validate origin before accepting connection
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// checkOrigin already applied the configured policy.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

// checkOrigin validates the request origin for security
func (s *BundleServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Reject connections without origin header for security
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if s.isAllowedOrigin(origin) {
		return true
	}

	// The server's own pages are always allowed
	port := s.config.Server.Port
	for _, allowed := range []string{
		s.config.Addr(),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
		r.Host,
	} {
		if originURL.Host == allowed {
			return true
		}
	}

	return false
}

func (s *BundleServer) runWebSocketHub() {
	for {
		select {
		case <-s.done:
			return

		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(context.Background(), "client connected", "clients", clientCount)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
				conn.CloseNow()
				s.logger.Debug(context.Background(), "client disconnected", "clients", len(s.clients))
			}
			s.clientsMutex.Unlock()

		case message := <-s.broadcast:
			s.clientsMutex.Lock()
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, drop it
					delete(s.clients, conn)
					close(client.send)
					go conn.Close(websocket.StatusPolicyViolation, "too slow")
				}
			}
			s.clientsMutex.Unlock()
		}
	}
}

// ClientCount returns the number of connected reload clients.
func (s *BundleServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// readPump drains the connection so control frames are processed. Browsers
// never send anything meaningful.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c.conn:
		case <-c.server.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, _, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.server.logger.Debug(context.Background(), "websocket read ended", "error", err)
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}
		}
	}
}
