package live

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pricewatch/internal/metrics"
	"pricewatch/internal/series"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// Inbound frames are tiny subscribe messages.
	maxMessageSize = 512
	sendQueueSize  = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is what the widget sends over the socket. Only subscribe
// is understood; anything else is ignored.
type clientMessage struct {
	Type string `json:"type"`
	TPNC string `json:"tpnc"`
}

// envelope wraps a reconstructed series pushed to the widget.
type envelope struct {
	Type string         `json:"type"`
	TPNC string         `json:"tpnc"`
	Data series.Payload `json:"data"`
}

// Hub tracks connected widgets and pushes fresh payloads when the scraper
// records a price change. It implements the scraper's Notifier.
type Hub struct {
	source Source
	loc    *time.Location

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(source Source, loc *time.Location) *Hub {
	return &Hub{
		source:  source,
		loc:     loc,
		clients: make(map[*client]struct{}),
	}
}

// PriceObserved tells every widget showing tpnc to rebuild its payload. The
// scraper has already stored the new row, so each loader rereads history;
// the observed shelf price rides along as the live current-price override.
func (h *Hub) PriceObserved(tpnc string, actual, clubcard *float64) {
	live := 0.0
	if actual != nil {
		live = *actual
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.loader.Active() == tpnc {
			c.loader.Refresh(tpnc, live)
		}
	}
}

// ClientCount returns how many widgets are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and runs the connection until the widget
// goes away. The widget picks a product either with a ?tpnc= query
// parameter or by sending {"type":"subscribe","tpnc":"..."} frames;
// switching products mid-connection is just another subscribe.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		hub:  h,
	}
	c.loader = NewLoader(h.source, h.loc, c.push)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSClientsConnected.Inc()

	if tpnc := r.URL.Query().Get("tpnc"); tpnc != "" {
		c.loader.Show(tpnc)
	}

	go c.writePump()
	c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	metrics.WSClientsConnected.Dec()
}

// client is one widget connection. The loader renders into push, which
// hands frames to the write pump through the send channel.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	loader *Loader

	closeMu sync.Mutex
	closed  bool
}

// push is the loader's render sink. A full send queue means the reader is
// not keeping up; the frame is dropped rather than blocking the loader,
// and the next price change carries fresher data anyway.
func (c *client) push(tpnc string, payload series.Payload) {
	data, err := json.Marshal(envelope{Type: "series", TPNC: tpnc, Data: payload})
	if err != nil {
		log.Printf("live: encode payload for %s: %v", tpnc, err)
		return
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("live: dropping frame for %s, slow client", tpnc)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("live: read: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "subscribe" && msg.TPNC != "" {
			c.loader.Show(msg.TPNC)
		}
	}
}

// close tears the connection down once. Closing the send channel stops the
// write pump; the closed flag stops push from writing to a dead channel.
func (c *client) close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	c.conn.Close()
	close(c.send)
	c.hub.remove(c)
}
