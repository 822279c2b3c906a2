// Package ws streams day records to read-only websocket observers.
package ws

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/plant"
)

const (
	defaultQueue = 16
	writeWait    = 5 * time.Second
)

// Hub fans day records out to every connected observer. A client whose
// queue is full is dropped rather than slowing the run.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	queue    int

	// AllowRemote admits non-loopback observers.
	AllowRemote bool

	nextID atomic.Uint64

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	dropped atomic.Uint64
}

type client struct {
	id   string
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() { c.once.Do(func() { close(c.done) }) }

func NewHub(logger *zap.Logger, queue int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue <= 0 {
		queue = defaultQueue
	}
	return &Hub{
		log:   logger,
		queue: queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[*client]struct{}{},
	}
}

// Clients is the number of registered observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts observers disconnected for falling behind.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !h.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			id:   fmt.Sprintf("O%d", h.nextID.Add(1)),
			out:  make(chan []byte, h.queue),
			done: make(chan struct{}),
		}
		if !h.register(c) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer h.wg.Done()
		defer h.unregister(c)
		h.log.Debug("observer connected", zap.String("id", c.id), zap.String("remote", r.RemoteAddr))

		// Observers never send anything we act on; reading only detects hangups.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					c.stop()
					return
				}
			}
		}()

		for {
			select {
			case <-c.done:
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
				_ = conn.Close()
				<-readDone
				h.log.Debug("observer disconnected", zap.String("id", c.id))
				return
			case b := <-c.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					c.stop()
				}
			}
		}
	}
}

// register adds c unless the hub is closed. On success the caller owns one
// wg slot.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// Broadcast encodes rec once and queues it for every observer.
func (h *Hub) Broadcast(rec plant.DayRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- b:
		default:
			delete(h.clients, c)
			c.stop()
			h.dropped.Add(1)
			h.log.Warn("observer dropped: queue full", zap.String("id", c.id), zap.Int("day", rec.Day))
		}
	}
	return nil
}

// Close disconnects every observer and waits for their handlers to return.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.stop()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
