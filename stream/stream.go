// Package stream publishes engine frames to browser clients over WebSocket
// and accepts their control commands.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samaelod/flowmap/engine"
	"github.com/samaelod/flowmap/metrics"
)

const (
	sendBuffer     = 8
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxCommandSize = 4096
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames out to every connected client. A client that cannot keep
// up skips frames instead of slowing the engine down.
type Hub struct {
	// Submit queues a decoded client command. NewHub points it at
	// Engine.Submit.
	Submit func(engine.Command) bool

	log      *engine.Logger
	metrics  *metrics.Registry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

func NewHub(eng *engine.Engine) *Hub {
	return &Hub{
		Submit:  eng.Submit,
		log:     eng.Log,
		metrics: eng.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish encodes f once and queues it for every client.
func (h *Hub) Publish(f engine.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Errorf("Encode frame: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
			h.metrics.StreamFramesTotal.Inc()
		default:
			h.metrics.StreamDroppedTotal.Inc()
		}
	}
}

// Last returns the most recently published frame as JSON.
func (h *Hub) Last() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.metrics.StreamClients.Set(float64(len(h.clients)))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.StreamClients.Set(float64(len(h.clients)))
}

// ServeWS upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	h.log.Infof("Stream client %s connected", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
	h.log.Infof("Stream client %s disconnected", r.RemoteAddr)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warnf("Stream read: %v", err)
			}
			return
		}

		var cmd engine.Command
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.Op == "" {
			if err == nil {
				err = errors.New("missing op")
			}
			h.log.Warnf("Stream command rejected: %v", err)
			h.metrics.RecordCommand("invalid", err)
			continue
		}
		if !h.Submit(cmd) {
			h.log.Warnf("Command queue full, dropped %s", cmd.Op)
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
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Handler serves /ws, the latest frame at /frame, Prometheus metrics at
// /metrics and /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/frame", func(w http.ResponseWriter, r *http.Request) {
		data := h.Last()
		if data == nil {
			http.Error(w, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(h.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

// Serve runs the engine's host loop and an HTTP server on addr until ctx
// is cancelled.
func Serve(ctx context.Context, eng *engine.Engine, addr string, tps int) error {
	hub := NewHub(eng)
	server := &http.Server{
		Addr:              addr,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		eng.Log.Infof("Streaming on %s (/ws, /frame, /metrics)", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		cancel()
	}()

	runErr := eng.Run(ctx, tps, hub.Publish)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	default:
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
