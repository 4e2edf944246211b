// internal/api/server.go
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tamzrod/dmc-bridge/internal/controller"
	"github.com/tamzrod/dmc-bridge/internal/status"
)

const (
	// DefaultReportInterval limits how often cycle reports are broadcast.
	DefaultReportInterval = 100 * time.Millisecond

	// DefaultRequestTimeout bounds one request waiting for the cycle.
	DefaultRequestTimeout = 2 * time.Second

	sendQueueSize = 64
	pingInterval  = 30 * time.Second
	readTimeout   = 60 * time.Second
	writeTimeout  = 10 * time.Second
	maxMessage    = 64 * 1024
)

// Config is the minimal runtime config the server needs.
type Config struct {
	Listen string
	Target Dispatcher

	ReportInterval time.Duration
	RequestTimeout time.Duration
}

// Server broadcasts controller events to WebSocket clients and runs their
// requests on the control cycle.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	clientMu sync.RWMutex
	clients  map[int64]*wsClient
	nextID   atomic.Int64

	reportMu   sync.Mutex
	lastReport time.Time

	httpServer *http.Server
}

// New creates a server. Zero intervals take the defaults.
func New(cfg Config) (*Server, error) {
	if cfg.Target == nil {
		return nil, errors.New("api: target required")
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = DefaultReportInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		cfg:     cfg,
		clients: make(map[int64]*wsClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", s.handleWebSocket)
	return mux
}

// Start serves until Close. It returns http.ErrServerClosed after Close,
// including when Close ran first.
func (s *Server) Start() error {
	log.Printf("api: listening on %s", s.cfg.Listen)
	return s.httpServer.ListenAndServe()
}

// Close disconnects every client and stops the listener.
func (s *Server) Close() error {
	s.clientMu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = make(map[int64]*wsClient)
	s.clientMu.Unlock()

	return s.httpServer.Close()
}

// ---- controller.Events ----

func (s *Server) Message(level controller.Level, text string) {
	s.broadcast(notification{
		Method: "notify_message",
		Params: messageParams{Level: level.String(), Text: text},
	})
}

func (s *Server) OperatingState(snap status.Snapshot) {
	s.broadcast(notification{
		Method: "notify_operating_state",
		Params: snap,
	})
}

// Report broadcasts a cycle report, at most once per ReportInterval.
func (s *Server) Report(rep status.Report) {
	s.reportMu.Lock()
	if !s.lastReport.IsZero() && rep.At.Sub(s.lastReport) < s.cfg.ReportInterval {
		s.reportMu.Unlock()
		return
	}
	s.lastReport = rep.At
	s.reportMu.Unlock()

	s.broadcast(notification{
		Method: "notify_report",
		Params: newReportParams(rep),
	})
}

func (s *Server) broadcast(msg any) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()

	for _, c := range s.clients {
		c.Send(msg)
	}
}

// ---- websocket ----

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{
		id:     s.nextID.Add(1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, sendQueueSize),
		done:   make(chan struct{}),
	}

	s.clientMu.Lock()
	s.clients[c.id] = c
	s.clientMu.Unlock()

	log.Printf("api: websocket client %d connected", c.id)

	go c.writePump()
	c.readPump() // blocks until the connection closes
}

func (s *Server) removeClient(c *wsClient) {
	s.clientMu.Lock()
	delete(s.clients, c.id)
	s.clientMu.Unlock()

	log.Printf("api: websocket client %d disconnected", c.id)
}

// wsClient is one WebSocket connection.
type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

// Send queues a message. A full queue drops it.
func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
	}
}

func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("api: websocket read error (client=%d): %v", c.id, err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.server.cfg.RequestTimeout)
		c.Send(c.server.handleRequest(ctx, data))
		cancel()
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("api: websocket write error (client=%d): %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
