// Package server is the daemon's local HTTP surface: the WebSocket bridge the
// extension connects to and a JSON endpoint for the same message surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/browser"
	"github.com/lotas/tabecho/internal/protocol"
	"nhooyr.io/websocket"
)

// DefaultPort is the port the extension connects to.
const DefaultPort = 19292

// DefaultCallTimeout bounds a single call into the extension.
const DefaultCallTimeout = 10 * time.Second

// ErrNotConnected is returned by calls made while no extension is connected.
var ErrNotConnected = errors.New("extension not connected")

// Frame types.
const (
	FrameEvent    = "event"    // extension -> daemon: tab lifecycle event
	FrameMessage  = "message"  // extension -> daemon: UI request
	FrameReply    = "reply"    // daemon -> extension: answer to a message
	FrameCall     = "call"     // daemon -> extension: host API call
	FrameResponse = "response" // extension -> daemon: answer to a call
	FrameHello    = "hello"    // extension -> daemon: sent once after connecting
)

// IncomingMsg is a frame from the extension.
type IncomingMsg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// Event fields.
	Event    string          `json:"event,omitempty"`
	Tab      json.RawMessage `json:"tab,omitempty"`
	TabID    int             `json:"tabId,omitempty"`
	WindowID int             `json:"windowId,omitempty"`
	Name     string          `json:"name,omitempty"`

	// Message payload: a protocol request.
	Message json.RawMessage `json:"message,omitempty"`

	// Call response fields.
	OK      *bool  `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"` // "notFound" when the tab or window is gone
	TabIDs  []int  `json:"tabIds,omitempty"`
	DataURL string `json:"dataUrl,omitempty"`
	Version string `json:"version,omitempty"`
}

// OutgoingMsg is a frame from the daemon to the extension.
type OutgoingMsg struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Action   string          `json:"action,omitempty"`
	TabID    int             `json:"tabId,omitempty"`
	WindowID int             `json:"windowId,omitempty"`
	URL      string          `json:"url,omitempty"`
	Active   bool            `json:"active,omitempty"`
	Format   string          `json:"format,omitempty"`
	Title    string          `json:"title,omitempty"`
	Message  string          `json:"message,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Handler answers protocol messages.
type Handler interface {
	HandleRaw(ctx context.Context, data []byte) protocol.Response
}

// Server manages the WebSocket connection to the extension.
type Server struct {
	port        int
	events      chan browser.Event
	callTimeout time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connCtx   context.Context
	connDone  chan struct{}
	handler   Handler
	onConnect func(ctx context.Context)

	seq     atomic.Uint64
	pending sync.Map // id -> chan IncomingMsg
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:        port,
		events:      make(chan browser.Event, 256),
		callTimeout: DefaultCallTimeout,
	}
}

// SetHandler sets the handler for UI messages and /api/message.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// OnConnect registers a function run after the extension says hello.
func (s *Server) OnConnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = fn
}

// SetCallTimeout overrides DefaultCallTimeout.
func (s *Server) SetCallTimeout(d time.Duration) {
	s.callTimeout = d
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Events returns the channel of tab lifecycle events from the extension.
func (s *Server) Events() <-chan browser.Event {
	return s.events
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// send writes one frame to the connected extension.
func (s *Server) send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// WebSocketHandler returns an http.Handler that accepts WebSocket upgrades.
// A new connection replaces the old one.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(32 << 20) // imports carry base64 screenshots

		ctx := r.Context()
		done := make(chan struct{})
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.connDone = done
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
				s.connDone = nil
			}
			s.mu.Unlock()
			close(done)
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			s.dispatch(ctx, msg)
		}
	})
}

func (s *Server) dispatch(ctx context.Context, msg IncomingMsg) {
	switch msg.Type {
	case FrameEvent:
		ev, err := ParseEvent(msg)
		if err != nil {
			applog.Warn("ws.event", err, "event", msg.Event)
			return
		}
		applog.Debug("ws.event", "event", msg.Event, "tab", msg.TabID)
		select {
		case s.events <- ev:
		default:
			applog.Warn("ws.event_dropped", errors.New("event queue full"), "event", msg.Event)
		}
	case FrameResponse:
		if ch, ok := s.pending.LoadAndDelete(msg.ID); ok {
			ch.(chan IncomingMsg) <- msg
		} else {
			applog.Warn("ws.response", errors.New("no pending call"), "id", msg.ID)
		}
	case FrameMessage:
		// Handlers may call back into the extension, which needs this read
		// loop to keep running.
		go s.reply(ctx, msg)
	case FrameHello:
		applog.Info("ws.hello", "version", msg.Version)
		s.mu.Lock()
		fn := s.onConnect
		s.mu.Unlock()
		if fn != nil {
			go fn(ctx)
		}
	default:
		applog.Warn("ws.frame", fmt.Errorf("unknown frame type %q", msg.Type))
	}
}

func (s *Server) reply(ctx context.Context, msg IncomingMsg) {
	resp := s.handle(ctx, msg.Message)
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		applog.Error("ws.reply", err, "id", msg.ID)
		return
	}
	if err := s.send(OutgoingMsg{Type: FrameReply, ID: msg.ID, Response: data}); err != nil {
		applog.Warn("ws.reply", err, "id", msg.ID)
	}
}

func (s *Server) handle(ctx context.Context, data []byte) protocol.Response {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return protocol.Fail(errors.New("daemon is starting"))
	}
	return h.HandleRaw(ctx, data)
}

// Router returns the daemon's HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.WebSocketHandler().ServeHTTP)
	r.Post("/api/message", s.handleMessage)
	r.Get("/healthz", s.handleHealth)
	return r
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 64<<20)
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Fail(fmt.Errorf("read message: %w", err)))
		return
	}
	writeJSON(w, http.StatusOK, s.handle(r.Context(), raw))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "connected": s.Connected()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Warn("http.write", err)
	}
}

// ListenAndServe serves the router on 127.0.0.1 until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
