package mapview

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/partner-tracker/pkg/location"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

//go:embed static
var staticFiles embed.FS

const (
	clientBuffer    = 16
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Event types pushed to browsers.
const (
	EventMarker     = "marker"
	EventCamera     = "camera"
	EventMyLocation = "my_location"
	EventToast      = "toast"
)

// Event is a single websocket message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type webClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// WebMap serves the map to browsers and pushes every change to them.
// A browser that falls behind loses events instead of slowing the map down.
type WebMap struct {
	state
	addr    string
	origins []string
	clients cmap.ConcurrentMap[string, *webClient]
	logger  zerolog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewWebMap creates a browser map listening on addr once started. Browsers on
// the map's own origin may always open the event stream; origins adds host
// patterns (path.Match syntax) for other pages.
func NewWebMap(addr string, origins []string, logger zerolog.Logger) *WebMap {
	return &WebMap{
		state:   newState(),
		addr:    addr,
		origins: origins,
		clients: cmap.New[*webClient](),
		logger:  logger,
	}
}

// Handler returns the HTTP routes of the map.
func (m *WebMap) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	static, _ := fs.Sub(staticFiles, "static")
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/markers", func(w http.ResponseWriter, r *http.Request) {
			m.writeJSON(w, m.Markers())
		})
		r.Get("/camera", func(w http.ResponseWriter, r *http.Request) {
			m.writeJSON(w, m.Camera())
		})
	})
	r.Get("/ws", m.serveWS)
	return r
}

// Start begins serving on the configured address.
func (m *WebMap) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		m.logger.Warn().Msg("WebMap is already running")
		return errors.New("web map is already running")
	}

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("Web map server stopped")
		}
	}(m.server)

	m.logger.Info().Str("addr", ln.Addr().String()).Msg("WebMap started successfully")
	return nil
}

// Stop shuts the server down and disconnects every browser.
func (m *WebMap) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		m.logger.Warn().Msg("WebMap is not running")
		return errors.New("web map is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := m.server.Shutdown(ctx)

	// Hijacked websocket connections are not closed by Shutdown.
	for item := range m.clients.IterBuffered() {
		item.Val.conn.Close(websocket.StatusGoingAway, "map closed")
	}
	m.server = nil

	m.logger.Info().Msg("WebMap stopped successfully")
	return err
}

func (m *WebMap) SetMyLocationEnabled(enabled bool) {
	m.setMyLocation(enabled)
	m.broadcast(Event{Type: EventMyLocation, Data: enabled})
}

func (m *WebMap) SetMarker(marker Marker) {
	m.setMarker(marker)
	stored, _ := m.markers.Get(marker.ID)
	m.broadcast(Event{Type: EventMarker, Data: stored})
}

func (m *WebMap) AnimateCamera(target location.Location, zoom float64) {
	m.broadcast(Event{Type: EventCamera, Data: m.setCamera(target, zoom)})
}

// Notify shows message as a toast in every connected browser.
func (m *WebMap) Notify(message string) {
	m.broadcast(Event{Type: EventToast, Data: message})
}

func (m *WebMap) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error().Err(err).Str("event", ev.Type).Msg("Failed to encode map event")
		return
	}
	for item := range m.clients.IterBuffered() {
		select {
		case item.Val.send <- data:
		default:
			m.logger.Debug().Str("client", item.Key).Str("event", ev.Type).Msg("Dropping event for slow browser")
		}
	}
}

func (m *WebMap) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  m.origins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		m.logger.Err(err).Msg("Error while upgrading websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unhandled error")

	wc := &webClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientBuffer)}
	m.sendSnapshot(wc)
	m.clients.Set(wc.id, wc)
	defer m.clients.Remove(wc.id)
	m.logger.Debug().Str("client", wc.id).Msg("Browser connected")

	// The map never reads from browsers; CloseRead handles control frames and
	// cancels ctx once the browser goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case data := <-wc.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				m.logger.Debug().Err(err).Str("client", wc.id).Msg("Error while writing to browser")
				return
			}
		case <-ctx.Done():
			m.logger.Debug().Str("client", wc.id).Msg("Browser disconnected")
			return
		}
	}
}

// sendSnapshot queues the current map state for a browser that just connected.
func (m *WebMap) sendSnapshot(wc *webClient) {
	events := []Event{{Type: EventMyLocation, Data: m.MyLocationEnabled()}}
	for _, marker := range m.Markers() {
		events = append(events, Event{Type: EventMarker, Data: marker})
	}
	if c := m.Camera(); c.Zoom > 0 {
		events = append(events, Event{Type: EventCamera, Data: c})
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		select {
		case wc.send <- data:
		default:
		}
	}
}

func (m *WebMap) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Error().Err(err).Msg("Failed to write response")
	}
}
