package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
	"github.com/R3E-Network/marketplace/internal/fetch"
	"github.com/R3E-Network/marketplace/internal/session"
	"github.com/R3E-Network/marketplace/internal/view"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// Snapshot is one live frame: every view the page shows, rendered from the
// current fetcher states.
type Snapshot struct {
	Header  view.HeaderView         `json:"header"`
	Catalog view.CatalogView        `json:"catalog"`
	Product *view.ProductDetailView `json:"product,omitempty"`
	Profile view.ProfileView        `json:"profile"`
}

// liveRequest is a client message on the websocket.
type liveRequest struct {
	// Product selects the product shown in the detail view.
	Product *uint64 `json:"product,omitempty"`
	// Refresh re-reads the catalog.
	Refresh bool `json:"refresh,omitempty"`
}

// liveHub tracks open websocket connections so shutdown can close them.
type liveHub struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func newLiveHub(allowedOrigins []string) *liveHub {
	h := &liveHub{conns: make(map[*websocket.Conn]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

func (h *liveHub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *liveHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *liveHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// closeAll sends a close frame to every connection and refuses new ones.
func (h *liveHub) closeAll() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.Close()
	}
}

// live streams a Snapshot whenever the session or a fetcher changes. Each
// connection owns its detail fetcher, so one client picking a product does
// not move another's view.
func (h *handler) live(w http.ResponseWriter, r *http.Request) {
	conn, err := h.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	if !h.hub.add(conn) {
		_ = conn.Close()
		return
	}
	defer h.hub.remove(conn)

	detail := fetch.NewDetailFetcher(h.Reader, h.log)
	defer detail.Close()
	composer := h.oneShot()

	dirty := make(chan struct{}, 1)
	mark := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}

	unsubSession := h.Session.Subscribe(func(session.Event) { mark() })
	defer unsubSession()
	unsubCatalog := h.Catalog.Subscribe(func(fetch.State[[]marketplace.Product]) { mark() })
	defer unsubCatalog()
	unsubProfile := h.Profile.Subscribe(func(fetch.State[marketplace.Profile]) { mark() })
	defer unsubProfile()
	unsubDetail := detail.Subscribe(func(fetch.State[marketplace.Product]) { mark() })
	defer unsubDetail()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var req liveRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Product != nil {
				detail.SetProductID(*req.Product)
			}
			if req.Refresh {
				h.Catalog.Refresh()
			}
			mark()
		}
	}()

	h.Catalog.Load()
	mark()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-dirty:
			snap := Snapshot{
				Header:  h.Composer.Header(),
				Catalog: h.Composer.Catalog(),
				Profile: h.Composer.Profile(),
			}
			if id, ok := detail.Key(); ok {
				pv := composer.RenderProduct(id, detail.State())
				snap.Product = &pv
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
