package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/marketplace/internal/app/metrics"
	"github.com/R3E-Network/marketplace/internal/chain"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/internal/fetch"
	"github.com/R3E-Network/marketplace/internal/httputil"
	"github.com/R3E-Network/marketplace/internal/session"
	"github.com/R3E-Network/marketplace/internal/view"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxConnectBody     = 4 << 10
)

// ErrPurchaseNotSupported is returned by the purchase route. The client is
// read-only; buying needs a signed transaction.
var ErrPurchaseNotSupported = svcerrors.NotImplemented("purchasing is not supported by this client")

// Deps bundles what the handlers read. Every field except Connector is
// required.
type Deps struct {
	Session *session.Manager
	// Connector receives identities posted to /session/connect. Nil disables
	// the route.
	Connector *session.AddressConnector
	Mainnet   bool
	Reader    chain.MarketplaceReader
	Catalog   *fetch.CatalogFetcher
	Profile   *fetch.ProfileFetcher
	Composer  *view.Composer
	Logger    *logger.Logger
	// WaitTimeout bounds how long a request waits for a fetch to settle.
	WaitTimeout time.Duration
}

func (d Deps) validate() error {
	switch {
	case d.Session == nil:
		return fmt.Errorf("httpapi: session manager required")
	case d.Reader == nil:
		return fmt.Errorf("httpapi: contract reader required")
	case d.Catalog == nil:
		return fmt.Errorf("httpapi: catalog fetcher required")
	case d.Profile == nil:
		return fmt.Errorf("httpapi: profile fetcher required")
	case d.Composer == nil:
		return fmt.Errorf("httpapi: view composer required")
	}
	return nil
}

// handler bundles HTTP endpoints for the marketplace views.
type handler struct {
	Deps
	log *logger.Logger
	hub *liveHub
}

func newHandler(d Deps, hub *liveHub) (*handler, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.WaitTimeout <= 0 {
		d.WaitTimeout = defaultWaitTimeout
	}
	log := d.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &handler{Deps: d, log: log, hub: hub}, nil
}

func (h *handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/products", h.products).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.product).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}/purchase", h.purchase).Methods(http.MethodPost)
	r.HandleFunc("/profile", h.ownProfile).Methods(http.MethodGet)
	r.HandleFunc("/profile/{address}", h.memberProfile).Methods(http.MethodGet)
	r.HandleFunc("/session", h.session).Methods(http.MethodGet)
	r.HandleFunc("/session/connect", h.connect).Methods(http.MethodPost)
	r.HandleFunc("/ws", h.live).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *handler) waitContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.WaitTimeout)
}

// oneShot renders request-scoped fetchers. Those restart at generation 1, so
// they must not share the failure log of the long-lived composer.
func (h *handler) oneShot() *view.Composer {
	return view.NewComposer(nil, nil, nil, nil, h.log)
}

func (h *handler) products(w http.ResponseWriter, r *http.Request) {
	var gen uint64
	if r.URL.Query().Get("refresh") == "true" {
		gen = h.Catalog.Refresh()
	}
	if gen == 0 {
		gen = h.Catalog.Load()
	}
	ctx, cancel := h.waitContext(r)
	defer cancel()
	st, err := h.Catalog.Wait(ctx, gen)
	if err != nil {
		writeWaitError(w, err)
		return
	}
	writeView(w, st.Err, h.Composer.RenderCatalog(st))
}

func (h *handler) product(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteError(w, svcerrors.BadRequest("product id must be a non-negative integer"))
		return
	}

	detail := fetch.NewDetailFetcher(h.Reader, h.log)
	defer detail.Close()

	ctx, cancel := h.waitContext(r)
	defer cancel()
	st, err := detail.Wait(ctx, detail.SetProductID(id))
	if err != nil {
		writeWaitError(w, err)
		return
	}
	writeView(w, st.Err, h.oneShot().RenderProduct(id, st))
}

func (h *handler) purchase(w http.ResponseWriter, r *http.Request) {
	h.log.WithField("product", mux.Vars(r)["id"]).Debug("purchase requested")
	httputil.WriteError(w, ErrPurchaseNotSupported)
}

func (h *handler) ownProfile(w http.ResponseWriter, r *http.Request) {
	address := h.Session.Address()
	if address == "" {
		httputil.WriteError(w, svcerrors.NoSession())
		return
	}
	ctx, cancel := h.waitContext(r)
	defer cancel()
	st, err := h.Profile.Wait(ctx, h.Profile.SetAddress(address))
	if err != nil {
		writeWaitError(w, err)
		return
	}
	writeView(w, st.Err, h.Composer.RenderProfile(st))
}

func (h *handler) memberProfile(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	profile := fetch.NewProfileFetcher(h.Reader, h.log)
	defer profile.Close()

	ctx, cancel := h.waitContext(r)
	defer cancel()
	st, err := profile.Wait(ctx, profile.SetAddress(address))
	if err != nil {
		writeWaitError(w, err)
		return
	}
	writeView(w, st.Err, h.oneShot().RenderProfile(st))
}

type sessionResponse struct {
	Header    view.HeaderView `json:"header"`
	LastError string          `json:"last_error,omitempty"`
}

func (h *handler) sessionView() sessionResponse {
	resp := sessionResponse{Header: h.Composer.Header()}
	if err := h.Session.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.sessionView())
}

func (h *handler) connect(w http.ResponseWriter, r *http.Request) {
	if h.Connector == nil {
		httputil.WriteError(w, svcerrors.NotImplemented("this surface has no wallet connector"))
		return
	}

	var payload struct {
		Address   string `json:"address"`
		PublicKey string `json:"public_key"`
	}
	if err := httputil.DecodeJSONBody(r, maxConnectBody, &payload); err != nil {
		httputil.WriteError(w, svcerrors.BadRequest(err.Error()))
		return
	}
	identity := payload.Address
	if identity == "" {
		identity = payload.PublicKey
	}
	if identity == "" {
		httputil.WriteError(w, svcerrors.BadRequest("address or public_key is required"))
		return
	}
	if _, err := session.ResolveIdentity(identity, h.Mainnet); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx, cancel := h.waitContext(r)
	defer cancel()
	h.Connector.Offer(identity)
	if err := h.Composer.Connect(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.Session.WaitConnected(ctx); err != nil {
		writeWaitError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.sessionView())
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"session": h.Session.State(),
		"catalog": h.Catalog.State().Status,
	})
}

// writeView answers 200 with v, or the failure's status with v as the body
// so clients still get the placeholder and structured error.
func writeView(w http.ResponseWriter, info *fetch.ErrorInfo, v any) {
	status := http.StatusOK
	if info != nil {
		status = info.HTTPStatus
		if status == 0 {
			status = http.StatusBadGateway
		}
	}
	httputil.WriteJSON(w, status, v)
}

func writeWaitError(w http.ResponseWriter, err error) {
	if svcerrors.GetServiceError(err) != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusGatewayTimeout, httputil.ErrorResponse{
		Error: "request did not settle: " + err.Error(),
		Code:  svcerrors.CodeNodeUnreachable,
		Kind:  string(svcerrors.KindNetwork),
	})
}
