package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/internal/fetch"
	"github.com/R3E-Network/marketplace/internal/session"
	"github.com/R3E-Network/marketplace/internal/view"
	"github.com/R3E-Network/marketplace/pkg/logger"
	"github.com/R3E-Network/marketplace/pkg/testutil"
)

type fixture struct {
	reader  *testutil.StubReader
	session *session.Manager
	server  *Server
	http    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, logger.NewNop(), Options{})
}

func newFixtureWith(t *testing.T, log *logger.Logger, opts Options) *fixture {
	t.Helper()
	reader := testutil.NewStubReader()
	store := session.NewMemoryStore()
	connector := session.NewAddressConnector(store, false, log)
	mgr := session.NewManager(store, connector, session.AppDetails{Name: view.AppTitle}, log)

	catalog := fetch.NewCatalogFetcher(reader, log)
	profile := fetch.NewProfileFetcher(reader, log)
	t.Cleanup(catalog.Close)
	t.Cleanup(profile.Close)
	t.Cleanup(profile.FollowSession(mgr))

	srv, err := NewServer(Deps{
		Session:     mgr,
		Connector:   connector,
		Reader:      reader,
		Catalog:     catalog,
		Profile:     profile,
		Composer:    view.NewComposer(mgr, catalog, nil, profile, log),
		Logger:      log,
		WaitTimeout: 5 * time.Second,
	}, opts)
	require.NoError(t, err)

	return &fixture{
		reader:  reader,
		session: mgr,
		server:  srv,
		http:    testutil.NewHTTPTestServer(t, srv.Handler()),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{}, Options{})
	assert.Error(t, err)
}

func TestProducts(t *testing.T) {
	f := newFixture(t)
	f.reader.SetProducts(
		marketplace.Product{Title: "Lamp", Description: "Brass desk lamp", Price: 40},
		marketplace.Product{Title: "Chair", Description: "Oak chair", Price: 120},
	)

	resp, body := f.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "loaded", body["status"])
	products := body["products"].([]any)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "Lamp", first["title"])
	assert.Equal(t, "Price: 40 STX", first["price_label"])
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	// Loaded catalogs are served without another read.
	f.do(t, http.MethodGet, "/products", nil)
	assert.Equal(t, 1, f.reader.Calls(testutil.ProductsKey()))

	f.do(t, http.MethodGet, "/products?refresh=true", nil)
	assert.Equal(t, 2, f.reader.Calls(testutil.ProductsKey()))
}

func TestProducts_Failure(t *testing.T) {
	f := newFixture(t)
	f.reader.Fail(testutil.ProductsKey(), svcerrors.NodeUnavailable(503, "down"))

	resp, body := f.do(t, http.MethodGet, "/products", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, view.UnavailableText, body["placeholder"])
	errInfo := body["error"].(map[string]any)
	assert.Equal(t, "network", errInfo["kind"])
}

func TestProductDetail(t *testing.T) {
	f := newFixture(t)
	f.reader.SetProduct(2, marketplace.Product{Title: "Chair", Description: "Oak chair", Price: 120})

	resp, body := f.do(t, http.MethodGet, "/products/2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["purchasable"])
	product := body["product"].(map[string]any)
	assert.Equal(t, float64(2), product["id"])
	assert.Equal(t, "Chair", product["title"])

	resp, body = f.do(t, http.MethodGet, "/products/9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, view.UnavailableText, body["placeholder"])

	resp, body = f.do(t, http.MethodGet, "/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, svcerrors.CodeBadRequest, body["code"])
}

func TestPurchaseNotSupported(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/products/0/purchase", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, svcerrors.CodeNotImplemented, body["code"])
}

func TestSessionConnectAndProfile(t *testing.T) {
	f := newFixture(t)
	f.reader.SetProfile(testutil.TestnetAddress, marketplace.MemberProfile{Role: "seller", Status: "active"}, 17)

	resp, body := f.do(t, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, svcerrors.CodeNoSession, body["code"])

	resp, body = f.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	header := body["header"].(map[string]any)
	assert.Equal(t, "disconnected", header["state"])
	assert.Equal(t, view.ConnectText, header["action"])

	resp, body = f.do(t, http.MethodPost, "/session/connect", map[string]string{"address": testutil.TestnetAddress})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	header = body["header"].(map[string]any)
	assert.Equal(t, "connected", header["state"])
	assert.Equal(t, testutil.TestnetAddress, header["address"])

	resp, body = f.do(t, http.MethodGet, "/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "seller", body["role"])
	assert.Equal(t, float64(17), body["reputation"])
}

func TestSessionConnect_BadInput(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/session/connect", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/session/connect", map[string]string{"address": testutil.MainnetAddress})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "mainnet address on a testnet client")
	assert.Equal(t, session.Disconnected, f.session.State())
}

func TestSessionConnect_PublicKey(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/session/connect", map[string]string{"public_key": testutil.TestPublicKey})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, testutil.TestnetPubKeyAddress, f.session.Address())
}

func TestMemberProfile_ReputationDegrades(t *testing.T) {
	f := newFixture(t)
	f.reader.SetProfile(testutil.TestnetAddress, marketplace.MemberProfile{Role: "buyer", Status: "active"}, 5)
	f.reader.Fail(testutil.ReputationKey(testutil.TestnetAddress), svcerrors.NodeUnavailable(502, ""))

	resp, body := f.do(t, http.MethodGet, "/profile/"+testutil.TestnetAddress, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "buyer", body["role"])
	assert.Equal(t, float64(0), body["reputation"])
	assert.NotEmpty(t, body["reputation_error"])

	resp, _ = f.do(t, http.MethodGet, "/profile/"+testutil.TestnetPubKeyAddress, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disconnected", body["session"])

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketplace_http_requests_total")
}

func TestTraceIDOutsideRouter(t *testing.T) {
	var buf bytes.Buffer
	f := newFixtureWith(t, logger.NewWithWriter(&buf), Options{
		AllowedOrigins: []string{"https://shop.example"},
		RateLimit:      0.001,
		Burst:          1,
	})
	get := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.1.1.1:4000"
		if header != "" {
			req.Header.Set("X-Trace-ID", header)
		}
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := get("")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = get("")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	traceID := rec.Header().Get("X-Trace-ID")
	require.NotEmpty(t, traceID)
	assert.Contains(t, buf.String(), "rate limit exceeded")
	assert.Contains(t, buf.String(), traceID)

	rec = get("caller-trace")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "caller-trace", rec.Header().Get("X-Trace-ID"))

	req := httptest.NewRequest(http.MethodOptions, "/session/connect", nil)
	req.RemoteAddr = "10.2.2.2:4000"
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func readSnapshot(t *testing.T, conn *websocket.Conn, until func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var snap Snapshot
		require.NoError(t, conn.ReadJSON(&snap))
		if until(snap) {
			return snap
		}
	}
}

func TestLiveSnapshots(t *testing.T) {
	f := newFixture(t)
	f.reader.SetProducts(marketplace.Product{Title: "Lamp", Price: 40}, marketplace.Product{Title: "Chair", Price: 120})

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	snap := readSnapshot(t, conn, func(s Snapshot) bool { return s.Catalog.Status == fetch.Loaded })
	assert.Len(t, snap.Catalog.Products, 2)
	assert.Equal(t, view.ConnectText, snap.Header.Action)
	assert.Nil(t, snap.Product)

	require.NoError(t, conn.WriteJSON(map[string]any{"product": 1}))
	snap = readSnapshot(t, conn, func(s Snapshot) bool { return s.Product != nil && s.Product.Status == fetch.Loaded })
	assert.Equal(t, "Chair", snap.Product.Product.Title)

	assert.Equal(t, 1, f.server.hub.count())

	f.server.hub.closeAll()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection closed on shutdown")
}

func TestServerLifecycle(t *testing.T) {
	f := newFixture(t)
	f.server.opts.ListenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.server.Start(ctx))
	addr := f.server.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.server.Stop(ctx))
	assert.Empty(t, f.server.Addr())
	require.NoError(t, f.server.Stop(ctx), "stop is idempotent")
}
