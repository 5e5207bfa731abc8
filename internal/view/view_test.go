package view

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
	"github.com/R3E-Network/marketplace/internal/fetch"
	"github.com/R3E-Network/marketplace/internal/session"
	"github.com/R3E-Network/marketplace/pkg/logger"
	"github.com/R3E-Network/marketplace/pkg/testutil"
)

func TestRenderCatalog_Loading(t *testing.T) {
	c := NewComposer(nil, nil, nil, nil, logger.NewNop())
	for _, st := range []fetch.State[[]marketplace.Product]{{Status: fetch.Idle}, {Status: fetch.Loading}} {
		v := c.RenderCatalog(st)
		assert.Equal(t, LoadingText, v.Placeholder)
		assert.Empty(t, v.Products)
		assert.Contains(t, v.Text(), "Loading...")
	}
}

func TestRenderCatalog_Loaded(t *testing.T) {
	c := NewComposer(nil, nil, nil, nil, logger.NewNop())
	v := c.RenderCatalog(fetch.State[[]marketplace.Product]{
		Status: fetch.Loaded,
		Value: []marketplace.Product{
			{Title: "Lamp", Description: "Brass desk lamp", Price: 40},
			{Title: "Chair", Description: "Oak chair", Price: 120},
		},
	})
	require.Len(t, v.Products, 2)
	assert.Equal(t, uint64(1), v.Products[1].ID)
	assert.Equal(t, "Price: 40 STX", v.Products[0].PriceLabel)
	assert.Empty(t, v.Placeholder)

	text := v.Text()
	assert.Contains(t, text, "Lamp")
	assert.Contains(t, text, "Price: 120 STX")
	assert.Less(t, strings.Index(text, "Lamp"), strings.Index(text, "Chair"))
}

func TestRenderCatalog_EmptyHasZeroItems(t *testing.T) {
	c := NewComposer(nil, nil, nil, nil, logger.NewNop())
	v := c.RenderCatalog(fetch.State[[]marketplace.Product]{Status: fetch.Loaded, Value: []marketplace.Product{}})
	assert.Len(t, v.Products, 0)
	assert.Empty(t, v.Placeholder)
	assert.Equal(t, "Products\n", v.Text())

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"products":[]`)
	assert.Contains(t, string(raw), `"status":"loaded"`)
}

func TestRenderFailed_LogsOncePerGeneration(t *testing.T) {
	var buf bytes.Buffer
	c := NewComposer(nil, nil, nil, nil, logger.NewWithWriter(&buf))
	st := fetch.State[marketplace.Product]{
		Status:     fetch.Failed,
		Generation: 3,
		Err:        &fetch.ErrorInfo{Kind: "decode", Code: "SHAPE_MISMATCH", Message: "expected tuple, got uint"},
	}

	v := c.RenderProduct(7, st)
	assert.Equal(t, UnavailableText, v.Placeholder)
	assert.Nil(t, v.Product)
	assert.False(t, v.Purchasable)
	require.NotNil(t, v.Error)
	assert.Equal(t, "decode", v.Error.Kind)

	c.RenderProduct(7, st)
	assert.Equal(t, 1, strings.Count(buf.String(), "expected tuple"))

	st.Generation = 4
	c.RenderProduct(7, st)
	assert.Equal(t, 2, strings.Count(buf.String(), "expected tuple"))
}

func TestRenderProduct_Loaded(t *testing.T) {
	c := NewComposer(nil, nil, nil, nil, logger.NewNop())
	v := c.RenderProduct(2, fetch.State[marketplace.Product]{
		Status: fetch.Loaded,
		Value:  marketplace.Product{Title: "Chair", Description: "Oak chair", Price: 120},
	})
	require.NotNil(t, v.Product)
	assert.Equal(t, uint64(2), v.Product.ID)
	assert.True(t, v.Purchasable)
	assert.Equal(t, "Chair\nOak chair\nPrice: 120 STX\n", v.Text())
}

func TestRenderProfile(t *testing.T) {
	c := NewComposer(nil, nil, nil, nil, logger.NewNop())

	loading := c.RenderProfile(fetch.State[marketplace.Profile]{Status: fetch.Loading})
	assert.Equal(t, "Loading...\n", loading.Text())

	v := c.RenderProfile(fetch.State[marketplace.Profile]{
		Status: fetch.Loaded,
		Value: marketplace.Profile{
			Address:    testutil.TestnetAddress,
			Member:     marketplace.MemberProfile{Role: "seller", Status: "active"},
			Reputation: marketplace.Reputation{Score: 0},
		},
	})
	assert.Equal(t, "Profile\nRole: seller\nStatus: active\nReputation: 0\n", v.Text())
}

func TestHeader(t *testing.T) {
	store := session.NewMemoryStore()
	conn := testutil.NewRecordingConnector(store)
	mgr := session.NewManager(store, conn, session.AppDetails{Name: AppTitle}, logger.NewNop())
	c := NewComposer(mgr, nil, nil, nil, logger.NewNop())

	h := c.Header()
	assert.Equal(t, ConnectText, h.Action)
	assert.Equal(t, session.Disconnected, h.State)
	assert.Zero(t, conn.Invocations(), "rendering must never trigger connect")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, conn.Finish(ctx, testutil.TestnetAddress, nil))

	h = c.Header()
	assert.Equal(t, testutil.TestnetAddress, h.Address)
	assert.Empty(t, h.Action)
	assert.Contains(t, h.Text(), testutil.TestnetAddress)
}

func TestComposerReadsFetchersLive(t *testing.T) {
	reader := testutil.NewStubReader()
	reader.SetProducts(marketplace.Product{Title: "Lamp", Price: 40})
	catalog := fetch.NewCatalogFetcher(reader, logger.NewNop())
	defer catalog.Close()
	c := NewComposer(nil, catalog, nil, nil, logger.NewNop())

	assert.Equal(t, LoadingText, c.Catalog().Placeholder)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := catalog.Wait(ctx, catalog.Load())
	require.NoError(t, err)
	assert.Len(t, c.Catalog().Products, 1)
}
