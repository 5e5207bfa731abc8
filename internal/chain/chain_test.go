package chain

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/marketplace/internal/clarity"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/pkg/logger"
	"github.com/R3E-Network/marketplace/pkg/testutil"
)

const contractName = "marketplace"

func newTestContract(t *testing.T, cfg Config) (*testutil.FakeNode, *MarketplaceContract) {
	t.Helper()
	node := testutil.NewFakeNode(t)
	cfg.TestnetURL = node.URL()
	cfg.Logger = logger.NewNop()
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return node, NewMarketplaceContract(client, ContractIdentity{
		Address: testutil.TestnetAddress,
		Name:    contractName,
		Network: Testnet,
	})
}

func requireCode(t *testing.T, err error, kind svcerrors.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	se := svcerrors.GetServiceError(err)
	require.NotNil(t, se, "expected a service error, got %v", err)
	assert.Equal(t, kind, se.Kind)
	assert.Equal(t, code, se.Code)
}

func TestParseNetwork(t *testing.T) {
	n, err := ParseNetwork(" MainNet ")
	require.NoError(t, err)
	assert.Equal(t, Mainnet, n)

	_, err = ParseNetwork("regtest")
	assert.Error(t, err)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{MaxRetries: -1})
	assert.Error(t, err)
	_, err = NewClient(Config{Timeout: -time.Second})
	assert.Error(t, err)

	c, err := NewClient(Config{TestnetURL: "http://localhost:3999/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3999", c.NodeURL(Testnet))
	assert.Equal(t, DefaultMainnetURL, c.NodeURL(Mainnet))
}

func TestParseCallResponse(t *testing.T) {
	okBody := testutil.ResultBody(clarity.NewUInt(7))

	cases := []struct {
		name   string
		status int
		body   string
		kind   svcerrors.Kind
		code   string
	}{
		{"throttled", http.StatusTooManyRequests, "slow down", svcerrors.KindNetwork, svcerrors.CodeNodeUnavailable},
		{"server error", http.StatusBadGateway, "", svcerrors.KindNetwork, svcerrors.CodeNodeUnavailable},
		{"client error", http.StatusBadRequest, `{"error":"bad sender"}`, svcerrors.KindContract, svcerrors.CodeCallRejected},
		{"abort", http.StatusOK, testutil.AbortBody("Runtime(DivisionByZero)"), svcerrors.KindContract, svcerrors.CodeContractAbort},
		{"not json", http.StatusOK, "<html>", svcerrors.KindDecode, svcerrors.CodeBadPayload},
		{"no okay", http.StatusOK, `{"result":"0x01"}`, svcerrors.KindDecode, svcerrors.CodeShapeMismatch},
		{"no result", http.StatusOK, `{"okay":true}`, svcerrors.KindDecode, svcerrors.CodeShapeMismatch},
		{"bad hex", http.StatusOK, `{"okay":true,"result":"0xzz"}`, svcerrors.KindDecode, svcerrors.CodeBadPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCallResponse(tc.status, []byte(tc.body))
			requireCode(t, err, tc.kind, tc.code)
		})
	}

	v, err := parseCallResponse(http.StatusOK, []byte(okBody))
	require.NoError(t, err)
	assert.Equal(t, "u7", v.String())
}

func TestParseCallResponse_RejectionMessage(t *testing.T) {
	_, err := parseCallResponse(http.StatusBadRequest, []byte(`{"error":"bad sender"}`))
	se := svcerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, "bad sender", se.Message)
	assert.Equal(t, http.StatusBadRequest, se.Details["status"])
}

func TestGetProductDetails_Request(t *testing.T) {
	node, contract := newTestContract(t, Config{})
	node.Reply(FnGetProductDetails, clarity.Some(testutil.ProductValue("Lamp", "Brass desk lamp", 40)))

	p, err := contract.GetProductDetails(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Title)
	assert.Equal(t, uint64(40), p.Price)

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testutil.TestnetAddress, calls[0].ContractAddress)
	assert.Equal(t, contractName, calls[0].ContractName)
	assert.Equal(t, FnGetProductDetails, calls[0].Function)
	assert.Equal(t, testutil.TestnetAddress, calls[0].Sender, "deployer is the default sender")
	require.Len(t, calls[0].Arguments, 1)
	assert.Equal(t, "0x01"+strings.Repeat("0", 30)+"01", calls[0].Arguments[0])
}

func TestGetAllProducts_KeepsOrder(t *testing.T) {
	node, contract := newTestContract(t, Config{})
	node.Reply(FnGetAllProducts, testutil.ProductsValue(
		testutil.ProductValue("Lamp", "Brass desk lamp", 40),
		testutil.ProductValue("Chair", "Oak chair", 120),
	))

	products, err := contract.GetAllProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Lamp", products[0].Title)
	assert.Equal(t, "Chair", products[1].Title)

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Arguments)
}

func TestGetMemberProfile(t *testing.T) {
	node, contract := newTestContract(t, Config{})
	node.Reply(FnGetMemberProfile, testutil.ProfileValue("seller", "active"))
	node.Reply(FnGetReputation, testutil.ReputationValue(42))

	ctx := context.Background()
	profile, err := contract.GetMemberProfile(ctx, testutil.TestnetAddress)
	require.NoError(t, err)
	assert.Equal(t, "seller", profile.Role)
	assert.Equal(t, "active", profile.Status)

	rep, err := contract.GetReputation(ctx, testutil.TestnetAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rep.Score)

	calls := node.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[0].Arguments, 1)
	assert.True(t, strings.HasPrefix(calls[0].Arguments[0], "0x051a"), "standard principal with testnet version, got %s", calls[0].Arguments[0])
}

func TestGetMemberProfile_NotFound(t *testing.T) {
	node, contract := newTestContract(t, Config{})
	node.Reply(FnGetMemberProfile, clarity.None())

	_, err := contract.GetMemberProfile(context.Background(), testutil.TestnetAddress)
	requireCode(t, err, svcerrors.KindContract, svcerrors.CodeNotFound)
	assert.Contains(t, err.Error(), FnGetMemberProfile)
}

func TestInvalidPrincipal_NeverReachesNode(t *testing.T) {
	node, contract := newTestContract(t, Config{})

	_, err := contract.GetReputation(context.Background(), "not-an-address")
	requireCode(t, err, svcerrors.KindContract, svcerrors.CodeInvalidArgument)
	assert.Zero(t, node.CallCount(FnGetReputation))
}

func TestUndefinedFunction_IsContractAbort(t *testing.T) {
	_, contract := newTestContract(t, Config{})

	_, err := contract.GetAllProducts(context.Background())
	requireCode(t, err, svcerrors.KindContract, svcerrors.CodeContractAbort)
	assert.Contains(t, err.Error(), "UndefinedFunction")
}

func TestShapeMismatch(t *testing.T) {
	node, contract := newTestContract(t, Config{})
	node.Reply(FnGetProductDetails, clarity.Some(clarity.NewUInt(3)))

	p, err := contract.GetProductDetails(context.Background(), 0)
	requireCode(t, err, svcerrors.KindDecode, svcerrors.CodeShapeMismatch)
	assert.Zero(t, p)
}

func TestRetry_OnlyNetworkErrors(t *testing.T) {
	node, contract := newTestContract(t, Config{MaxRetries: 2})

	node.ReplyRaw(FnGetAllProducts, http.StatusServiceUnavailable, "down")
	_, err := contract.GetAllProducts(context.Background())
	requireCode(t, err, svcerrors.KindNetwork, svcerrors.CodeNodeUnavailable)
	assert.Equal(t, 3, node.CallCount(FnGetAllProducts))

	node.Abort(FnGetReputation, "Runtime")
	_, err = contract.GetReputation(context.Background(), testutil.TestnetAddress)
	requireCode(t, err, svcerrors.KindContract, svcerrors.CodeContractAbort)
	assert.Equal(t, 1, node.CallCount(FnGetReputation))
}

func TestUnreachableNode(t *testing.T) {
	client, err := NewClient(Config{TestnetURL: "http://127.0.0.1:1", Logger: logger.NewNop()})
	require.NoError(t, err)
	contract := NewMarketplaceContract(client, ContractIdentity{Address: testutil.TestnetAddress, Name: contractName, Network: Testnet})

	_, err = contract.GetAllProducts(context.Background())
	requireCode(t, err, svcerrors.KindNetwork, svcerrors.CodeNodeUnreachable)
}

func TestUnwrap(t *testing.T) {
	v, err := Unwrap(clarity.Ok(clarity.Some(clarity.NewUInt(1))), "thing")
	require.NoError(t, err)
	assert.Equal(t, "u1", v.String())

	_, err = Unwrap(clarity.Err(clarity.NewUInt(404)), "thing")
	requireCode(t, err, svcerrors.KindContract, svcerrors.CodeContractAbort)

	_, err = Unwrap(clarity.Ok(clarity.None()), "thing")
	requireCode(t, err, svcerrors.KindContract, svcerrors.CodeNotFound)
	assert.Contains(t, err.Error(), "thing not found")
}

func TestParseReputation_BareUint(t *testing.T) {
	rep, err := ParseReputation(clarity.NewUInt(9))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), rep.Score)

	_, err = ParseReputation(clarity.NewInt(-1))
	requireCode(t, err, svcerrors.KindDecode, svcerrors.CodeShapeMismatch)
}

func TestContractIdentity(t *testing.T) {
	id := ContractIdentity{Address: testutil.TestnetAddress, Name: contractName, Network: Testnet}
	require.NoError(t, id.Validate())
	assert.Equal(t, testutil.TestnetAddress, id.Sender())

	id.SenderAddress = testutil.TestnetPubKeyAddress
	q := id.Query(FnGetReputation, clarity.EncodeUint(1))
	assert.Equal(t, testutil.TestnetPubKeyAddress, q.SenderAddress)
	assert.Equal(t, Testnet, q.Network)

	assert.Error(t, ContractIdentity{Name: contractName, Network: Testnet}.Validate())
	assert.Error(t, ContractIdentity{Address: testutil.TestnetAddress, Network: Testnet}.Validate())
}
