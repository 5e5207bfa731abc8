package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/R3E-Network/marketplace/internal/clarity"
)

// Test addresses. Both decode to the same hash160.
const (
	TestnetAddress = "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ"
	MainnetAddress = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	// TestPublicKey derives to TestnetPubKeyAddress on testnet.
	TestPublicKey        = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	TestnetPubKeyAddress = "ST1THWXQ8368SDN2MJGE4BMDKMCHZ2GSVTSQDA7QF"
)

// NewHTTPTestServer starts an httptest server closed at test cleanup.
func NewHTTPTestServer(t testing.TB, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// NodeCall records one read-only call received by a FakeNode.
type NodeCall struct {
	ContractAddress string
	ContractName    string
	Function        string
	Sender          string
	Arguments       []string
}

// NodeReply is the canned answer for a function.
type NodeReply struct {
	Status int
	Body   string
	// Gate, when set, holds the reply until it is closed.
	Gate <-chan struct{}
}

// FakeNode imitates the Stacks read-only call endpoint.
type FakeNode struct {
	Server *httptest.Server

	mu      sync.Mutex
	replies map[string]NodeReply
	calls   []NodeCall
}

// NewFakeNode starts a fake node. Functions without a reply answer
// okay:false like a node asked for an undefined function.
func NewFakeNode(t testing.TB) *FakeNode {
	t.Helper()
	n := &FakeNode{replies: make(map[string]NodeReply)}
	n.Server = NewHTTPTestServer(t, http.HandlerFunc(n.serve))
	return n
}

// URL returns the node base URL.
func (n *FakeNode) URL() string { return n.Server.URL }

// Reply answers fn with (okay, v).
func (n *FakeNode) Reply(fn string, v clarity.Value) {
	n.ReplyRaw(fn, http.StatusOK, ResultBody(v))
}

// Abort answers fn with okay:false and cause.
func (n *FakeNode) Abort(fn, cause string) {
	n.ReplyRaw(fn, http.StatusOK, AbortBody(cause))
}

// ReplyRaw answers fn with an arbitrary status and body.
func (n *FakeNode) ReplyRaw(fn string, status int, body string) {
	n.SetReply(fn, NodeReply{Status: status, Body: body})
}

// SetReply installs reply for fn.
func (n *FakeNode) SetReply(fn string, reply NodeReply) {
	n.mu.Lock()
	n.replies[fn] = reply
	n.mu.Unlock()
}

// Calls returns the calls received so far.
func (n *FakeNode) Calls() []NodeCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NodeCall, len(n.calls))
	copy(out, n.calls)
	return out
}

// CallCount returns how many times fn was called.
func (n *FakeNode) CallCount(fn string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if c.Function == fn {
			count++
		}
	}
	return count
}

func (n *FakeNode) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if r.Method != http.MethodPost || len(parts) != 6 || parts[0] != "v2" || parts[1] != "contracts" || parts[2] != "call-read" {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	var body struct {
		Sender    string   `json:"sender"`
		Arguments []string `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"bad body"}`, http.StatusBadRequest)
		return
	}

	call := NodeCall{
		ContractAddress: parts[3],
		ContractName:    parts[4],
		Function:        parts[5],
		Sender:          body.Sender,
		Arguments:       body.Arguments,
	}
	n.mu.Lock()
	n.calls = append(n.calls, call)
	reply, ok := n.replies[call.Function]
	n.mu.Unlock()

	if !ok {
		reply = NodeReply{Status: http.StatusOK, Body: AbortBody("Unchecked(UndefinedFunction(\"" + call.Function + "\"))")}
	}
	if reply.Gate != nil {
		select {
		case <-reply.Gate:
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = w.Write([]byte(reply.Body))
}

// =============================================================================
// Clarity builders
// =============================================================================

// ResultBody is a successful call-read answer carrying v.
func ResultBody(v clarity.Value) string {
	h, err := clarity.SerializeHex(v)
	if err != nil {
		panic(fmt.Sprintf("serialize %s: %v", v, err))
	}
	return fmt.Sprintf(`{"okay":true,"result":%q}`, h)
}

// AbortBody is a failed call-read answer.
func AbortBody(cause string) string {
	b, _ := json.Marshal(map[string]any{"okay": false, "cause": cause})
	return string(b)
}

// ProductValue builds a product tuple.
func ProductValue(title, description string, price uint64) clarity.Tuple {
	return clarity.Tuple{
		"title":       clarity.StringUTF8(title),
		"description": clarity.StringUTF8(description),
		"price":       clarity.NewUInt(price),
	}
}

// ProductsValue builds (ok (list …)) of product tuples.
func ProductsValue(products ...clarity.Tuple) clarity.Value {
	list := make(clarity.List, 0, len(products))
	for _, p := range products {
		list = append(list, p)
	}
	return clarity.Ok(list)
}

// ProfileValue builds (some {role, status}).
func ProfileValue(role, status string) clarity.Value {
	return clarity.Some(clarity.Tuple{
		"role":   clarity.StringASCII(role),
		"status": clarity.StringASCII(status),
	})
}

// ReputationValue builds (ok {score}).
func ReputationValue(score uint64) clarity.Value {
	return clarity.Ok(clarity.Tuple{"score": clarity.NewUInt(score)})
}
