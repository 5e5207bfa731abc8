package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/marketplace/internal/app/metrics"
	"github.com/R3E-Network/marketplace/internal/clarity"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/internal/httputil"
)

// maxResponseBytes bounds how much of a node answer is read.
const maxResponseBytes = 8 << 20

// ContractQuery names one read-only function call. Build a fresh value per call.
type ContractQuery struct {
	ContractAddress string
	ContractName    string
	FunctionName    string
	FunctionArgs    []clarity.EncodedArg
	SenderAddress   string
	Network         Network
}

type callReadRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

// CallReadOnly executes q and returns the decoded Clarity result. Errors are
// *errors.ServiceError values of kind network, contract or decode.
func (c *Client) CallReadOnly(ctx context.Context, q ContractQuery) (clarity.Value, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := c.log.WithField("request_id", requestID).
		WithField("function", q.FunctionName).
		WithField("network", string(q.Network))

	value, err := c.callWithRetry(ctx, q)
	outcome := "ok"
	if err != nil {
		outcome = string(svcerrors.KindOf(err))
		log.WithError(err).Debug("read-only call failed")
	} else {
		log.WithField("duration", time.Since(start).String()).Debug("read-only call completed")
	}
	metrics.RecordContractCall(q.FunctionName, outcome, time.Since(start))
	return value, err
}

func (c *Client) callWithRetry(ctx context.Context, q ContractQuery) (clarity.Value, error) {
	body, err := encodeRequest(q)
	if err != nil {
		return nil, err
	}
	endpoint, err := c.endpoint(q)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		value, err := c.post(ctx, endpoint, body)
		if err == nil || attempt >= c.maxRetries || !svcerrors.IsKind(err, svcerrors.KindNetwork) {
			return value, err
		}
		if c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, svcerrors.Network("retry aborted", ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}
	}
}

func encodeRequest(q ContractQuery) ([]byte, error) {
	args := make([]string, 0, len(q.FunctionArgs))
	for i, arg := range q.FunctionArgs {
		h, err := arg.Hex()
		if err != nil {
			return nil, svcerrors.InvalidArgument(fmt.Sprintf("argument %d of %s", i, q.FunctionName), err).
				WithDetails("argument", arg.String())
		}
		args = append(args, h)
	}
	body, err := json.Marshal(callReadRequest{Sender: q.SenderAddress, Arguments: args})
	if err != nil {
		return nil, svcerrors.Internal("marshal request", err)
	}
	return body, nil
}

func (c *Client) endpoint(q ContractQuery) (string, error) {
	if q.ContractAddress == "" || q.ContractName == "" || q.FunctionName == "" {
		return "", svcerrors.InvalidArgument("contract address, contract name and function are required", nil)
	}
	network := q.Network
	if network == "" {
		network = Testnet
	}
	return fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s",
		c.NodeURL(network),
		url.PathEscape(q.ContractAddress),
		url.PathEscape(q.ContractName),
		url.PathEscape(q.FunctionName),
	), nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (clarity.Value, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, svcerrors.Network("rate limiter", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, svcerrors.Internal("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, svcerrors.Network("execute request", err)
	}
	defer resp.Body.Close()

	respBody, truncated, err := httputil.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, svcerrors.Network("read response", err)
	}
	if truncated {
		return nil, svcerrors.Decode(fmt.Sprintf("response exceeds %d bytes", maxResponseBytes), nil)
	}

	return parseCallResponse(resp.StatusCode, respBody)
}

// parseCallResponse maps a node answer onto a value or a classified error.
func parseCallResponse(status int, body []byte) (clarity.Value, error) {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, svcerrors.NodeUnavailable(status, snippet(body))
	case status >= 400:
		msg := snippet(body)
		if e := gjson.GetBytes(body, "error"); e.Exists() {
			msg = e.String()
		}
		return nil, svcerrors.Contract(svcerrors.CodeCallRejected, msg).WithDetails("status", status)
	}

	if !gjson.ValidBytes(body) {
		return nil, svcerrors.Decode("node answer is not JSON", fmt.Errorf("body %q", snippet(body)))
	}
	okay := gjson.GetBytes(body, "okay")
	if !okay.Exists() {
		return nil, svcerrors.Decode("node answer has no okay field", nil)
	}
	if !okay.Bool() {
		cause := gjson.GetBytes(body, "cause").String()
		if cause == "" {
			cause = "call rejected by node"
		}
		return nil, svcerrors.Contract(svcerrors.CodeContractAbort, cause)
	}

	result := gjson.GetBytes(body, "result")
	if result.Type != gjson.String {
		return nil, svcerrors.Decode("node answer has no result", nil)
	}
	value, err := clarity.DeserializeHex(result.String())
	if err != nil {
		return nil, svcerrors.Decode("decode clarity result", err)
	}
	return value, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		return s[:256] + "...(truncated)"
	}
	return s
}
