package xrplrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paysync/internal/ledger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 20 * time.Second

type Client struct {
	url        string
	httpClient *http.Client
}

type Config struct {
	URL     string
	Timeout time.Duration
}

// RetrievalError reports a failed or malformed rippled call. It is never
// retried.
type RetrievalError struct {
	Method string
	Reason string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Method, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Reason)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// AccountTx fetches one page of an account's transactions from
// req.LedgerIndexMin up to the latest ledger.
func (c *Client) AccountTx(ctx context.Context, req ledger.AccountTxRequest) (ledger.AccountTxPage, error) {
	ctx, span := otel.Tracer("paysync/xrplrpc").Start(ctx, "xrplrpc.account_tx",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("xrpl.account", req.Account),
			attribute.Int64("xrpl.ledger_index_min", req.LedgerIndexMin),
			attribute.Int("xrpl.limit", req.Limit),
			attribute.Bool("xrpl.has_marker", !ledger.IsEmptyMarker(req.Marker)),
		),
	)
	defer span.End()

	params := accountTxParams{
		Account:        req.Account,
		LedgerIndexMin: req.LedgerIndexMin,
		LedgerIndexMax: ledger.LedgerIndexMax,
		Limit:          req.Limit,
	}
	if !ledger.IsEmptyMarker(req.Marker) {
		params.Marker = req.Marker
	}

	var result accountTxResult
	if err := c.call(ctx, "account_tx", params, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledger.AccountTxPage{}, err
	}
	span.SetAttributes(attribute.Int("xrpl.transactions", len(result.Transactions)))

	return ledger.AccountTxPage{
		Account:        result.Account,
		LedgerIndexMin: result.LedgerIndexMin,
		LedgerIndexMax: result.LedgerIndexMax,
		Transactions:   result.Transactions,
		Marker:         result.Marker,
	}, nil
}

// Ping checks that the server answers RPC calls.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", struct{}{}, nil)
}

type accountTxParams struct {
	Account        string          `json:"account"`
	LedgerIndexMin int64           `json:"ledger_index_min"`
	LedgerIndexMax int64           `json:"ledger_index_max"`
	Limit          int             `json:"limit,omitempty"`
	Marker         json.RawMessage `json:"marker,omitempty"`
}

type accountTxResult struct {
	Account        string                  `json:"account"`
	LedgerIndexMin int64                   `json:"ledger_index_min"`
	LedgerIndexMax int64                   `json:"ledger_index_max"`
	Transactions   []ledger.AccountTxEntry `json:"transactions"`
	Marker         json.RawMessage         `json:"marker"`
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
}

type rpcStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	payload, err := json.Marshal(rpcRequest{
		Method: method,
		Params: []any{params},
	})
	if err != nil {
		return &RetrievalError{Method: method, Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return &RetrievalError{Method: method, Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RetrievalError{Method: method, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return &RetrievalError{Method: method, Reason: fmt.Sprintf("rpc status %d", resp.StatusCode)}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &RetrievalError{Method: method, Reason: "decode response", Err: err}
	}
	trimmed := bytes.TrimSpace(decoded.Result)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &RetrievalError{Method: method, Reason: "response has no result envelope"}
	}

	var status rpcStatus
	if err := json.Unmarshal(trimmed, &status); err != nil {
		return &RetrievalError{Method: method, Reason: "decode result", Err: err}
	}
	if status.Status == "error" || status.Error != "" {
		reason := "rpc error " + status.Error
		if status.ErrorMessage != "" {
			reason += ": " + status.ErrorMessage
		}
		return &RetrievalError{Method: method, Reason: reason}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, result); err != nil {
		return &RetrievalError{Method: method, Reason: "decode result", Err: err}
	}
	return nil
}
