package nft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"mixtape/pkg/models"
)

const jsonRPCVersion = "2.0"

// RPCError is an error object returned by the JSON-RPC endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error: code = %d, message = %s", e.Code, e.Message)
}

type rpcRequest struct {
	Version string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCClient reads assets from a DAS-compatible JSON-RPC endpoint.
type RPCClient struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewRPCClient creates a client for the endpoint at url.
func NewRPCClient(url string, httpClient *http.Client) *RPCClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RPCClient{url: url, httpClient: httpClient}
}

// ReadAsset calls getAsset for address.
func (c *RPCClient) ReadAsset(ctx context.Context, address string) (*models.Asset, error) {
	params := map[string]string{"id": address}

	raw, err := c.call(ctx, "getAsset", params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNoMetadata
	}

	var asset models.Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		return nil, fmt.Errorf("failed to decode asset: %w", err)
	}
	return &asset, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		Version: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{URL: c.url, StatusCode: res.StatusCode}
	}

	var resp rpcResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}
