package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/scrapenet/internal/httputil"
	"github.com/ppiankov/scrapenet/internal/model"
)

// ErrNotRegistered is returned when the validator hotkey has no uid on the subnet
var ErrNotRegistered = errors.New("validator hotkey is not registered on the subnet")

// Ledger is the chain surface the weight loop needs
type Ledger interface {
	Metagraph(ctx context.Context) (*model.Metagraph, error)
	Block(ctx context.Context) (uint64, error)
	SetWeights(ctx context.Context, uids []int, weights []float64) error
}

// BridgeClient implements Ledger against the chain bridge HTTP sidecar
type BridgeClient struct {
	baseURL string
	netUID  int
	hotkey  string
	version string
	client  *http.Client
}

// NewBridgeClient creates a ledger client for netUID signing as hotkey
func NewBridgeClient(baseURL string, netUID int, hotkey, version string, client *http.Client) *BridgeClient {
	if client == nil {
		client = &http.Client{}
	}
	return &BridgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		netUID:  netUID,
		hotkey:  hotkey,
		version: version,
		client:  client,
	}
}

type blockResponse struct {
	Block uint64 `json:"block"`
}

type weightsRequest struct {
	NetUID  int       `json:"netuid"`
	Hotkey  string    `json:"hotkey"`
	UIDs    []int     `json:"uids"`
	Weights []float64 `json:"weights"`
	Version string    `json:"version,omitempty"`
}

type bridgeError struct {
	Error string `json:"error"`
}

// Metagraph fetches the current subnet snapshot
func (c *BridgeClient) Metagraph(ctx context.Context) (*model.Metagraph, error) {
	var mg model.Metagraph
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/metagraph?netuid=%d", c.netUID), nil, &mg); err != nil {
		return nil, fmt.Errorf("metagraph: %w", err)
	}
	for i := range mg.Neurons {
		if mg.Neurons[i].UID != i {
			return nil, fmt.Errorf("metagraph: neuron at position %d has uid %d", i, mg.Neurons[i].UID)
		}
	}
	return &mg, nil
}

// Block returns the current block height
func (c *BridgeClient) Block(ctx context.Context) (uint64, error) {
	var br blockResponse
	if err := c.call(ctx, http.MethodGet, "/block", nil, &br); err != nil {
		return 0, fmt.Errorf("block: %w", err)
	}
	return br.Block, nil
}

// SetWeights submits a weight vector for the validator hotkey
func (c *BridgeClient) SetWeights(ctx context.Context, uids []int, weights []float64) error {
	if len(uids) != len(weights) {
		return fmt.Errorf("set weights: %d uids, %d weights", len(uids), len(weights))
	}
	body := weightsRequest{NetUID: c.netUID, Hotkey: c.hotkey, UIDs: uids, Weights: weights, Version: c.version}
	if err := c.call(ctx, http.MethodPost, "/weights", body, nil); err != nil {
		return fmt.Errorf("set weights: %w", err)
	}
	return nil
}

// RegisteredUID resolves the validator's own uid, or ErrNotRegistered
func RegisteredUID(ctx context.Context, l Ledger, hotkey string) (int, error) {
	mg, err := l.Metagraph(ctx)
	if err != nil {
		return 0, err
	}
	uid, ok := mg.UIDForHotkey(hotkey)
	if !ok {
		return 0, fmt.Errorf("%s: %w", hotkey, ErrNotRegistered)
	}
	return uid, nil
}

func (c *BridgeClient) call(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httputil.DoWithRetry(ctx, c.client, req, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var be bridgeError
		_ = json.Unmarshal(data, &be)
		msg := be.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %s", ErrNotRegistered, msg)
		}
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
