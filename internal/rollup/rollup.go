// Package rollup is a thin HTTP client for the Cartesi rollup host: it
// fetches the next advance/inspect request from ROLLUP_HTTP_SERVER_URL and
// posts back vouchers, notices, and reports. It carries no kernel logic of
// its own; it only moves JSON across the wire.
package rollup

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
)

// ErrNoMoreInputs is returned by Fetch when the host has no pending input
// and the client should idle or stop, depending on FinishStatus.
var ErrNoMoreInputs = errors.New("rollup: no more inputs")

// RequestType distinguishes the two input kinds the host delivers.
type RequestType string

const (
	AdvanceRequest RequestType = "advance_state"
	InspectRequest RequestType = "inspect_state"
)

// Metadata accompanies an advance request: the sender, the input index, and
// the block timestamp the engine treats as "now".
type Metadata struct {
	MsgSender   string `json:"msg_sender"`
	EpochIndex  int64  `json:"epoch_index"`
	InputIndex  int64  `json:"input_index"`
	BlockNumber int64  `json:"block_number"`
	Timestamp   int64  `json:"timestamp"`
}

// AdvancePayload is the body of an advance_state request.
type AdvancePayload struct {
	Metadata Metadata `json:"metadata"`
	Payload  string   `json:"payload"` // 0x-prefixed hex
}

// InspectPayload is the body of an inspect_state request.
type InspectPayload struct {
	Payload string `json:"payload"`
}

// Request is one item popped off the host's finish endpoint.
type Request struct {
	Type    RequestType
	Advance *AdvancePayload
	Inspect *InspectPayload
}

// Client talks to the rollup HTTP server at baseURL (ROLLUP_HTTP_SERVER_URL).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL, trimming any trailing slash.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FinishStatus is reported on the finish call so the host knows whether the
// previous request was handled.
type FinishStatus string

const (
	StatusAccept FinishStatus = "accept"
	StatusReject FinishStatus = "reject"
)

// Fetch posts a finish message reporting the previous request's status and
// blocks until the host hands back the next one. status should be
// StatusAccept on the very first call (there is no previous request).
func (c *Client) Fetch(ctx context.Context, status FinishStatus) (*Request, error) {
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal finish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/finish", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build finish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call finish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil, ErrNoMoreInputs
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected finish status %d: %s", resp.StatusCode, string(b))
	}

	var envelope struct {
		RequestType string          `json:"request_type"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode finish response: %w", err)
	}

	r := &Request{Type: RequestType(envelope.RequestType)}
	switch r.Type {
	case AdvanceRequest:
		var adv AdvancePayload
		if err := json.Unmarshal(envelope.Data, &adv); err != nil {
			return nil, fmt.Errorf("failed to decode advance payload: %w", err)
		}
		r.Advance = &adv
	case InspectRequest:
		var insp InspectPayload
		if err := json.Unmarshal(envelope.Data, &insp); err != nil {
			return nil, fmt.Errorf("failed to decode inspect payload: %w", err)
		}
		r.Inspect = &insp
	default:
		return nil, fmt.Errorf("unrecognised request_type %q", envelope.RequestType)
	}
	return r, nil
}

// Notice posts a 0x-prefixed hex payload as a notice and returns its index.
func (c *Client) Notice(ctx context.Context, payloadHex string) (int64, error) {
	return c.post(ctx, "/notice", payloadHex)
}

// Report posts a 0x-prefixed hex payload as a report.
func (c *Client) Report(ctx context.Context, payloadHex string) error {
	_, err := c.post(ctx, "/report", payloadHex)
	return err
}

// Voucher posts a transfer call targeted at destination (0x-prefixed
// address) with the given 0x-prefixed hex payload, returning its index.
func (c *Client) Voucher(ctx context.Context, destination, payloadHex string) (int64, error) {
	body, err := json.Marshal(map[string]string{"destination": destination, "payload": payloadHex})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal voucher request: %w", err)
	}
	return c.postRaw(ctx, "/voucher", body)
}

func (c *Client) post(ctx context.Context, path, payloadHex string) (int64, error) {
	body, err := json.Marshal(map[string]string{"payload": payloadHex})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.postRaw(ctx, path, body)
}

func (c *Client) postRaw(ctx context.Context, path string, body []byte) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected %s status %d: %s", path, resp.StatusCode, string(b))
	}

	var out struct {
		Index int64 `json:"index"`
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return 0, nil
		}
	}
	return out.Index, nil
}
