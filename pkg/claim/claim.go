package claim

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

	"github.com/cravepos/brigade/pkg/metrics"
)

const (
	consumePath  = "/onsite/public/claim/consume"
	finalizePath = "/onsite/public/claim/finalize"

	defaultConsumeTimeout  = 10 * time.Second
	defaultFinalizeTimeout = 10 * time.Second

	// maxResponseBytes bounds how much of an edge response is read. The
	// consume response is a small JSON object; anything larger is broken.
	maxResponseBytes = 1 << 20
)

// UpstreamError describes a failed call to the on-premise edge server.
// The API layer maps it to 502 Bad Gateway.
type UpstreamError struct {
	Op     string // "consume" or "finalize"
	Status int    // edge HTTP status, 0 for transport failures
	Err    error
}

func (e *UpstreamError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("onsite server did not respond in time (%s)", e.Op)
	}
	if e.Status != 0 {
		return fmt.Sprintf("onsite %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("onsite %s unreachable: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConsumeResponse is the edge server's answer to a claim/consume call.
// ServerUID is the only field the pairing logic requires; the hints are
// offered to the operator flow when naming the new store.
type ConsumeResponse struct {
	ServerUID         string `json:"serverUid"`
	ServerLabel       string `json:"serverLabel,omitempty"`
	StoreNameHint     string `json:"storeNameHint,omitempty"`
	AddressHint       string `json:"addressHint,omitempty"`
	TimezoneHint      string `json:"timezoneHint,omitempty"`
	FinalizeToken     string `json:"finalizeToken,omitempty"`
	FinalizeExpiresAt string `json:"finalizeExpiresAt,omitempty"`
}

// FinalizeRequest delivers the committed cloud-side pairing back to the
// edge server, including the node credential it will present from now on.
type FinalizeRequest struct {
	FinalizeToken  string `json:"finalizeToken"`
	CloudStoreID   string `json:"cloudStoreId"`
	CloudStoreCode string `json:"cloudStoreCode"`
	CloudNodeID    string `json:"cloudNodeId"`
	NodeKey        string `json:"nodeKey"`
	NodeToken      string `json:"nodeToken"`
	CloudBaseURL   string `json:"cloudBaseUrl,omitempty"`
	LinkedBy       string `json:"linkedBy"`
}

type consumeRequest struct {
	ClaimID   string `json:"claimId"`
	ClaimCode string `json:"claimCode"`
}

// Client calls the two public pairing endpoints of an on-premise edge
// server. It is never invoked inside a storage transaction; the pairing
// flow consumes first, commits, then finalizes.
type Client struct {
	http            *http.Client
	consumeTimeout  time.Duration
	finalizeTimeout time.Duration
}

// Options configures a Client. Zero values fall back to 10s timeouts and
// a default http.Client.
type Options struct {
	HTTPClient      *http.Client
	ConsumeTimeout  time.Duration
	FinalizeTimeout time.Duration
}

// NewClient creates a pairing client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	consumeTimeout := opts.ConsumeTimeout
	if consumeTimeout <= 0 {
		consumeTimeout = defaultConsumeTimeout
	}
	finalizeTimeout := opts.FinalizeTimeout
	if finalizeTimeout <= 0 {
		finalizeTimeout = defaultFinalizeTimeout
	}
	return &Client{
		http:            httpClient,
		consumeTimeout:  consumeTimeout,
		finalizeTimeout: finalizeTimeout,
	}
}

// Consume redeems a claim code against the edge server. The call carries
// a hard deadline and propagates cancellation from the inbound request;
// timeouts, non-2xx responses and malformed bodies all come back as
// *UpstreamError.
func (c *Client) Consume(ctx context.Context, baseURL, claimID, claimCode string) (*ConsumeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.consumeTimeout)
	defer cancel()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ClaimConsumeDuration)

	body, err := json.Marshal(consumeRequest{ClaimID: claimID, ClaimCode: claimCode})
	if err != nil {
		return nil, fmt.Errorf("failed to encode consume request: %w", err)
	}

	resp, err := c.post(ctx, endpoint(baseURL, consumePath), body)
	if err != nil {
		metrics.ClaimRequestsTotal.WithLabelValues("upstream_error").Inc()
		return nil, &UpstreamError{Op: "consume", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ClaimRequestsTotal.WithLabelValues("upstream_error").Inc()
		return nil, &UpstreamError{
			Op:     "consume",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("edge returned status %d", resp.StatusCode),
		}
	}

	var out ConsumeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		metrics.ClaimRequestsTotal.WithLabelValues("upstream_error").Inc()
		return nil, &UpstreamError{
			Op:     "consume",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("malformed consume response: %w", err),
		}
	}
	if out.ServerUID == "" {
		metrics.ClaimRequestsTotal.WithLabelValues("upstream_error").Inc()
		return nil, &UpstreamError{
			Op:     "consume",
			Status: resp.StatusCode,
			Err:    errors.New("consume response missing serverUid"),
		}
	}

	metrics.ClaimRequestsTotal.WithLabelValues("ok").Inc()
	return &out, nil
}

// Finalize reports the committed pairing back to the edge. Failure is
// non-fatal to the caller: the cloud-side link is already durable, so the
// error is surfaced in the operator response instead of rolling back.
func (c *Client) Finalize(ctx context.Context, baseURL string, req FinalizeRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.finalizeTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode finalize request: %w", err)
	}

	resp, err := c.post(ctx, endpoint(baseURL, finalizePath), body)
	if err != nil {
		return &UpstreamError{Op: "finalize", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{
			Op:     "finalize",
			Status: resp.StatusCode,
			Err:    fmt.Errorf("edge returned status %d", resp.StatusCode),
		}
	}

	// Response body is ignored on success.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
