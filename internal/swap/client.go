// Package swap talks to the external liquidity-routing aggregator:
// a quote endpoint and a swap-transaction-build endpoint, both JSON
// over HTTP. Transient failures are retried with bounded exponential
// backoff; anything indicating an invalid request fails immediately.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NativeTON is the asset id the aggregator uses for the native coin;
// jettons are identified by their master contract address.
const NativeTON = "ton"

var ErrPermanent = errors.New("swap request rejected")

type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	log        *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, maxRetries int, baseDelay time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: dialDualStack,
			},
		},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        log,
	}
}

type QuoteRequest struct {
	InputAsset  string `json:"input_asset"`
	OutputAsset string `json:"output_asset"`
	InputAmount int64  `json:"input_amount"`
	SlippageBPS int    `json:"slippage_bps"`
}

type Quote struct {
	RouteID         string `json:"route_id"`
	InputAmount     int64  `json:"input_amount"`
	OutputAmount    int64  `json:"output_amount"`
	MinOutputAmount int64  `json:"min_output_amount"`
}

type BuildRequest struct {
	RouteID       string `json:"route_id"`
	SenderAddress string `json:"sender_address"`
}

// Message is one ready-to-sign transfer the aggregator wants broadcast
// from the sender wallet. Payload is a base64 BOC.
type Message struct {
	Address    string `json:"address"`
	AmountNano int64  `json:"amount"`
	Payload    string `json:"payload"`
}

type TxTemplate struct {
	Messages   []Message `json:"messages"`
	ValidUntil int64     `json:"valid_until"`
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var q Quote
	if err := c.postJSON(ctx, "/v1/quote", req, &q); err != nil {
		return nil, err
	}
	if q.RouteID == "" {
		return nil, fmt.Errorf("%w: aggregator returned no route for %s -> %s", ErrPermanent, req.InputAsset, req.OutputAsset)
	}
	return &q, nil
}

func (c *Client) Build(ctx context.Context, req BuildRequest) (*TxTemplate, error) {
	var tpl TxTemplate
	if err := c.postJSON(ctx, "/v1/build", req, &tpl); err != nil {
		return nil, err
	}
	if len(tpl.Messages) == 0 {
		return nil, fmt.Errorf("%w: aggregator returned no messages for route %s", ErrPermanent, req.RouteID)
	}
	return &tpl, nil
}

// postJSON runs one request with up to maxRetries re-attempts on
// transient failures (transport errors, 5xx, 429). The delay doubles
// each attempt with a small random jitter so parallel workers do not
// retry in lockstep. 4xx (except 429) means the request itself is
// wrong and is never retried.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("swap service unavailable: %w", err)
			c.log.Warn("swap request failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("swap service returned %d: %s", resp.StatusCode, respBody)
			c.log.Warn("swap request failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Int("status", resp.StatusCode))
			continue
		}

		return fmt.Errorf("%w: %d: %s", ErrPermanent, resp.StatusCode, respBody)
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.baseDelay << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// dialDualStack tries IPv4 first and falls back to IPv6. Some hosting
// environments resolve AAAA records for the aggregator but cannot
// route them (or the reverse), so a single-family dial wedges there.
func dialDualStack(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}

	conn, err4 := d.DialContext(ctx, "tcp4", addr)
	if err4 == nil {
		return conn, nil
	}
	conn, err6 := d.DialContext(ctx, "tcp6", addr)
	if err6 == nil {
		return conn, nil
	}
	return nil, fmt.Errorf("dial %s: ipv4: %v, ipv6: %v", addr, err4, err6)
}
