package discordblue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxResponseBodySize = 10 << 20

// restClient sends JSON requests to a REST API, rate limited and with
// an authorization header set on every request
type restClient struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	authorize func(r *http.Request)
}

func newRESTClient(
	baseURL string,
	client *http.Client,
	limiter *rate.Limiter,
	logger *slog.Logger,
	authorize func(r *http.Request),
) *restClient {
	if client == nil {
		client = http.DefaultClient
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &restClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		limiter:   limiter,
		logger:    logger,
		authorize: authorize,
	}
}

// do sends body (if not nil) as JSON and decodes the response into out
// (if not nil). Non-2xx responses are returned as *HTTPError.
func (c *restClient) do(ctx context.Context, method string, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "request failed", "method", method, "path", path, tint.Err(err))
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	c.logger.DebugContext(
		ctx,
		"request complete",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			Method:     method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// download fetches url with the client's rate limit, without
// authorization
func (c *restClient) download(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Method:     http.MethodGet,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}
	return data, nil
}
