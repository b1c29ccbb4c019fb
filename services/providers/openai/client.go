package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pleader-ai/pleader-backend/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

// client performs authenticated JSON calls against the OpenAI API
type client struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

func newClient(config providers.ProviderConfig) *client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// postJSON sends body to path and decodes a 200 response into out.
// Transient failures (transport timeouts and 5xx responses) are retried up
// to config.MaxRetries times; everything else fails immediately.
func (c *client) postJSON(ctx context.Context, path string, body, out interface{}) (int, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, providers.NewProviderError(providerName, "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.config.RetryDelay); err != nil {
				return 0, providers.NewProviderError(providerName, "CANCELLED", "Request cancelled", 0, false, err)
			}
		}

		status, err := c.do(ctx, path, reqBody, out)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if !providers.IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return 0, lastErr
}

func (c *client) do(ctx context.Context, path string, reqBody []byte, out interface{}) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, providers.NewProviderError(providerName, "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, providers.NewProviderError(providerName, "HTTP_ERROR", "HTTP request failed", 0, isTimeout(err), err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, providers.NewProviderError(providerName, "READ_ERROR", "Failed to read response", httpResp.StatusCode, isTimeout(err), err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return httpResp.StatusCode, handleErrorResponse(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return httpResp.StatusCode, providers.NewProviderError(providerName, "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	return httpResp.StatusCode, nil
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.OrgID != "" {
		req.Header.Set("OpenAI-Organization", c.config.OrgID)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
}

// handleErrorResponse handles OpenAI error responses. Only 5xx is retryable;
// 429 is left to the caller.
func handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(providerName, "UNKNOWN_ERROR",
			fmt.Sprintf("unexpected status %d", statusCode), statusCode, retryable, errors.New(string(body)))
	}

	return providers.NewProviderError(
		providerName,
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
