package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of a trigger reply is kept.
const maxResponseBytes = 1 << 20

// TriggerRequest is the body posted to the workflow endpoint.
type TriggerRequest struct {
	ChainName         string            `json:"chainName"`
	TriggerEmail      string            `json:"triggerEmail"`
	SourceID          string            `json:"sourceId,omitempty"`
	FolderID          string            `json:"folderId,omitempty"`
	FirstStepInput    string            `json:"firstStepInput,omitempty"`
	StartingVariables map[string]string `json:"startingVariables"`
}

// Response is the raw reply of a trigger call.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports whether the endpoint answered with a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client posts trigger requests to the external workflow endpoint.
type Client struct {
	endpoint  string
	apiKey    string
	userAgent string
	client    *http.Client
	retries   int
	backoff   time.Duration
}

// NewClient builds a client. A zero timeout falls back to 30s so a stalled
// endpoint can never hold a trigger open indefinitely.
func NewClient(endpoint, apiKey string, timeout time.Duration, retries int, backoff time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if backoff == 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		userAgent: "enroller/1.0",
		client:    &http.Client{Timeout: timeout},
		retries:   retries,
		backoff:   backoff,
	}
}

// WithUserAgent overrides the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// Post sends req once, retrying only transport failures and 5xx replies.
// A non-2xx reply is returned as a Response with a nil error so the caller can
// keep the body for diagnostics.
func (c *Client) Post(ctx context.Context, req TriggerRequest) (Response, error) {
	if c.endpoint == "" {
		return Response{}, fmt.Errorf("automation endpoint is not configured")
	}
	if req.StartingVariables == nil {
		req.StartingVariables = map[string]string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	var (
		lastResp Response
		lastErr  error
	)
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return Response{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", c.userAgent)
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr, lastResp = err, Response{}
		} else {
			b, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			resp.Body.Close()
			lastResp = Response{StatusCode: resp.StatusCode, Body: string(b)}
			lastErr = readErr
			if readErr == nil && resp.StatusCode < 500 {
				return lastResp, nil
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return lastResp, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return lastResp, lastErr
	}
	return lastResp, nil
}
