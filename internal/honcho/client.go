package honcho

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/liquidmail/liquid-mail/internal/config"
	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/telemetry"
)

// RetryDelay is the initial backoff interval between retries.
var RetryDelay = 500 * time.Millisecond

var ops = telemetry.NewOps("honcho")

// NewClient creates a client for the authenticated workspace.
func NewClient(auth config.HonchoAuth) *Client {
	return &Client{
		BaseURL:     auth.BaseURL,
		APIKey:      auth.APIKey,
		WorkspaceID: auth.WorkspaceID,
		MaxRetries:  DefaultMaxRetries,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a copy of c using httpClient.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

// WithMaxRetries returns a copy of c with a different retry budget.
func (c *Client) WithMaxRetries(n int) *Client {
	cp := *c
	if n < 0 {
		n = 0
	}
	cp.MaxRetries = n
	return &cp
}

// workspacePath prefixes path with the workspace route.
func (c *Client) workspacePath(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(fmt.Sprint(a))
	}
	return "/v3/workspaces/" + url.PathEscape(c.WorkspaceID) + fmt.Sprintf(format, escaped...)
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params url.Values) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = RetryDelay
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.MaxRetries)), ctx)
}

// doJSON performs a request with authentication and retry logic and decodes
// the response into out (when non-nil). Failures are classified *lmerr.Error.
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, body, out any) error {
	return c.do(ctx, method, path, params, body, out, true)
}

// doJSONNoReplay is doJSON for requests that must not be applied twice. Only
// a rate-limit rejection is retried; after a transport error or 5xx the
// request may already have landed.
func (c *Client) doJSONNoReplay(ctx context.Context, method, path string, params url.Values, body, out any) error {
	return c.do(ctx, method, path, params, body, out, false)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any, replaySafe bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	ctx, done := ops.Start(ctx, method+" "+path, attribute.String("workspace", c.WorkspaceID))
	var respBody []byte
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		respBody, err = c.once(ctx, method, path, params, payload)
		if err == nil {
			return nil
		}
		if !replaySafe && !lmerr.IsCode(err, lmerr.CodeRateLimited) {
			return backoff.Permanent(err)
		}
		if lmerr.IsRetryable(err) && ctx.Err() == nil {
			debug.Logf("honcho %s %s attempt %d failed: %v", method, path, attempt, err)
			return err
		}
		return backoff.Permanent(err)
	}, c.newBackOff(ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		done(err)
		return err
	}
	done(nil)

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return lmerr.Wrap(lmerr.New(lmerr.CodeRequestFailed, lmerr.ExitRemoteFailed, false,
			"failed to parse Honcho response for %s %s", method, path), err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, params), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, lmerr.Network(method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	const maxResponseSize = 20 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, lmerr.Network(method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, lmerr.HTTPStatus(resp.StatusCode, method, path, truncate(string(respBody), 2000))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
