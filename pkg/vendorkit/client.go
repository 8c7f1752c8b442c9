package vendorkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetry   time.Duration
	RequestID  func() string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

// WithMaxRetry bounds how long transport failures and 5xx responses are
// retried. Zero disables retries.
func WithMaxRetry(d time.Duration) Option {
	return func(c *Client) {
		c.MaxRetry = d
	}
}

func WithRequestID(fn func() string) Option {
	return func(c *Client) {
		c.RequestID = fn
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		MaxRetry: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// APIError is an error body returned by the marketplace.
type APIError struct {
	Status  int               `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace returned %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) WellKnown(ctx context.Context) (WellKnown, error) {
	var out WellKnown
	err := c.do(ctx, http.MethodGet, "/.well-known", nil, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, vendorID string) (Registration, error) {
	var out Registration
	err := c.do(ctx, http.MethodPost, "/vendors", map[string]any{"vendorId": vendorID}, &out)
	return out, err
}

func (c *Client) SubmitSignature(ctx context.Context, sig Signature, doc *DIDDocument) error {
	body := map[string]any{"signature": sig}
	if doc != nil {
		body["identityDoc"] = doc
	}
	return c.do(ctx, http.MethodPost, vendorPath(sig.Creator, "/signature"), body, nil)
}

func (c *Client) SetProfile(ctx context.Context, profile map[string]any, sig Signature, doc *DIDDocument) error {
	return c.do(ctx, http.MethodPost, vendorPath(sig.Creator, "/profile"), profileBody(profile, sig, doc), nil)
}

func (c *Client) PatchProfile(ctx context.Context, patch map[string]any, sig Signature, doc *DIDDocument) error {
	return c.do(ctx, http.MethodPatch, vendorPath(sig.Creator, "/profile"), profileBody(patch, sig, doc), nil)
}

func (c *Client) GetVendor(ctx context.Context, vendorID string) (Vendor, error) {
	var out Vendor
	err := c.do(ctx, http.MethodGet, vendorPath(vendorID, ""), nil, &out)
	return out, err
}

func (c *Client) RequestPoPR(ctx context.Context, vendorID string, opts PoPROptions) (IssuedPoPR, error) {
	var out IssuedPoPR
	err := c.do(ctx, http.MethodPost, vendorPath(vendorID, "/popr"), opts, &out)
	return out, err
}

func vendorPath(vendorID, suffix string) string {
	return "/vendors/" + url.PathEscape(vendorID) + suffix
}

func profileBody(profile map[string]any, sig Signature, doc *DIDDocument) map[string]any {
	body := map[string]any{"profile": profile, "signature": sig}
	if doc != nil {
		body["identityDoc"] = doc
	}
	return body
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c == nil {
		return errors.New("vendorkit client is nil")
	}
	if c.BaseURL == "" {
		return errors.New("marketplace base URL is required")
	}
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.RequestID != nil {
			req.Header.Set("X-Request-ID", c.RequestID())
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(string(body))
			}
			apiErr.Status = resp.StatusCode
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	if c.MaxRetry <= 0 {
		err := operation()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = c.MaxRetry
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
