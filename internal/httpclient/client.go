package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/sirupsen/logrus"
)

const userAgent = "GeoSource-CitationCheck/1.0"

// Client wraps outbound JSON API calls for a single provider
type Client struct {
	provider string
	timeout  time.Duration
	client   *resty.Client
}

// Request describes a single outbound call
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    interface{}
	Timeout time.Duration // overrides the client default when set
}

// Response is the raw result of a successful (2xx) call
type Response struct {
	StatusCode int
	Body       []byte
}

// New creates a client for provider with a default timeout and headers sent on every call.
// Redirects are never followed: a 3xx response is returned as an UpstreamError.
func New(provider string, timeout time.Duration, headers map[string]string) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	for k, v := range headers {
		client.SetHeader(k, v)
	}

	return &Client{
		provider: provider,
		timeout:  timeout,
		client:   client,
	}
}

// Provider returns the provider name used in errors
func (c *Client) Provider() string {
	return c.provider
}

// Timeout returns the default per-call timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// HTTPClient exposes the underlying *http.Client so SDK-based adapters share
// the same timeout and redirect policy.
func (c *Client) HTTPClient() *http.Client {
	return c.client.GetClient()
}

// Send performs the request. Non-2xx responses, including redirects, are
// returned as *apperrors.UpstreamError carrying the parsed error message.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := c.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	resp, err := r.Execute(method, req.URL)
	if err != nil {
		// url.Error embeds the full URL, which may carry credentials in the query string
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &apperrors.UpstreamError{
			Provider: c.provider,
			Message:  "request failed",
			Cause:    err,
		}
	}

	logrus.WithFields(logrus.Fields{
		"provider": c.provider,
		"method":   method,
		"status":   resp.StatusCode(),
		"elapsed":  time.Since(start).String(),
	}).Debug("Upstream call finished")

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &apperrors.UpstreamError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode(),
			Message:    errorMessage(resp.StatusCode(), resp.Body()),
			Body:       truncate(string(resp.Body()), 1000),
		}
	}

	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}

// SendJSON performs the request and decodes the response body into out
func (c *Client) SendJSON(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &apperrors.UpstreamError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Message:    "malformed response body",
			Cause:      err,
		}
	}
	return nil
}

// errorMessage extracts a provider message from common JSON error shapes:
// {"error": {"message": ...}}, {"error": "..."}, {"message": ...}, {"detail": ...}
func errorMessage(status int, body []byte) string {
	if status >= 300 && status < 400 {
		return "unexpected redirect"
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if e, ok := parsed["error"]; ok {
			switch v := e.(type) {
			case string:
				return v
			case map[string]interface{}:
				if msg, ok := v["message"].(string); ok {
					return msg
				}
			}
		}
		for _, key := range []string{"message", "detail"} {
			if msg, ok := parsed[key].(string); ok {
				return msg
			}
		}
	}

	text := http.StatusText(status)
	if text == "" {
		text = fmt.Sprintf("status %d", status)
	}
	return text
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
