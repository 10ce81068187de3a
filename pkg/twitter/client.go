package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/logger"
)

const (
	// BaseURL is the root of the v2 API
	BaseURL = "https://api.twitter.com/2"

	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second

	// maxRetryAfter caps how long a server-requested delay may be honoured
	maxRetryAfter = 15 * time.Minute

	bodyPreviewLen = 200
)

// OutcomeKind classifies the result of a single fetch
type OutcomeKind int

const (
	// OutcomeOK means a well-formed page was received
	OutcomeOK OutcomeKind = iota
	// OutcomeRetryable means the same request may succeed if reissued
	OutcomeRetryable
	// OutcomeFatal means the request cannot succeed, e.g. the caller cancelled
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of Fetch. Exactly one of Response and Err is set.
type Outcome struct {
	Kind       OutcomeKind
	Response   *Response
	Body       []byte
	StatusCode int
	Err        *errs.Error
}

// Reason describes why a fetch was not OK
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Error returns the outcome's error as an error value, nil when OK
func (o Outcome) Error() error {
	if o.Err == nil {
		return nil
	}
	return o.Err
}

// Client is a minimal bearer-token client for the v2 API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	token      string
	logger     logger.Logger
	now        func() time.Time
}

// NewClient creates a new API client
func NewClient(baseURL, token string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if baseURL == "" {
		baseURL = BaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent": "tweetharvest/1.0",
			"Accept":     "application/json",
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  log,
		now:     time.Now,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string { return c.baseURL }

// URL builds the absolute request URL for path and params
func (c *Client) URL(path string, params Params) string {
	u := c.baseURL + path
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		logger.LogRequest(c.logger.WithField("error", err.Error()), req.Method, req.URL.String(), 0, duration)
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)

	return resp, nil
}

// Fetch issues one GET and classifies the result. It never retries.
//
// A 2xx body must decode as JSON and carry a meta object. A missing data
// array means the page has no records. Every other failure, including any
// non-2xx status, is reported as retryable.
func (c *Client) Fetch(ctx context.Context, path string, params Params) Outcome {
	body, status, err := c.get(ctx, path, params)
	if err != nil {
		return c.failed(ctx, status, err)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		c.logger.WarnWithFields("failed to parse JSON response", map[string]interface{}{
			"path":         path,
			"status":       status,
			"error":        err.Error(),
			"body_preview": preview(body),
		})
		return Outcome{
			Kind:       OutcomeRetryable,
			Body:       body,
			StatusCode: status,
			Err: &errs.Error{
				Type:    errs.ErrorTypeParsing,
				Message: fmt.Sprintf("failed to parse JSON: %v", err),
				Code:    status,
			},
		}
	}

	if response.Meta == nil {
		c.logger.WarnWithFields("response without meta object", map[string]interface{}{
			"path":         path,
			"status":       status,
			"body_preview": preview(body),
		})
		return Outcome{
			Kind:       OutcomeRetryable,
			Body:       body,
			StatusCode: status,
			Err: &errs.Error{
				Type:    errs.ErrorTypeMalformed,
				Message: "response has no meta object",
				Code:    status,
			},
		}
	}

	return Outcome{
		Kind:       OutcomeOK,
		Response:   &response,
		Body:       body,
		StatusCode: status,
	}
}

// GetJSON performs a GET request and decodes a 2xx JSON body into target
func (c *Client) GetJSON(ctx context.Context, path string, params Params, target interface{}) error {
	body, status, err := c.get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    status,
		}
	}
	return nil
}

// get performs the request and returns the body of a 2xx response
func (c *Client) get(ctx context.Context, path string, params Params) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path, params), nil)
	if err != nil {
		return nil, 0, &errs.Error{
			Type:    errs.ErrorTypeConfig,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := c.checkResponseStatus(resp, body); err != nil {
		return body, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) failed(ctx context.Context, status int, err error) Outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{
			Kind:       OutcomeFatal,
			StatusCode: status,
			Err:        &errs.Error{Type: errs.ErrorTypeCanceled, Message: ctxErr.Error()},
		}
	}

	var apiErr *errs.Error
	if !errors.As(err, &apiErr) {
		apiErr = &errs.Error{Type: errs.ErrorTypeUnknown, Message: err.Error(), Code: status}
	}
	kind := OutcomeRetryable
	if !errs.IsRetryable(apiErr.Type) {
		kind = OutcomeFatal
	}
	return Outcome{Kind: kind, StatusCode: status, Err: apiErr}
}

// checkResponseStatus maps a non-2xx response to a typed error
func (c *Client) checkResponseStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	errType := errs.ClassifyStatus(resp.StatusCode)
	fields := map[string]interface{}{
		"status":       resp.StatusCode,
		"url":          resp.Request.URL.String(),
		"body_preview": preview(body),
	}

	apiErr := &errs.Error{
		Type:    errType,
		Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
		Code:    resp.StatusCode,
	}

	switch errType {
	case errs.ErrorTypeRateLimit:
		apiErr.Message = "rate limit exceeded"
		apiErr.RetryAfter = c.retryAfter(resp.Header)
		fields["retry_after"] = apiErr.RetryAfter.String()
		c.logger.WarnWithFields("rate limit exceeded", fields)
	case errs.ErrorTypeServerError:
		apiErr.Message = "server error"
		apiErr.RetryAfter = c.retryAfter(resp.Header)
		c.logger.WarnWithFields("server error", fields)
	case errs.ErrorTypeAuth:
		apiErr.Message = "authentication rejected"
		c.logger.WarnWithFields("authentication error", fields)
	default:
		c.logger.WarnWithFields("unexpected API error", fields)
	}

	return apiErr
}

// retryAfter reads the server's requested delay from Retry-After or,
// failing that, from the x-rate-limit-reset epoch.
func (c *Client) retryAfter(h http.Header) time.Duration {
	var d time.Duration
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			d = time.Duration(secs) * time.Second
		} else if t, err := http.ParseTime(v); err == nil {
			d = t.Sub(c.now())
		}
	} else if v := h.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			d = time.Unix(epoch, 0).Sub(c.now())
		}
	}

	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > bodyPreviewLen {
		s = s[:bodyPreviewLen] + "..."
	}
	return s
}
