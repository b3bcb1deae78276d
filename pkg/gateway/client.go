package gateway

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

	"github.com/harun/hwdesk/internal/observability"
	"github.com/harun/hwdesk/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tracerName = "hwdesk.gateway"

	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 5 * time.Second

	maxBodySize = 10 << 20
)

// Credentials supplies the bearer token and is told when the server rejects it.
type Credentials interface {
	Token() string
	Reject(ctx context.Context) bool
}

// Config configures a Client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// Client is the authorized request gateway. It is safe for concurrent use.
type Client struct {
	baseURL     *url.URL
	timeout     time.Duration
	userAgent   string
	httpClient  *http.Client
	creds       Credentials
	decoder     *envelopeDecoder
	broadcaster *EventBroadcaster
}

// Request describes one outbound call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON encoded when set.
	Body interface{}
	// Reader is sent verbatim with ContentType; it takes precedence over Body.
	Reader      io.Reader
	ContentType string
}

// New creates a gateway that reads tokens from creds
func New(cfg Config, creds Credentials) (*Client, error) {
	if creds == nil {
		return nil, errors.New("credentials are required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL scheme: %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "hwdesk"
	}

	decoder, err := newEnvelopeDecoder()
	if err != nil {
		return nil, err
	}
	observability.EnsureRegistered()

	return &Client{
		baseURL:     base,
		timeout:     cfg.Timeout,
		userAgent:   cfg.UserAgent,
		httpClient:  cfg.HTTPClient,
		creds:       creds,
		decoder:     decoder,
		broadcaster: NewEventBroadcaster(),
	}, nil
}

// OnAuthFailure registers fn to receive AuthFailure events. The returned
// function removes the registration.
func (c *Client) OnAuthFailure(fn func(AuthFailure)) func() {
	return c.broadcaster.Subscribe(fn)
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Do sends req and classifies the response
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	requestID := tracing.NewRequestID()
	ctx = tracing.WithRequestID(ctx, requestID)
	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"gateway.request",
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.Path),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newHTTPRequest(ctx, req, requestID)
	if err != nil {
		tracing.FailSpan(span, err)
		observability.RecordGatewayRequest(req.Method, string(OutcomeInvalid), time.Since(start))
		return nil, err
	}

	authenticated := false
	if token := c.creds.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
		authenticated = true
	}
	span.SetAttributes(attribute.Bool("authenticated", authenticated))

	resp, body, err := c.send(httpReq)
	if err != nil {
		terr := &TransportError{Method: req.Method, URL: httpReq.URL.String(), Err: err}
		tracing.FailSpan(span, terr)
		observability.RecordGatewayRequest(req.Method, string(OutcomeTransport), time.Since(start))
		logger.Warn().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("Request failed before a response arrived")
		return nil, terr
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	result, err := c.classify(ctx, req, resp.StatusCode, body, requestID)
	outcome := Classify(err)
	observability.RecordGatewayRequest(req.Method, string(outcome), time.Since(start))
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		tracing.FailSpan(span, err)
		logger.Debug().
			Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Str("outcome", string(outcome)).
			Msg("Request rejected")
		return nil, err
	}

	logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Dur("duration", time.Since(start)).
		Msg("Request succeeded")
	return result, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, requestID string) (*http.Request, error) {
	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	contentType := req.ContentType
	switch {
	case req.Reader != nil:
		body = req.Reader
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		if contentType == "" {
			contentType = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	return httpReq, nil
}

func (c *Client) send(httpReq *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, body, nil
}

func (c *Client) classify(ctx context.Context, req Request, status int, body []byte, requestID string) (*Response, error) {
	env, decodeErr := c.decoder.decode(body)

	if status == http.StatusUnauthorized || (decodeErr == nil && env.Code == http.StatusUnauthorized) {
		rejected := &AuthRejectedError{HTTPStatus: status, Code: http.StatusUnauthorized}
		if decodeErr == nil {
			rejected.Code = env.Code
			rejected.Message = env.Message
		}
		c.rejectAuth(ctx, req, rejected, requestID)
		return nil, rejected
	}

	if decodeErr != nil {
		logger := tracing.LoggerFromContext(ctx, log.Logger)
		logger.Warn().
			Err(decodeErr).
			Int("status", status).
			Str("body", truncate(string(body), 200)).
			Msg("Unexpected response body")
		return nil, &BusinessError{
			Code:       status,
			Message:    fmt.Sprintf("invalid response envelope (HTTP %d)", status),
			HTTPStatus: status,
		}
	}

	if status < 200 || status >= 300 {
		// A failed HTTP status is never a success, whatever the envelope says.
		be := &BusinessError{Code: env.Code, Message: env.Message, HTTPStatus: status}
		if env.Code == SuccessCode {
			be.Code = status
			be.Message = fmt.Sprintf("unexpected HTTP status %d", status)
		}
		return nil, be
	}

	if env.Code != SuccessCode {
		return nil, &BusinessError{Code: env.Code, Message: env.Message, HTTPStatus: status}
	}

	return &Response{
		Code:       env.Code,
		Message:    env.Message,
		Data:       env.Data,
		Raw:        json.RawMessage(body),
		HTTPStatus: status,
		RequestID:  requestID,
	}, nil
}

// rejectAuth clears the session before the rejection propagates, then tells
// subscribers. Safe to run from several in-flight requests at once.
func (c *Client) rejectAuth(ctx context.Context, req Request, rejected *AuthRejectedError, requestID string) {
	cleared := c.creds.Reject(ctx)

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	logger.Warn().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", rejected.HTTPStatus).
		Bool("cleared", cleared).
		Msg("Server rejected credentials")

	c.broadcaster.Broadcast(AuthFailure{
		Method:     req.Method,
		Path:       req.Path,
		HTTPStatus: rejected.HTTPStatus,
		Code:       rejected.Code,
		Message:    rejected.Message,
		RequestID:  requestID,
		Cleared:    cleared,
	})
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
