package parsera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// Stats holds atomic attempt counters.
type Stats struct {
	TotalRequests uint64
	TotalErrors   uint64
	RateLimited   uint64
}

// StatsProvider exposes metrics for external collectors (Prometheus, OTel, etc.).
type StatsProvider interface {
	Stats() Stats
}

// Client talks to the extraction service. It enforces a minimum spacing
// between outbound attempts, retries rate-limited and transient failures with
// exponential backoff, bounds every attempt with a cancellable deadline, and
// publishes lifecycle events to subscribers. A Client is safe for concurrent
// use; concurrent extractions share one rate-limit gate.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	bus        *eventBus
	cfg        *config
	log        zerolog.Logger

	countryCache proxyCountryCache

	totalReqs   atomic.Uint64
	totalErrors atomic.Uint64
	rateLimited atomic.Uint64
}

// Compile-time interface check.
var _ StatsProvider = (*Client)(nil)

// New creates a Client with the given API key and options. The key must be
// at least 32 characters.
func New(apiKey string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	cfg.apiKey = apiKey
	for _, o := range opts {
		o(cfg)
	}

	if len(strings.TrimSpace(cfg.apiKey)) < minAPIKeyLen {
		return nil, newError(KindInvalidConfiguration,
			"API key must be at least %d characters", minAPIKeyLen)
	}

	hc := cfg.httpClient
	if hc == nil {
		// Deadlines come from per-attempt contexts, not a client-wide
		// timeout.
		hc = &http.Client{}
	}

	return &Client{
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Every(cfg.minInterval), 1),
		bus:        newEventBus(),
		cfg:        cfg,
		log:        cfg.logger,
	}, nil
}

// NewFromEnv creates a Client from PARSERA_* environment variables:
// PARSERA_API_KEY, PARSERA_BASE_URL, PARSERA_TIMEOUT and
// PARSERA_PROXY_COUNTRY. Explicit options take precedence over the
// environment.
func NewFromEnv(opts ...Option) (*Client, error) {
	v := viper.New()
	v.SetEnvPrefix("parsera")
	v.AutomaticEnv()

	var envOpts []Option
	if s := v.GetString("base_url"); s != "" {
		envOpts = append(envOpts, WithBaseURL(s))
	}
	if d := v.GetDuration("timeout"); d > 0 {
		envOpts = append(envOpts, WithTimeout(d))
	}
	if s := v.GetString("proxy_country"); s != "" {
		envOpts = append(envOpts, WithProxyCountry(s))
	}
	return New(v.GetString("api_key"), append(envOpts, opts...)...)
}

// Close releases the client's subscriber registry. Subsequent emissions are
// no-ops; Close is idempotent.
func (c *Client) Close() {
	c.bus.clear()
}

// Stats returns a snapshot of attempt statistics.
func (c *Client) Stats() Stats {
	return Stats{
		TotalRequests: c.totalReqs.Load(),
		TotalErrors:   c.totalErrors.Load(),
		RateLimited:   c.rateLimited.Load(),
	}
}

// On subscribes h to events of type t. Options apply to the whole event type;
// the last subscription passing options wins. Without options the type keeps
// its current settings (synchronous delivery with handler-error isolation by
// default).
func (c *Client) On(t EventType, h Handler, opts ...SubscribeOptions) {
	c.bus.subscribe(t, h, opts...)
}

// Off removes a previously subscribed handler. Removing an unknown handler
// is a no-op.
func (c *Client) Off(t EventType, h Handler) {
	c.bus.unsubscribe(t, h)
}

// Clear drops all handlers for the given event types, or every handler when
// called with no arguments.
func (c *Client) Clear(types ...EventType) {
	c.bus.clear(types...)
}

// Extract asks the service to pull the requested attributes out of the page
// at req.URL. It blocks until the extraction completes, the retry budget is
// spent, or ctx is cancelled. The returned slice is the service's data
// collection, one record per extracted item.
func (c *Client) Extract(ctx context.Context, req ExtractRequest) ([]map[string]string, error) {
	id := uuid.New()
	c.log.Debug().Str("extraction_id", id.String()).Str("url", req.URL).Msg("starting extraction")

	// The start event fires for every call, valid or not.
	if err := c.bus.emit(Event{Type: EventExtractStart, ExtractionID: id, Payload: req}); err != nil {
		return nil, err
	}

	// Input failures surface raw: no extract:error, no network attempt.
	if err := c.validateRequest(ctx, &req); err != nil {
		return nil, err
	}

	body, err := c.buildBody(&req)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, id, body)
	if err != nil {
		if errors.Is(err, ErrHandlerError) {
			return nil, err
		}
		c.log.Error().Str("extraction_id", id.String()).Err(err).Msg("extraction failed")
		if emitErr := c.bus.emit(Event{Type: EventExtractError, ExtractionID: id, Err: err}); emitErr != nil {
			return nil, emitErr
		}
		if errors.Is(err, ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to extract data: %w", err)
	}

	if err := c.bus.emit(Event{Type: EventExtractComplete, ExtractionID: id, Payload: resp}); err != nil {
		return nil, err
	}
	c.log.Debug().Str("extraction_id", id.String()).Int("records", len(resp.Data)).Msg("extraction complete")
	return resp.Data, nil
}

// Run is an alias for Extract, kept for naming parity with the service's
// other SDKs.
func (c *Client) Run(ctx context.Context, req ExtractRequest) ([]map[string]string, error) {
	return c.Extract(ctx, req)
}

// Arun is an alias for Extract, kept for naming parity with the service's
// other SDKs.
func (c *Client) Arun(ctx context.Context, req ExtractRequest) ([]map[string]string, error) {
	return c.Extract(ctx, req)
}

// validateRequest checks the request shape and the effective proxy country.
func (c *Client) validateRequest(ctx context.Context, req *ExtractRequest) error {
	if err := validate.Struct(req); err != nil {
		return wrapError(KindInvalidInput, err, "invalid extraction request")
	}
	for _, ck := range req.Cookies {
		if err := ck.validate(); err != nil {
			return err
		}
	}
	if country := c.effectiveProxyCountry(req); country != "" {
		if err := c.validateProxyCountry(ctx, country); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) effectiveProxyCountry(req *ExtractRequest) string {
	if req.ProxyCountry != "" {
		return req.ProxyCountry
	}
	return c.cfg.proxyCountry
}

// buildBody marshals the wire body once; every retry reuses it verbatim.
func (c *Client) buildBody(req *ExtractRequest) ([]byte, error) {
	body := requestBody{
		URL:          req.URL,
		Attributes:   req.Attributes,
		ProxyCountry: c.effectiveProxyCountry(req),
		Cookies:      req.Cookies,
	}
	if req.Precision {
		body.Mode = "precision"
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, wrapError(KindInvalidInput, err, "encode request body")
	}
	return data, nil
}

// do drives the attempt loop: rate-limit gate, deadline-wrapped transport
// call, retry decision, terminal error mapping.
func (c *Client) do(ctx context.Context, id uuid.UUID, body []byte) (*ExtractResponse, error) {
	for attempt := 0; attempt <= c.cfg.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt - 1)
			c.log.Debug().Str("extraction_id", id.String()).Int("attempt", attempt).Dur("backoff", delay).Msg("waiting before retry")
			select {
			case <-ctx.Done():
				return nil, wrapError(KindCancelled, ctx.Err(), "extraction cancelled")
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, wrapError(KindCancelled, err, "extraction cancelled")
		}

		c.totalReqs.Add(1)
		status, respBody, err := c.attempt(ctx, body)
		if err != nil {
			c.totalErrors.Add(1)
			if errors.Is(err, ErrTimeout) {
				if emitErr := c.bus.emit(Event{Type: EventTimeout, ExtractionID: id, Err: err, RetryCount: attempt}); emitErr != nil {
					return nil, emitErr
				}
			}
			if attempt < c.cfg.maxRetries && c.retryable(err) {
				if emitErr := c.emitRetry(id, attempt, err); emitErr != nil {
					return nil, emitErr
				}
				continue
			}
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			c.rateLimited.Add(1)
			c.totalErrors.Add(1)
			if attempt < c.cfg.maxRetries {
				rlErr := mapStatusError(status, respBody)
				if emitErr := c.bus.emit(Event{Type: EventRateLimit, ExtractionID: id, Err: rlErr, RetryCount: attempt}); emitErr != nil {
					return nil, emitErr
				}
				if emitErr := c.bus.emit(Event{Type: EventRequestRetry, ExtractionID: id, RetryCount: attempt + 1}); emitErr != nil {
					return nil, emitErr
				}
				continue
			}
			return nil, mapStatusError(status, respBody)
		}

		if status >= 400 {
			c.totalErrors.Add(1)
			return nil, mapStatusError(status, respBody)
		}

		var out ExtractResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			c.totalErrors.Add(1)
			return nil, wrapError(KindServerError, err, "malformed response payload")
		}
		if len(out.Data) == 0 {
			msg := out.Message
			if msg == "" {
				msg = "extraction returned no data for the requested attributes"
			}
			return nil, &Error{Kind: KindNoData, Message: msg, StatusCode: status}
		}
		return &out, nil
	}
	// Unreachable: every loop exit returns.
	return nil, newError(KindServerError, "retry loop exited without a result")
}

// emitRetry publishes the transient-failure event pair before a retry.
func (c *Client) emitRetry(id uuid.UUID, attempt int, cause error) error {
	if err := c.bus.emit(Event{Type: EventRequestError, ExtractionID: id, Err: cause, RetryCount: attempt}); err != nil {
		return err
	}
	return c.bus.emit(Event{Type: EventRequestRetry, ExtractionID: id, RetryCount: attempt + 1})
}

// attempt performs one deadline-bounded transport call. The derived context
// merges the per-attempt timer with external cancellation; cancel runs on
// every exit path so the timer never leaks.
func (c *Client) attempt(ctx context.Context, body []byte) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return 0, nil, wrapError(KindNetworkError, err, "build extract request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, c.classifyTransport(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, c.classifyTransport(ctx, attemptCtx, err)
	}
	return resp.StatusCode, respBody, nil
}

// classifyTransport maps a transport failure to an explicit error kind.
// External cancellation wins over the attempt deadline; anything else is a
// transient network failure.
func (c *Client) classifyTransport(parent, attempt context.Context, err error) *Error {
	switch {
	case parent.Err() != nil:
		return wrapError(KindCancelled, err, "extraction cancelled")
	case attempt.Err() != nil || errors.Is(err, context.DeadlineExceeded):
		return wrapError(KindTimeout, err, "request timed out after %v", c.cfg.timeout)
	default:
		return wrapError(KindNetworkError, err, "network error")
	}
}

// retryable reports whether a transport failure may be re-attempted.
// Classification is by error kind: transient network failures retry, timeouts
// only when configured, cancellation never.
func (c *Client) retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNetworkError):
		return true
	case errors.Is(err, ErrTimeout):
		return c.cfg.retryOnTimeout
	default:
		return false
	}
}

// backoffDelay returns the wait before retry n (0-indexed).
func (c *Client) backoffDelay(n int) time.Duration {
	return time.Duration(float64(c.cfg.initialDelay) * math.Pow(c.cfg.backoffFactor, float64(n)))
}

// mapStatusError converts a non-success response into a typed error,
// preferring the server-supplied message when present.
func mapStatusError(status int, body []byte) *Error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	msg := er.Message
	var kind ErrorKind
	switch status {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
		if msg == "" {
			msg = "invalid API key"
		}
	case http.StatusTooManyRequests:
		kind = KindRateLimitExceeded
		if msg == "" {
			msg = "rate limit exceeded"
		}
	case http.StatusBadRequest:
		kind = KindBadRequest
		if msg == "" {
			msg = "bad request"
		}
	default:
		kind = KindServerError
		if msg == "" {
			msg = fmt.Sprintf("server returned HTTP %d", status)
		}
	}
	return &Error{Kind: kind, Message: msg, StatusCode: status, Code: er.Code}
}
