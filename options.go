package parsera

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production endpoint of the extraction service.
const DefaultBaseURL = "https://api.parsera.org/v1"

// ProxyCountryRandom asks the service to pick an egress country.
const ProxyCountryRandom = "random"

const (
	minAPIKeyLen       = 32
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultDelay       = 1 * time.Second
	defaultBackoff     = 2.0
	defaultMinInterval = 100 * time.Millisecond
	maxResponseSize    = 10 * 1024 * 1024 // 10 MB
)

// Option configures a Client.
type Option func(*config)

type config struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration // per-attempt deadline
	maxRetries     int
	initialDelay   time.Duration
	backoffFactor  float64
	minInterval    time.Duration // minimum spacing between attempts
	proxyCountry   string
	retryOnTimeout bool
	httpClient     *http.Client
	logger         zerolog.Logger
}

func defaultConfig() *config {
	return &config{
		baseURL:       DefaultBaseURL,
		timeout:       defaultTimeout,
		maxRetries:    defaultMaxRetries,
		initialDelay:  defaultDelay,
		backoffFactor: defaultBackoff,
		minInterval:   defaultMinInterval,
		logger:        zerolog.Nop(),
	}
}

// WithBaseURL sets the service endpoint. Useful for testing and self-hosted
// deployments.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets the per-attempt deadline. Each attempt (initial or retry)
// gets its own timer.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithRetry sets the maximum number of retries and the initial backoff delay.
// The delay before retry n (0-indexed) is initialDelay * backoffFactor^n.
func WithRetry(maxRetries int, initialDelay time.Duration) Option {
	return func(c *config) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if initialDelay > 0 {
			c.initialDelay = initialDelay
		}
	}
}

// WithBackoffFactor sets the exponential growth factor for retry delays.
func WithBackoffFactor(f float64) Option {
	return func(c *config) {
		if f > 0 {
			c.backoffFactor = f
		}
	}
}

// WithMinRequestInterval sets the minimum spacing between outbound attempts
// from this client instance. The default is 100ms.
func WithMinRequestInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.minInterval = d
		}
	}
}

// WithProxyCountry sets the default egress country applied to requests that
// do not override it.
func WithProxyCountry(country string) Option {
	return func(c *config) { c.proxyCountry = country }
}

// WithRetryOnTimeout makes per-attempt deadline failures retryable. Off by
// default: a timed-out attempt emits a timeout event but is not re-issued.
func WithRetryOnTimeout(retry bool) Option {
	return func(c *config) { c.retryOnTimeout = retry }
}

// WithHTTPClient sets a custom underlying *http.Client. Per-attempt deadlines
// are still applied via context, so the client's own Timeout should usually
// be left at zero.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithLogger sets the logger for lifecycle diagnostics. Logging is off by
// default.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}
