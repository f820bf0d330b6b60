package akapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mcavalletto/actionkit-api-fetch/internal/singleflight"
)

// WithBaseURL sets the scheme and host relative request paths are sent to,
// e.g. "https://act.example.org".
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithAPIBase sets the REST prefix stripped from and added to paths.
func WithAPIBase(prefix string) Option {
	return func(c *Client) {
		c.apiBase = prefix
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sends requests through a copy of client. Its redirect
// policy is kept; redirects it follows never reach the interpreter as 3xx.
// The configured timeout applies when client has none.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client == nil {
			c.httpClient = nil
			return
		}
		cp := *client
		if c.timeout != 0 && cp.Timeout == 0 {
			cp.Timeout = c.timeout
		}
		c.httpClient = &cp
	}
}

// WithTransport replaces the network transport entirely.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
		c.customTransport = t != nil
	}
}

// WithMiddleware adds middleware to the transport chain.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithTokenSource sets where the CSRF token is read from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithCSRFCookie sets the token name looked up for X-CSRFToken.
func WithCSRFCookie(name string) Option {
	return func(c *Client) {
		c.csrfCookie = name
	}
}

// WithAllowWrites sets the initial write policy.
func WithAllowWrites(allow bool) Option {
	return func(c *Client) {
		c.policy.SetAllowWrites(allow)
	}
}

// WithReadSafePatterns replaces the write exception table.
func WithReadSafePatterns(patterns ...string) Option {
	return func(c *Client) {
		if err := c.policy.guard.SetExceptions(patterns...); err != nil {
			c.optionErrors = append(c.optionErrors, err)
		}
	}
}

// WithReadSafePattern appends one write exception.
func WithReadSafePattern(pattern string) Option {
	return func(c *Client) {
		if err := c.policy.guard.AddException(pattern); err != nil {
			c.optionErrors = append(c.optionErrors, err)
		}
	}
}

// WithConsoleLogging sets the log verbosity (LogSilent, LogSummary,
// LogPayloads).
func WithConsoleLogging(level int) Option {
	return func(c *Client) {
		c.policy.SetConsoleLogging(level)
	}
}

// WithAlertOnFailure toggles user notification of failures.
func WithAlertOnFailure(alert bool) Option {
	return func(c *Client) {
		c.policy.SetAlertOnFailure(alert)
	}
}

// WithNotifier sets the sink for user alerts.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithLogger sets the logger. hclog.Logger values fit directly.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithResultCache sets a custom result cache.
func WithResultCache(cache ResultCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithCoalescing merges concurrent cacheable calls with the same identity
// into one network request. Off by default: without it each in-flight
// duplicate sends its own request and the last to resolve wins the cache.
func WithCoalescing() Option {
	return func(c *Client) {
		c.coalesce = singleflight.New[*Result]()
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var result *multierror.Error

	for _, err := range c.optionErrors {
		result = multierror.Append(result, err)
	}
	for _, err := range c.validateTransportConfig() {
		result = multierror.Append(result, err)
	}
	for _, err := range c.validatePathConfig() {
		result = multierror.Append(result, err)
	}
	if c.cache == nil {
		result = multierror.Append(result, fmt.Errorf("result cache cannot be nil"))
	}
	if c.logger == nil {
		result = multierror.Append(result, fmt.Errorf("logger cannot be nil"))
	}
	if c.tokens == nil {
		result = multierror.Append(result, fmt.Errorf("token source cannot be nil"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return &APIError{
			Kind:    KindValidation,
			Message: "configuration validation failed",
			Cause:   err,
		}
	}
	return nil
}

func (c *Client) validateTransportConfig() []error {
	var errs []error

	if c.transport == nil && c.httpClient == nil {
		errs = append(errs, fmt.Errorf("HTTP client cannot be nil"))
	}
	if c.timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	for i, middleware := range c.middleware {
		if middleware == nil {
			errs = append(errs, fmt.Errorf("middleware[%d] cannot be nil", i))
		}
	}

	return errs
}

func (c *Client) validatePathConfig() []error {
	var errs []error

	if c.baseURL == "" && !c.customTransport {
		errs = append(errs, fmt.Errorf("base URL is required"))
	}
	if c.baseURL != "" && !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://") {
		errs = append(errs, fmt.Errorf("base URL %q must use http or https", c.baseURL))
	}
	if c.apiBase != "" && (!strings.HasPrefix(c.apiBase, "/") || !strings.HasSuffix(c.apiBase, "/")) {
		errs = append(errs, fmt.Errorf("API base %q must start and end with /", c.apiBase))
	}
	if c.csrfCookie == "" {
		errs = append(errs, fmt.Errorf("CSRF cookie name cannot be empty"))
	}

	return errs
}
