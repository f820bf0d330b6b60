package akapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mcavalletto/actionkit-api-fetch/internal/singleflight"
)

// Client dispatches calls to the ActionKit REST API. It normalizes the
// request, applies the write policy, answers repeated cacheable calls from
// its result cache, and interprets responses by status. It is safe for
// concurrent use.
type Client struct {
	id         string
	baseURL    string
	apiBase    string
	csrfCookie string
	timeout    time.Duration

	httpClient      *http.Client
	transport       Transport
	customTransport bool
	middleware      []Middleware
	tokens          TokenSource

	policy   *Policy
	cache    ResultCache
	metrics  *MetricsCollector
	logger   Logger
	notifier Notifier

	coalesce *singleflight.Group[*Result]

	counter         atomic.Uint64
	optionErrors    []error
	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
// Calls on an invalid client fail with a ValidationError.
func New(options ...Option) *Client {
	client := &Client{
		id:         uuid.NewString(),
		apiBase:    DefaultAPIBase,
		csrfCookie: DefaultCSRFCookie,
		timeout:    30 * time.Second,
		middleware: []Middleware{},
		tokens:     StaticTokens{},
		policy:     newPolicy(),
		cache:      NewInMemoryCache(),
		logger:     NewDefaultLogger(),
	}
	client.httpClient = newDefaultHTTPClient(client.timeout)

	for _, option := range options {
		option(client)
	}

	if client.transport == nil && client.httpClient != nil {
		client.transport = TransportFunc(client.httpClient.Do)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// ID identifies the client on its log lines.
func (c *Client) ID() string { return c.id }

// Policy returns the runtime toggles.
func (c *Client) Policy() *Policy { return c.policy }

// Cache returns the result cache.
func (c *Client) Cache() ResultCache { return c.cache }

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (c *Client) Metrics() *MetricsCollector { return c.metrics }

// Calls returns how many calls have entered Fetch.
func (c *Client) Calls() uint64 { return c.counter.Load() }

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// call is the state of one Fetch.
type call struct {
	id       uint64
	method   Method
	opts     RequestOptions
	content  ContentKind
	body     string
	hasBody  bool
	ident    identity
	endpoint string
	level    int
}

// Fetch runs one call through the pipeline. data may be NoData(); opts may
// be nil. Every failure is an *APIError.
func (c *Client) Fetch(ctx context.Context, method Method, path string, data Payload, opts *RequestOptions) (*Result, error) {
	cl := &call{
		id:     c.counter.Add(1),
		method: method,
		level:  c.policy.ConsoleLogging(),
	}
	if opts != nil {
		cl.opts = *opts
	}

	if c.validationError != nil {
		return nil, c.fail(cl, &APIError{Kind: KindValidation, Message: "invalid client configuration", Cause: c.validationError})
	}
	if cl.opts.Receive != "" && !cl.opts.Receive.valid() {
		return nil, c.fail(cl, &APIError{Kind: KindInvalidReceiveMode, Message: fmt.Sprintf("unexpected receive mode %q", cl.opts.Receive)})
	}

	cl.content = negotiateContent(method, cl.opts.Content)
	body, hasBody, err := serialize(data, cl.content)
	if err != nil {
		return nil, c.fail(cl, err)
	}
	cl.body, cl.hasBody = body, hasBody
	cl.ident = newIdentity(c.apiBase, method, path, data, body, hasBody)
	cl.endpoint = endpointLabel(cl.ident.requestPath)

	if !c.policy.guard.Allowed(method, cl.ident.key) {
		c.metrics.RecordWriteDenied(method)
		return nil, c.fail(cl, &APIError{Kind: KindWriteNotAllowed, Message: "writes not enabled"})
	}

	if cl.opts.Cache {
		if cached, ok := c.cache.Get(cl.ident.key); ok {
			c.metrics.RecordCacheHit(method, cl.endpoint)
			if cl.level >= LogSummary {
				c.logger.Info("api call cache hit", "client", c.id, "call", cl.id, "method", method, "path", cl.ident.requestPath)
			}
			return cloneResult(cached), nil
		}
		c.metrics.RecordCacheMiss(method, cl.endpoint)

		if c.coalesce != nil {
			return c.coalesced(ctx, cl)
		}
	}

	result, err := c.dispatch(ctx, cl)
	if err != nil {
		return nil, err
	}
	if cl.opts.Cache {
		return cloneResult(result), nil
	}
	return result, nil
}

// coalesced dispatches cl unless an identical call is already in flight,
// in which case it waits for that call. A waiter's failure is a copy of
// the leader's error carrying the waiter's own call details.
func (c *Client) coalesced(ctx context.Context, cl *call) (*Result, error) {
	led := false
	result, err, _ := c.coalesce.Do(cl.ident.key, func() (*Result, error) {
		led = true
		return c.dispatch(ctx, cl)
	})
	if !led {
		c.metrics.RecordCoalesced(cl.method, cl.endpoint)
		if cl.level >= LogSummary {
			c.logger.Info("api call joined in-flight request", "client", c.id, "call", cl.id, "method", cl.method, "path", cl.ident.requestPath)
		}
	}
	if err != nil {
		if led {
			return nil, err
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			cp := *apiErr
			return nil, c.fail(cl, &cp)
		}
		return nil, c.fail(cl, err)
	}
	return cloneResult(result), nil
}

// dispatch performs the network part of a call: execute, interpret, store.
func (c *Client) dispatch(ctx context.Context, cl *call) (*Result, error) {
	req, err := c.buildRequest(ctx, wireRequest{
		method:  cl.method,
		path:    cl.ident.requestPath,
		body:    cl.body,
		hasBody: cl.hasBody,
		content: cl.content,
		opts:    cl.opts,
	}, cl.level)
	if err != nil {
		return nil, c.fail(cl, &APIError{Kind: KindTransport, Message: "build request", Cause: err})
	}

	requestID := req.Header.Get(RequestIDHeader)
	if cl.level >= LogPayloads {
		c.logger.Info("api call", "client", c.id, "call", cl.id, "method", cl.method, "path", cl.ident.requestPath, "request_id", requestID, "data", dataForLog(cl))
	} else if cl.level >= LogSummary {
		c.logger.Info("api call", "client", c.id, "call", cl.id, "method", cl.method, "path", cl.ident.requestPath, "request_id", requestID)
	}

	start := time.Now()
	c.metrics.RecordRequestStart(cl.method, cl.endpoint)
	resp, err := c.execute(req)
	c.metrics.RecordRequestEnd(cl.method, cl.endpoint)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	} else {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Status
		}
	}
	c.metrics.RecordRequest(cl.method, cl.endpoint, status, time.Since(start))

	if err != nil {
		return nil, c.fail(cl, err)
	}
	defer resp.Body.Close()

	result, err := interpret(resp, cl.opts.Receive)
	if err != nil {
		return nil, c.fail(cl, err)
	}

	if cl.opts.Cache {
		c.cache.Put(cl.ident.key, result)
		c.metrics.RecordCacheSize(c.cache.Len())
		c.logCompleted(cl, "api call completed and cached", result)
	} else {
		c.logCompleted(cl, "api call completed", result)
	}
	return result, nil
}

func (c *Client) logCompleted(cl *call, msg string, result *Result) {
	switch {
	case cl.level >= LogPayloads:
		c.logger.Info(msg, "client", c.id, "call", cl.id, "mode", result.Mode, "result", resultForLog(result))
	case cl.level >= LogSummary:
		c.logger.Info(msg, "client", c.id, "call", cl.id)
	}
}

// fail routes every failure through logging, metrics and the user alert
// before it is returned to the caller.
func (c *Client) fail(cl *call, err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = &APIError{Kind: KindTransport, Message: "request failed", Cause: err}
	}
	apiErr.CallID = cl.id
	apiErr.Method = cl.method
	apiErr.Path = cl.ident.requestPath

	c.metrics.RecordError(apiErr.Kind, cl.method)
	if cl.level >= LogSummary && c.logger != nil {
		c.logger.Error("api call failed", "client", c.id, "call", cl.id, "kind", apiErr.Kind, "error", apiErr.Error())
	}
	if c.notifier != nil && c.policy.AlertOnFailure() {
		c.notifier.Notify(alertText(apiErr))
	}
	return apiErr
}

func dataForLog(cl *call) string {
	if !cl.hasBody {
		return ""
	}
	return cl.body
}

func resultForLog(r *Result) string {
	switch r.Mode {
	case ReceiveJSON:
		return string(r.Body)
	case ReceiveHTML, ReceiveText:
		return r.Text
	case ReceiveLocation:
		return r.Location
	case ReceiveStatus:
		return fmt.Sprint(r.Status)
	}
	return ""
}
