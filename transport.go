package akapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxErrorBody = 64 * 1024

const maxRedirects = 10

// newDefaultHTTPClient stops at the redirects the receive table reports as
// a location and follows the rest, like a browser would.
func newDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.Response != nil && reportsRedirect(req.Response.StatusCode) {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// RequestIDHeader carries a unique id for each network exchange.
const RequestIDHeader = "X-Request-ID"

// wireRequest is everything the executor needs for one exchange.
type wireRequest struct {
	method  Method
	path    string
	body    string
	hasBody bool
	content ContentKind
	opts    RequestOptions
}

// resolveURL turns a request path into an absolute URL. Full URLs are used
// as given.
func (c *Client) resolveURL(path string) string {
	if schemePattern.MatchString(path) || c.baseURL == "" {
		return path
	}
	return strings.TrimRight(c.baseURL, "/") + path
}

func (c *Client) buildRequest(ctx context.Context, w wireRequest, level int) (*http.Request, error) {
	target := w.path
	var body io.Reader
	if w.hasBody {
		if w.method == MethodGet {
			target = appendQuery(target, w.body)
		} else {
			body = strings.NewReader(w.body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, string(w.method), c.resolveURL(target), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set(RequestIDHeader, uuid.NewString())
	if w.hasBody && w.method != MethodGet {
		req.Header.Set("Content-Type", w.content.MIMEType())
	}
	if !w.opts.Cache {
		req.Header.Set("Cache-Control", "no-store")
	}
	if !w.method.IsReadOnly() {
		if token, ok := c.tokens.Token(c.csrfCookie); ok {
			req.Header.Set(CSRFHeader, token)
		} else if level >= LogSummary {
			c.logger.Warn("no csrf token available", "client", c.id, "cookie", c.csrfCookie)
		}
	}
	if w.opts.Receive == ReceiveHTML {
		req.Header.Set("Accept", "text/html")
	}
	return req, nil
}

// execute performs the exchange. Any status outside 200-399, or a network
// failure, is a TransportError; the response body is closed in that case.
func (c *Client) execute(req *http.Request) (*http.Response, error) {
	resp, err := c.executeMiddleware(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Message: "request failed", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		defer resp.Body.Close()
		content, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Kind:   KindTransport,
			Status: resp.StatusCode,
			Body:   string(content),
		}
	}
	return resp, nil
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.transport.RoundTrip(req)
	}

	current := Transport(c.transport)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = TransportFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// endpointLabel is the metrics label for a request path: the path
// without any query string.
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	return path
}
