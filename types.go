package akapi

import (
	"encoding/json"
	"net/http"
)

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
	MethodTrace   Method = http.MethodTrace
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
)

var readOnlyMethods = []Method{MethodGet, MethodHead, MethodOptions, MethodTrace}

// IsReadOnly reports whether m never mutates server state.
func (m Method) IsReadOnly() bool {
	for _, ro := range readOnlyMethods {
		if m == ro {
			return true
		}
	}
	return false
}

// ContentKind selects the wire encoding of a structured payload.
type ContentKind string

const (
	ContentJSON       ContentKind = "json"
	ContentURLEncoded ContentKind = "urlencoded"
)

// MIMEType returns the Content-Type header value for k.
func (k ContentKind) MIMEType() string {
	switch k {
	case ContentJSON:
		return "application/json"
	case ContentURLEncoded:
		return "application/x-www-form-urlencoded"
	}
	return string(k)
}

// ReceiveMode selects how a successful response is turned into a Result.
type ReceiveMode string

const (
	ReceiveJSON     ReceiveMode = "json"
	ReceiveHTML     ReceiveMode = "html"
	ReceiveText     ReceiveMode = "text"
	ReceiveLocation ReceiveMode = "location"
	ReceiveStatus   ReceiveMode = "status"
)

func (r ReceiveMode) valid() bool {
	switch r {
	case ReceiveJSON, ReceiveHTML, ReceiveText, ReceiveLocation, ReceiveStatus:
		return true
	}
	return false
}

// RequestOptions holds per-call settings. A nil *RequestOptions uses the
// defaults: no caching, JSON content, receive mode derived from status.
type RequestOptions struct {
	// Cache stores the result under the request identity and reuses it
	// on later calls with the same identity.
	Cache bool
	// Content is ignored for GET, which is always urlencoded.
	Content ContentKind
	// Receive overrides the status-derived receive mode.
	Receive ReceiveMode
}

// Result is the outcome of a resolved call. Exactly one group of fields is
// meaningful, selected by Mode.
type Result struct {
	Mode ReceiveMode

	// json
	Value any
	Body  json.RawMessage

	// html, text
	Text string

	// location
	Location    string
	HasLocation bool

	// status
	Status int
}

// Decode unmarshals a json result into v.
func (r *Result) Decode(v any) error {
	if r == nil || r.Mode != ReceiveJSON {
		return &APIError{Kind: KindInterpret, Message: "result is not json"}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &APIError{Kind: KindInterpret, Message: "decode result", Cause: err}
	}
	return nil
}

// DecodeResult decodes a json result into a new T.
func DecodeResult[T any](r *Result) (T, error) {
	var out T
	err := r.Decode(&out)
	return out, err
}

// Middleware wraps the transport for cross-cutting concerns.
type Middleware func(req *http.Request, next Transport) (*http.Response, error)

// Transport performs one network exchange. *http.Client and
// http.RoundTripper implementations both fit through TransportFunc.
type Transport interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(*http.Request) (*http.Response, error)

func (f TransportFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option configures a Client.
type Option func(*Client)
