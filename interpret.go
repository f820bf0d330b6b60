package akapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// statusReceive maps a status code to its default receive mode. Statuses
// not listed fall back to json.
var statusReceive = []struct {
	status int
	mode   ReceiveMode
}{
	{http.StatusOK, ReceiveJSON},
	{http.StatusCreated, ReceiveLocation},
	{http.StatusAccepted, ReceiveStatus},
	{http.StatusNoContent, ReceiveStatus},
	{http.StatusMovedPermanently, ReceiveLocation},
	{http.StatusFound, ReceiveLocation},
	{http.StatusNotModified, ReceiveStatus},
}

// DefaultReceiveMode returns the receive mode used for status when the
// caller did not request one.
func DefaultReceiveMode(status int) ReceiveMode {
	for _, row := range statusReceive {
		if row.status == status {
			return row.mode
		}
	}
	return ReceiveJSON
}

// reportsRedirect reports whether a 3xx status is surfaced to the caller
// as a location instead of being followed.
func reportsRedirect(status int) bool {
	if status < 300 || status >= 400 {
		return false
	}
	return DefaultReceiveMode(status) == ReceiveLocation
}

// interpret extracts a Result from a successful response. The body is
// read only for modes that need it.
func interpret(resp *http.Response, requested ReceiveMode) (*Result, error) {
	mode := requested
	if mode == "" {
		mode = DefaultReceiveMode(resp.StatusCode)
	}

	switch mode {
	case ReceiveJSON:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &APIError{Kind: KindInterpret, Message: "read body", Cause: err}
		}
		var value any
		if err := json.Unmarshal(body, &value); err != nil {
			return nil, &APIError{Kind: KindInterpret, Message: "parse json body", Cause: err}
		}
		return &Result{Mode: mode, Value: value, Body: body}, nil
	case ReceiveHTML, ReceiveText:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &APIError{Kind: KindInterpret, Message: "read body", Cause: err}
		}
		return &Result{Mode: mode, Text: string(body)}, nil
	case ReceiveLocation:
		loc := resp.Header.Values("Location")
		if len(loc) == 0 {
			return &Result{Mode: mode}, nil
		}
		return &Result{Mode: mode, Location: loc[0], HasLocation: true}, nil
	case ReceiveStatus:
		return &Result{Mode: mode, Status: resp.StatusCode}, nil
	}
	return nil, &APIError{Kind: KindInvalidReceiveMode, Message: fmt.Sprintf("unexpected receive mode %q", mode)}
}
