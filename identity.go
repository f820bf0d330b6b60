package akapi

import (
	"regexp"
	"strings"
)

// DefaultAPIBase is the ActionKit REST prefix.
const DefaultAPIBase = "/rest/v1/"

const (
	undefinedMarker = "undefined"
	nullMarker      = "null"
)

var schemePattern = regexp.MustCompile(`https?:`)

// identity is the normalized form of a call.
type identity struct {
	// path is the caller path with the API base stripped; it is what the
	// cache key and write exceptions see.
	path string
	// requestPath is the path actually sent on the wire, before any query
	// string is appended.
	requestPath string
	key         string
}

func normalizePath(apiBase, path string) (stripped, requestPath string) {
	stripped = path
	if apiBase != "" && strings.HasPrefix(stripped, apiBase) {
		stripped = stripped[len(apiBase):]
	}
	if strings.HasPrefix(stripped, "/") || schemePattern.MatchString(stripped) {
		return stripped, stripped
	}
	return stripped, apiBase + stripped
}

// cacheKey joins method, stripped path and the wire payload. Absent data
// and empty structured data keep distinct markers.
func cacheKey(method Method, path string, p Payload, body string, hasBody bool) string {
	var data string
	switch {
	case hasBody:
		data = body
	case p.kind == payloadStructured:
		data = nullMarker
	default:
		data = undefinedMarker
	}
	return string(method) + " " + path + " " + data
}

func newIdentity(apiBase string, method Method, path string, p Payload, body string, hasBody bool) identity {
	stripped, requestPath := normalizePath(apiBase, path)
	return identity{
		path:        stripped,
		requestPath: requestPath,
		key:         cacheKey(method, stripped, p, body, hasBody),
	}
}

// appendQuery attaches a urlencoded payload to path.
func appendQuery(path, query string) string {
	if strings.Contains(path, "?") {
		return path + "&" + query
	}
	return path + "?" + query
}
