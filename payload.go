package akapi

import (
	"encoding/json"
	"fmt"
	"net/url"
)

type payloadKind int

const (
	payloadAbsent payloadKind = iota
	payloadRaw
	payloadStructured
)

// Payload is the data sent with a call: absent, a raw pre-encoded string,
// or a flat set of fields. The zero value is absent.
type Payload struct {
	kind   payloadKind
	raw    string
	fields map[string]any
}

// NoData is the absent payload.
func NoData() Payload {
	return Payload{}
}

// Raw sends s unchanged. An empty string is treated as absent.
func Raw(s string) Payload {
	if s == "" {
		return Payload{}
	}
	return Payload{kind: payloadRaw, raw: s}
}

// Fields sends m encoded according to the negotiated content kind.
func Fields(m map[string]any) Payload {
	return Payload{kind: payloadStructured, fields: m}
}

// IsAbsent reports whether p carries no data at all.
func (p Payload) IsAbsent() bool {
	return p.kind == payloadAbsent
}

// negotiateContent picks the content kind for a call. GET always sends
// its data as a query string.
func negotiateContent(method Method, requested ContentKind) ContentKind {
	if method == MethodGet || requested == ContentURLEncoded {
		return ContentURLEncoded
	}
	if requested == "" {
		return ContentJSON
	}
	return requested
}

// serialize returns the wire form of p. ok is false when there is no body.
func serialize(p Payload, kind ContentKind) (body string, ok bool, err error) {
	switch p.kind {
	case payloadAbsent:
		return "", false, nil
	case payloadRaw:
		return p.raw, true, nil
	case payloadStructured:
		if len(p.fields) == 0 {
			return "", false, nil
		}
		switch kind {
		case ContentURLEncoded:
			values, err := formValues(p.fields)
			if err != nil {
				return "", false, err
			}
			return values.Encode(), true, nil
		case ContentJSON:
			b, err := json.Marshal(p.fields)
			if err != nil {
				return "", false, &APIError{Kind: KindInvalidPayload, Message: "encode json", Cause: err}
			}
			return string(b), true, nil
		default:
			return "", false, &APIError{Kind: KindInvalidPayload, Message: fmt.Sprintf("unexpected content kind %q", kind)}
		}
	}
	return "", false, &APIError{Kind: KindInvalidPayload, Message: "unexpected payload"}
}

func formValues(fields map[string]any) (url.Values, error) {
	values := make(url.Values, len(fields))
	for k, v := range fields {
		switch tv := v.(type) {
		case nil:
			values.Add(k, "null")
		case string:
			values.Add(k, tv)
		case []string:
			for _, s := range tv {
				values.Add(k, s)
			}
		case []any:
			for _, item := range tv {
				s, err := formScalar(k, item)
				if err != nil {
					return nil, err
				}
				values.Add(k, s)
			}
		default:
			s, err := formScalar(k, tv)
			if err != nil {
				return nil, err
			}
			values.Add(k, s)
		}
	}
	return values, nil
}

func formScalar(key string, v any) (string, error) {
	switch tv := v.(type) {
	case string:
		return tv, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return fmt.Sprint(tv), nil
	case fmt.Stringer:
		return tv.String(), nil
	}
	return "", &APIError{Kind: KindInvalidPayload, Message: fmt.Sprintf("field %q of type %T cannot be form encoded", key, v)}
}
