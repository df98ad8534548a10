package reqengine

import (
	"encoding/json"
	"strings"
)

// serializeBody JSON-encodes body. A nil body serializes to nil bytes; Do
// drops the bytes for methods the wire contract forbids a body for
// (spec §6).
func serializeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}

// isJSONContentType reports whether a Content-Type header value is JSON,
// ignoring parameters like charset (spec §6: "JSON-decoded iff response
// Content-Type contains application/json").
func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// decodeDefault decodes body into T when no Validator applies: as JSON if
// contentType says so, or as raw text when T is string. Anything else is a
// decode failure the engine reports as a NetworkError (spec §6).
func decodeDefault[T any](body []byte, contentType string) (T, error) {
	var zero T

	if isJSONContentType(contentType) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return zero, &NetworkError{Message: "failed to decode JSON response body", Cause: err}
		}
		return v, nil
	}

	if s, ok := any(&zero).(*string); ok {
		*s = string(body)
		return zero, nil
	}

	return zero, &NetworkError{Message: "response body is not JSON and T is not string"}
}

// responseContentType looks up Content-Type case-insensitively, the way
// HTTP header names are conventionally matched.
func responseContentType(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			return v
		}
	}
	return ""
}

// dedupeKey builds the "METHOD:URL:BODYFINGERPRINT" key spec §4.4 defines.
func dedupeKey(method Method, url, bodyFingerprint string) string {
	return string(method) + ":" + url + ":" + bodyFingerprint
}
