package reqengine

import "context"

// Method is one of the HTTP-style verbs the engine understands for body
// and dedupe eligibility decisions. The transport is free to interpret it
// however it likes.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
)

// hasNoBody reports whether the wire contract forbids a body for this
// method (spec §6: "Body: JSON-serialized iff present and method ∉
// {GET, HEAD}").
func (m Method) hasNoBody() bool {
	return m == MethodGet || m == MethodHead
}

// TransportRequest is the byte-level request the engine hands to a
// Transport. URL is fully resolved (base URL already applied).
type TransportRequest struct {
	Method  Method
	URL     string
	Headers map[string]string
	Body    []byte
}

// TransportResponse is the byte-level response a Transport returns.
type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Transport is the pluggable collaborator the engine is built around. It
// exposes a request/response function over URLs with method, headers,
// body, and cancellation via ctx — deliberately out of scope for this
// module (spec §1): implementations typically wrap *http.Client, but
// nothing here assumes HTTP specifically.
type Transport interface {
	Do(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}
