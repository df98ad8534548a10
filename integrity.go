package reqengine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// IntegrityRegistry is the idempotencyKey→fingerprint registry described
// in spec §4.6. Unlike the teacher's module-scope
// mutable maps, it is owned by a single Client instance (spec §9's
// re-architecture guidance: "do not leak it across unrelated clients
// unless explicitly shared") — callers who genuinely want to share one
// across clients may construct it once and pass it via
// WithIntegrityRegistry.
type IntegrityRegistry struct {
	mu           sync.Mutex
	fingerprints map[string]string
}

// NewIntegrityRegistry returns an empty registry.
func NewIntegrityRegistry() *IntegrityRegistry {
	return &IntegrityRegistry{fingerprints: make(map[string]string)}
}

// Enforce computes fingerprint = hex(SHA-256(canonicalize(body))). If key
// was previously seen with a different fingerprint it fails with
// *IntegrityViolationError; otherwise it pins (or re-confirms) the
// fingerprint for key and returns it.
func (r *IntegrityRegistry) Enforce(key string, body []byte) (string, error) {
	fingerprint := Fingerprint(body)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.fingerprints[key]; ok {
		if existing != fingerprint {
			return "", &IntegrityViolationError{
				Message: "idempotency key reused with a different payload",
				Key:     key,
			}
		}
		return existing, nil
	}

	r.fingerprints[key] = fingerprint
	return fingerprint, nil
}

// Fingerprint computes the lowercase hex SHA-256 of canonicalize(body).
// Canonicalization is "" for an absent/empty body, else a stable
// JSON-ish text form: for bodies that are already valid JSON, the
// round-tripped compact form; otherwise the raw bytes.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(canonicalize(body))
	return hex.EncodeToString(sum[:])
}

// canonicalize produces the deterministic text form SHA-256 is computed
// over (spec §4.6, GLOSSARY).
func canonicalize(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		// Not JSON: use the raw bytes as-is.
		return body
	}

	canonical, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return canonical
}
