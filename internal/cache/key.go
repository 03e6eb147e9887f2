package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key derives the deterministic cache key for a (model, prompt, options)
// triple: a SHA-256 digest over the three parts with NUL separators.
// Identical triples always produce the same key across both cache tiers and
// across processes.
func Key(model, prompt string, options any) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write(canonicalJSON(options))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON serialises v with a stable field order. Struct field order is
// already deterministic in encoding/json, but map-typed options are not, so
// the value is round-tripped through any (making every object a map) and
// re-marshalled; encoding/json writes map keys in sorted order.
func canonicalJSON(v any) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return b
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return b
	}
	return out
}
