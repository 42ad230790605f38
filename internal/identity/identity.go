// Package identity canonicalizes the many shapes a user or channel id can
// arrive in. Source documents represent the same party as a JSON number in
// one place, a string in another, and sometimes as a record carrying the id
// under a well-known field. All identity comparison in the server goes
// through Normalize; direct equality on raw values is never safe.
package identity

import (
	"encoding/json"
	"strconv"
	"strings"
)

// idFields are the record fields probed, in order, when a member entry is an
// object rather than a scalar.
var idFields = []string{"id", "userId", "_id"}

// Normalize converts a raw identifier into its canonical string form.
// It accepts scalars (string, integer, float), records with an id under one
// of the known field names, and nested object-id records ({"_id":{"$oid":x}}).
// The second return is false when no identifier can be extracted; a failed
// normalization never matches a valid id.
func Normalize(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return normalizeFloat(float64(val))
	case float64:
		// JSON numbers decode as float64.
		return normalizeFloat(val)
	case json.Number:
		s := val.String()
		return s, s != ""
	case map[string]any:
		return normalizeRecord(val)
	default:
		return "", false
	}
}

// Equal reports whether two raw values identify the same party.
func Equal(a, b any) bool {
	na, ok := Normalize(a)
	if !ok {
		return false
	}
	nb, ok := Normalize(b)
	if !ok {
		return false
	}
	return na == nb
}

// Contains reports whether any entry of list normalizes to the canonical id.
func Contains(list []any, id string) bool {
	for _, entry := range list {
		if n, ok := Normalize(entry); ok && n == id {
			return true
		}
	}
	return false
}

func normalizeFloat(f float64) (string, bool) {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

func normalizeRecord(rec map[string]any) (string, bool) {
	for _, field := range idFields {
		raw, present := rec[field]
		if !present {
			continue
		}
		// Object ids may nest one level: {"_id": {"$oid": "..."}}.
		if nested, ok := raw.(map[string]any); ok && field == "_id" {
			if oid, ok := nested["$oid"]; ok {
				return Normalize(oid)
			}
		}
		return Normalize(raw)
	}
	return "", false
}
