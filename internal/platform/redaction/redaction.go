// Package redaction scrubs personally identifying values out of audit payloads and log
// attributes before they are persisted.
package redaction

import (
	"sort"
	"strings"
)

// Sentinel replaces every redacted value.
const Sentinel = "[REDACTED]"

var piiKeys = map[string]struct{}{
	"national_id":     {},
	"passport_number": {},
	"passport_no":     {},
	"dob":             {},
	"date_of_birth":   {},
	"birth_date":      {},
	"address":         {},
	"msisdn":          {},
	"phone":           {},
	"email":           {},
	"pin":             {},
	"pin_hash":        {},
	"document":        {},
	"document_number": {},
	"file_ref":        {},
	"file_hash":       {},
}

// PIIKeys returns the configured sensitive keys in sorted order.
func PIIKeys() []string {
	keys := make([]string, 0, len(piiKeys))
	for k := range piiKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsPIIKey reports whether a key names a sensitive field. Matching ignores case.
func IsPIIKey(key string) bool {
	_, ok := piiKeys[strings.ToLower(key)]
	return ok
}

// Redact returns a copy of value with every PII key replaced by Sentinel, recursing into
// nested maps and arrays. The input is never mutated.
func Redact(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			if IsPIIKey(key) {
				out[key] = Sentinel
				continue
			}
			out[key] = Redact(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Redact(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, item := range v {
			if IsPIIKey(key) {
				out[key] = Sentinel
				continue
			}
			out[key] = item
		}
		return out
	default:
		return value
	}
}

// ScanForPII returns the dotted paths of PII keys whose values are not redacted.
// An empty result means the value is safe to persist.
func ScanForPII(value interface{}) []string {
	var found []string
	scan(value, "", &found)
	sort.Strings(found)
	return found
}

func scan(value interface{}, prefix string, found *[]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, item := range v {
			path := joinPath(prefix, key)
			if IsPIIKey(key) {
				if s, ok := item.(string); !ok || s != Sentinel {
					*found = append(*found, path)
				}
				continue
			}
			scan(item, path, found)
		}
	case []interface{}:
		for _, item := range v {
			scan(item, prefix+"[]", found)
		}
	case map[string]string:
		for key, item := range v {
			if IsPIIKey(key) && item != Sentinel {
				*found = append(*found, joinPath(prefix, key))
			}
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
