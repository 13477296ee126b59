// Package hashing provides the deterministic serialization and digest primitives shared by
// the ledger entry hash and the audit hash chain.
package hashing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Normalize converts an arbitrary value into its generic JSON form (maps, slices, strings,
// bools, json.Number and nil). Numbers keep their textual form so that a value read back
// from a JSONB column canonicalizes exactly like the value that was written.
func Normalize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value for normalization: %w", err)
		}
		raw = encoded
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out interface{}
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode value for normalization: %w", err)
	}
	return out, nil
}

// StableString renders a value with object keys sorted at every depth.
// Absent values (nil) render as the empty string, arrays keep their order and scalars use
// their JSON encoding.
func StableString(value interface{}) (string, error) {
	normalized, err := Normalize(value)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := writeStable(&sb, normalized); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeStable(sb *strings.Builder, value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeStable(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(encodedKey)
			sb.WriteByte(':')
			if err := writeStable(sb, v[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil
	case json.Number:
		sb.WriteString(v.String())
		return nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode scalar: %w", err)
		}
		sb.Write(encoded)
		return nil
	}
}

// CanonicalJSON re-encodes a value as compact JSON with sorted object keys. Unlike
// StableString the output is valid JSON, so it can be stored and decoded again.
func CanonicalJSON(value interface{}) (json.RawMessage, error) {
	normalized, err := Normalize(value)
	if err != nil {
		return nil, err
	}
	// encoding/json sorts map keys and keeps json.Number verbatim
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canonical json: %w", err)
	}
	return encoded, nil
}
