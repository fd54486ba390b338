package model

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/minio/sha256-simd"
)

// CanonicalJSON renders v as JSON with sorted object keys and no
// insignificant whitespace, matching spec.md's "sorted keys, no
// whitespace" requirement for content-addressed hashing. It is stable
// under key reordering of the input and under repeated calls on a
// logically-identical value.
func CanonicalJSON(v any) ([]byte, error) {
	// round-trip through encoding/json into a generic representation so
	// that map keys are collected and can be sorted explicitly: the
	// stdlib encoder already sorts map[string]any keys, but nested
	// struct-tagged values may not, so we normalize via json.Marshal
	// followed by a canonicalizing re-encode of the decoded value.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

// ContentHash returns the lowercase-hex SHA-256 digest of data's
// canonical JSON encoding, using sha256-simd for the hardware-accelerated
// path the rest of the corpus relies on for event/content hashing.
func ContentHash(data any) (string, error) {
	canon, err := CanonicalJSON(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hexEncode(sum[:]), nil
}

const hextable = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
