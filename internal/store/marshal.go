package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// marshalBody encodes a document to its stored JSON form. String values
// are NFC-normalized on the way in so equality and token matching never
// depend on the Unicode composition the client happened to send.
func marshalBody(doc map[string]any) (string, error) {
	data, err := json.Marshal(normalizeValue(doc))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalBody(body string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[norm.NFC.String(k)] = normalizeValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	default:
		return v
	}
}

// canonicalScalar renders an indexable value as its canonical string
// plus a numeric shadow column for range ordering. Non-scalar values
// (arrays, objects) are not indexable and report ok = false.
func canonicalScalar(v any) (value string, num any, ok bool) {
	switch val := v.(type) {
	case nil:
		return "null", nil, true
	case bool:
		if val {
			return "true", nil, true
		}
		return "false", nil, true
	case string:
		s := norm.NFC.String(val)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return s, f, true
		}
		return s, nil, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), val, true
	case int64:
		return strconv.FormatInt(val, 10), float64(val), true
	case int:
		return strconv.Itoa(val), float64(val), true
	case json.Number:
		return val.String(), numberFloat(val), true
	default:
		return "", nil, false
	}
}

func numberFloat(n json.Number) any {
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return f
}

// docFieldValue resolves a dotted field path inside a document.
func docFieldValue(doc map[string]any, field string) any {
	parts := strings.Split(field, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// tokenize lowercases and splits on non-alphanumeric runes, returning
// per-token occurrence counts.
func tokenize(text string) map[string]int {
	freq := map[string]int{}
	tokens := strings.FieldsFunc(strings.ToLower(norm.NFC.String(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

func floatSlice(v any) ([]float64, bool) {
	switch val := v.(type) {
	case []float64:
		return val, true
	case []any:
		out := make([]float64, len(val))
		for i, elem := range val {
			switch n := elem.(type) {
			case float64:
				out[i] = n
			case int64:
				out[i] = float64(n)
			case int:
				out[i] = float64(n)
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func marshalVector(vec []float64) (string, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalVector(body string) ([]float64, error) {
	var vec []float64
	if err := json.Unmarshal([]byte(body), &vec); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return vec, nil
}
