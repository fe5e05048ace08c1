package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

var ErrEmptyDocument = errors.New("document is empty")

// DecodeDocument turns a config or snapshot payload into map[string]any or []any.
// Payloads are JSON, optionally URL-encoded. Anything else is read as key=value text
// separated by newlines or '&'.
func DecodeDocument(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyDocument
	}

	if doc, err := decodeJSON(raw); err == nil {
		return doc, nil
	}
	unescaped, unescapeErr := url.PathUnescape(raw)
	if unescapeErr == nil && unescaped != raw {
		if doc, err := decodeJSON(strings.TrimSpace(unescaped)); err == nil {
			return doc, nil
		}
		raw = strings.TrimSpace(unescaped)
	}

	if looksLikeJSON(raw) {
		_, err := decodeJSON(raw)

		return nil, fmt.Errorf("decode json: %w", err)
	}

	return decodeKeyValues(raw)
}

func looksLikeJSON(raw string) bool {
	return strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[")
}

func decodeJSON(raw string) (any, error) {
	if !looksLikeJSON(raw) {
		return nil, errors.New("not a json document")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func decodeKeyValues(raw string) (map[string]any, error) {
	out := make(map[string]any)
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '&' || r == '\r' })
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	if len(out) == 0 {
		return nil, errors.New("no key=value fields")
	}

	return out, nil
}

// Object returns v as a JSON object or nil.
func Object(v any) map[string]any {
	m, _ := v.(map[string]any)

	return m
}

// Array returns v as a JSON array or nil.
func Array(v any) []any {
	a, _ := v.([]any)

	return a
}

// Lookup walks a dotted path through nested objects.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		obj := Object(cur)
		if obj == nil {
			return nil, false
		}
		next, ok := obj[part]
		if !ok {
			return nil, false
		}
		cur = next
	}

	return cur, true
}

// Int converts numbers, numeric strings and booleans. Everything else, including
// values outside the int range, yields 0.
func Int(v any) int {
	f, ok := number(v)
	if !ok || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}

	return int(f)
}

func Int64(v any) int64 {
	return int64(Int(v))
}

func Float(v any) float64 {
	f, _ := number(v)

	return f
}

func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true
		}

		return false
	default:
		f, ok := number(v)

		return ok && f != 0
	}
}

// Ints converts a JSON array of numbers; non-numeric items become 0.
func Ints(v any) []int {
	arr := Array(v)
	if arr == nil {
		return nil
	}
	out := make([]int, len(arr))
	for i, item := range arr {
		out[i] = Int(item)
	}

	return out
}

func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case bool:
		if t {
			return 1, true
		}

		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

// Floats converts a JSON array of numbers; non-numeric items become 0.
func Floats(v any) []float64 {
	arr := Array(v)
	if arr == nil {
		return nil
	}
	out := make([]float64, len(arr))
	for i, item := range arr {
		out[i] = Float(item)
	}

	return out
}
