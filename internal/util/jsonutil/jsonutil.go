package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned by ExtractJSON when no JSON object can be found.
var ErrNoJSON = errors.New("no JSON object found in text")

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ExtractJSON pulls a JSON object out of model output. It accepts pure JSON,
// a ```json fenced block, or an object surrounded by prose.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, ErrNoJSON
	}
	if json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	for _, m := range fenceRe.FindAllStringSubmatch(s, -1) {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return []byte(body), nil
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		body := s[start : end+1]
		if json.Valid([]byte(body)) {
			return []byte(body), nil
		}
	}
	return nil, ErrNoJSON
}

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encode appends a newline.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation. Field order of
// structs is preserved.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ErrNotObject is returned by DecodeObject for JSON that is not an object.
var ErrNotObject = errors.New("JSON value is not an object")

// DecodeObject decodes model output into a JSON object. An object wrapped
// in a JSON string is unwrapped, and \uXXXX sequences left in string values
// by double escaping are resolved.
func DecodeObject(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("quoted payload: %w", err)
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotObject, v)
	}
	for k, val := range obj {
		obj[k] = resolveEscapes(val)
	}
	return obj, nil
}

func resolveEscapes(v any) any {
	switch x := v.(type) {
	case string:
		return unescapeUnicode(x)
	case []any:
		for i := range x {
			x[i] = resolveEscapes(x[i])
		}
		return x
	case map[string]any:
		for k, val := range x {
			x[k] = resolveEscapes(val)
		}
		return x
	}
	return v
}

// unescapeUnicode turns literal \u00f8 sequences into their characters. A
// string that does not decode as a JSON string body is returned unchanged.
func unescapeUnicode(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+strings.ReplaceAll(s, `"`, `\"`)+`"`), &out); err != nil {
		return s
	}
	return out
}
