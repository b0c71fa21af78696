// Package sanitize redacts string values in GraphQL response payloads.
package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Rule is the sanitizer's own rule type.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer applies regex-based sanitization to every string value of a
// JSON document, keeping key order and numbers as the server sent them.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer creates a new Sanitizer. Returns an error on invalid regex patterns.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules returns true if the sanitizer has any rules configured.
func (s *Sanitizer) HasRules() bool {
	return len(s.rules) > 0
}

// String applies every rule, in order, to v.
func (s *Sanitizer) String(v string) string {
	for _, rule := range s.rules {
		v = rule.pattern.ReplaceAllString(v, rule.replacement)
	}
	return v
}

// opaque reports whether key inside an object found under container holds a
// server-issued pagination token: an edge's cursor or a pageInfo cursor.
// Those are handed back to the server byte-for-byte and never rewritten.
func opaque(container, key string) bool {
	switch container {
	case "edges":
		return key == "cursor"
	case "pageInfo":
		return key == "startCursor" || key == "endCursor"
	}
	return false
}

// JSON sanitizes a raw JSON document. Object keys, key order and numbers are
// preserved exactly. Returns raw unchanged when there are no rules.
func (s *Sanitizer) JSON(raw json.RawMessage) (json.RawMessage, error) {
	if !s.HasRules() || len(raw) == 0 {
		return raw, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var buf bytes.Buffer
	if err := s.copyValue(dec, &buf, "", false); err != nil {
		return nil, fmt.Errorf("sanitize: failed to decode payload: %w", err)
	}
	if dec.More() {
		return nil, errors.New("sanitize: failed to decode payload: trailing data")
	}
	return json.RawMessage(buf.Bytes()), nil
}

// copyValue copies the next value from dec into buf. container is the key
// the value sits under (array elements inherit the array's key). keep
// disables rewriting of a string value.
func (s *Sanitizer) copyValue(dec *json.Decoder, buf *bytes.Buffer, container string, keep bool) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return s.copyObject(dec, buf, container)
		case '[':
			return s.copyArray(dec, buf, container)
		}
		return fmt.Errorf("unexpected %q", t)
	case string:
		if !keep {
			t = s.String(t)
		}
		return writeString(buf, t)
	case json.Number:
		buf.WriteString(t.String())
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case nil:
		buf.WriteString("null")
	}
	return nil
}

func (s *Sanitizer) copyObject(dec *json.Decoder, buf *bytes.Buffer, container string) error {
	buf.WriteByte('{')
	for i := 0; dec.More(); i++ {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := s.copyValue(dec, buf, key, opaque(container, key)); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func (s *Sanitizer) copyArray(dec *json.Decoder, buf *bytes.Buffer, container string) error {
	buf.WriteByte('[')
	for i := 0; dec.More(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := s.copyValue(dec, buf, container, false); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	buf.WriteByte(']')
	return nil
}

// writeString writes v as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, v string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
