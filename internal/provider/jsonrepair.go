package provider

import (
	"errors"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ErrEmptyJSON is returned when the response holds no JSON value at all.
var ErrEmptyJSON = errors.New("no JSON value in response")

// ParseJSON decodes a model response that is supposed to be JSON. It accepts
// markdown code fences, leading or trailing prose around a single object or
// array, stray control characters and trailing commas.
func ParseJSON(text string) (any, error) {
	cleaned := stripControl(strings.TrimSpace(text))
	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}
	if cleaned == "" {
		return nil, ErrEmptyJSON
	}

	var v any
	err := json.Unmarshal([]byte(cleaned), &v)
	if err == nil {
		return v, nil
	}

	span := outermostSpan(cleaned)
	if span == "" {
		return nil, err
	}
	span = trailingCommaRe.ReplaceAllString(span, "$1")
	if err2 := json.Unmarshal([]byte(span), &v); err2 != nil {
		return nil, err2
	}
	return v, nil
}

// stripControl drops ASCII control characters other than whitespace.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		if r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// outermostSpan returns the first balanced {...} or [...] in s, honouring
// string literals, or "" if none closes.
func outermostSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open := s[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
