package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Correction prompts appended after a rejected reply.
const (
	CorrectionGeneric    = "Your previous answer could not be parsed. Answer again in exactly the requested format with no extra text."
	CorrectionJSONArray  = "Your previous answer was not a valid JSON array. Respond again with only the JSON array: no prose, no code fences."
	CorrectionJSONObject = "Your previous answer was not a valid JSON object with the required keys. Respond again with only the JSON object: no prose, no code fences."
	CorrectionCategory   = "Your previous answer was not one of the allowed categories. Respond again with exactly one category token and nothing else."
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFence  = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\n?(.*?)\\s*```$")
)

// StripThinking removes <think>...</think> blocks that reasoning models emit
// ahead of their answer.
func StripThinking(raw string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(raw, ""))
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// Delimited parses only the region between start and end. The start marker is
// matched at its last occurrence; an empty end runs to the end of the text.
func Delimited[T any](start, end string, inner Validator[T]) Validator[T] {
	return func(raw string) (T, error) {
		var zero T
		region, err := delimitedRegion(raw, start, end)
		if err != nil {
			return zero, err
		}
		return inner(region)
	}
}

func delimitedRegion(raw, start, end string) (string, error) {
	region := raw
	if start != "" {
		idx := strings.LastIndex(raw, start)
		if idx < 0 {
			return "", Failf(raw, "start marker %q not found", start)
		}
		region = raw[idx+len(start):]
	}
	if end != "" {
		idx := strings.Index(region, end)
		if idx < 0 {
			return "", Failf(raw, "end marker %q not found", end)
		}
		region = region[:idx]
	}
	region = strings.TrimSpace(region)
	if region == "" {
		return "", Failf(raw, "empty region after %q", start)
	}
	return region, nil
}

// PreferDelimited tries the delimited form when start appears in the reply.
// If the region does not parse as inner, fallback runs over the region only,
// so text before the marker never supplies the answer. Without the marker,
// fallback runs over the whole reply.
func PreferDelimited[T any](start, end string, inner, fallback Validator[T]) Validator[T] {
	return func(raw string) (T, error) {
		var zero T
		if start != "" && strings.Contains(raw, start) {
			region, err := delimitedRegion(raw, start, end)
			if err != nil {
				return zero, err
			}
			v, err := inner(region)
			if err == nil || fallback == nil {
				return v, err
			}
			if v, ferr := fallback(region); ferr == nil {
				return v, nil
			}
			return zero, err
		}
		if fallback == nil {
			return zero, Failf(raw, "start marker %q not found", start)
		}
		return fallback(raw)
	}
}

// JSONArray parses the whole reply, minus code fences and think blocks, as a
// JSON array of T.
func JSONArray[T any]() Validator[[]T] {
	return func(raw string) ([]T, error) {
		body := stripFences(StripThinking(raw))
		if !strings.HasPrefix(body, "[") {
			return nil, Failf(raw, "expected a JSON array")
		}
		var v []T
		if err := decodeLenient(body, &v); err != nil {
			return nil, Failf(raw, "invalid JSON array: %v", err)
		}
		if v == nil {
			v = []T{}
		}
		return v, nil
	}
}

// ScanArray returns the first balanced [...] substring that decodes as a
// JSON array of T. Only strict JSON is accepted.
func ScanArray[T any]() Validator[[]T] {
	return func(raw string) ([]T, error) {
		for i := 0; i < len(raw); i++ {
			if raw[i] != '[' {
				continue
			}
			end := matchClose(raw, i, '[', ']')
			if end < 0 {
				continue
			}
			var v []T
			if err := json.Unmarshal([]byte(raw[i:end+1]), &v); err == nil {
				if v == nil {
					v = []T{}
				}
				return v, nil
			}
		}
		return nil, Failf(raw, "no JSON array found")
	}
}

// JSONObject parses the reply's object body and requires every key in required.
func JSONObject(required ...string) Validator[map[string]json.RawMessage] {
	return func(raw string) (map[string]json.RawMessage, error) {
		m, _, err := parseObject(raw, required)
		return m, err
	}
}

// Object parses the reply's object body into T after checking required keys.
func Object[T any](required ...string) Validator[T] {
	return func(raw string) (T, error) {
		var v T
		_, body, err := parseObject(raw, required)
		if err != nil {
			return v, err
		}
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return v, Failf(raw, "object does not match expected shape: %v", err)
		}
		return v, nil
	}
}

// Category accepts a reply consisting of exactly one of tokens. Matching
// ignores case, quotes, backticks, markdown emphasis and trailing punctuation.
// The canonical token is returned.
func Category(tokens ...string) Validator[string] {
	return func(raw string) (string, error) {
		norm := normalizeToken(StripThinking(raw))
		for _, t := range tokens {
			if strings.EqualFold(norm, t) {
				return t, nil
			}
		}
		return "", Failf(raw, "expected one of %s", strings.Join(tokens, ", "))
	}
}

// Map converts a validated value. A non-nil error from fn rejects the reply.
func Map[T, U any](v Validator[T], fn func(raw string, value T) (U, error)) Validator[U] {
	return func(raw string) (U, error) {
		var zero U
		t, err := v(raw)
		if err != nil {
			return zero, err
		}
		return fn(raw, t)
	}
}

func normalizeToken(s string) string {
	s = stripFences(s)
	s = strings.Trim(s, " \t\r\n\"'`*_.,:;!()[]{}")
	return strings.ToLower(s)
}

// parseObject finds the first balanced {...} in raw that decodes and carries
// every required key. When none does, the text from the first unclosed brace
// (or the first brace) is passed through jsonrepair. It returns the decoded
// map and the JSON text that decoded.
func parseObject(raw string, required []string) (map[string]json.RawMessage, string, error) {
	body := stripFences(StripThinking(raw))

	var keyErr error
	repairFrom := -1
	for i := 0; i < len(body); i++ {
		if body[i] != '{' {
			continue
		}
		end := matchClose(body, i, '{', '}')
		if end < 0 {
			if repairFrom < 0 {
				repairFrom = i
			}
			continue
		}
		candidate := body[i : end+1]
		m := make(map[string]json.RawMessage)
		if err := json.Unmarshal([]byte(candidate), &m); err != nil {
			continue
		}
		if err := requireKeys(raw, m, required); err != nil {
			if keyErr == nil {
				keyErr = err
			}
			continue
		}
		return m, candidate, nil
	}
	if keyErr != nil {
		return nil, "", keyErr
	}

	if repairFrom < 0 {
		repairFrom = strings.Index(body, "{")
	}
	if repairFrom < 0 {
		return nil, "", Failf(raw, "expected a JSON object")
	}
	repaired, err := jsonrepair.JSONRepair(body[repairFrom:])
	if err != nil {
		return nil, "", Failf(raw, "invalid JSON object: %v", err)
	}
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(repaired), &m); err != nil {
		return nil, "", Failf(raw, "invalid JSON object: %v", err)
	}
	if err := requireKeys(raw, m, required); err != nil {
		return nil, "", err
	}
	return m, repaired, nil
}

func requireKeys(raw string, m map[string]json.RawMessage, required []string) error {
	for _, key := range required {
		if _, ok := m[key]; !ok {
			return Failf(raw, "missing key %q", key)
		}
	}
	return nil
}

// decodeLenient decodes body as JSON, retrying once through jsonrepair.
func decodeLenient(body string, v any) error {
	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	repaired, rerr := jsonrepair.JSONRepair(body)
	if rerr != nil {
		return err
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return err
	}
	return nil
}

// matchClose returns the index of the close byte balancing the open byte at
// index open, or -1. Brackets inside JSON strings are ignored.
func matchClose(s string, open int, openCh, closeCh byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
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
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
