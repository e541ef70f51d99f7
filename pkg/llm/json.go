package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Parse strategies, in the order they are tried.
const (
	StrategyDirect       = "direct"
	StrategyFenced       = "fenced"
	StrategyBracketSlice = "bracket_slice"
	StrategyTruncated    = "truncated_array"
)

// WrapperKeys are tried, in order, when an array is expected but the reply
// is an object.
var WrapperKeys = []string{"entries", "columns", "dictionary_entries", "data"}

// MaxExcerptBytes bounds the raw text kept on parse failures.
const MaxExcerptBytes = 500

// ParseOutcome is the result of extracting JSON from LLM text. On failure OK
// is false and Reason and RawExcerpt describe what was seen.
type ParseOutcome struct {
	OK         bool            `json:"ok"`
	Value      json.RawMessage `json:"value,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	WrapperKey string          `json:"wrapper_key,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	RawExcerpt string          `json:"raw_excerpt,omitempty"`
}

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\r?\\n?(.*?)```")

// StripThinking removes a leading <think> block.
func StripThinking(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// ParseResult extracts the first JSON value (object or array) from raw.
// It never panics; failures are reported through ParseOutcome.
func ParseResult(raw string) (outcome ParseOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = parseFailure(raw, fmt.Sprintf("parser panic: %v", r))
		}
	}()

	cleaned := StripThinking(raw)
	if strings.TrimSpace(cleaned) == "" {
		return parseFailure(raw, "empty response")
	}

	strategies := []struct {
		name string
		fn   func(string) (json.RawMessage, bool)
	}{
		{StrategyDirect, parseDirect},
		{StrategyFenced, parseFenced},
		{StrategyBracketSlice, parseBracketSlice},
		{StrategyTruncated, parseTruncatedArray},
	}

	for _, s := range strategies {
		if v, ok := s.fn(cleaned); ok {
			return ParseOutcome{OK: true, Value: v, Strategy: s.name}
		}
	}

	return parseFailure(raw, "no valid JSON object or array found")
}

// ParseArray is ParseResult for replies that must be a JSON array. An object
// reply is unwrapped through WrapperKeys.
func ParseArray(raw string) ParseOutcome {
	outcome := ParseResult(raw)
	if !outcome.OK || isArray(outcome.Value) {
		return outcome
	}

	arr, key, ok := UnwrapArray(outcome.Value)
	if !ok {
		return parseFailure(raw, fmt.Sprintf("expected a JSON array or an object with one of %s holding an array",
			strings.Join(WrapperKeys, ", ")))
	}
	outcome.Value = arr
	outcome.WrapperKey = key
	return outcome
}

// UnwrapArray returns the first WrapperKeys member of the object v that holds an array.
func UnwrapArray(v json.RawMessage) (json.RawMessage, string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil, "", false
	}
	for _, key := range WrapperKeys {
		if inner, ok := obj[key]; ok && isArray(inner) {
			return inner, key, true
		}
	}
	return nil, "", false
}

// parseDirect accepts text that is entirely a JSON object or array.
func parseDirect(s string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(s)
	if !startsWithBracket(trimmed) {
		return nil, false
	}
	return validJSON(trimmed)
}

// parseFenced accepts the first markdown code block whose body is JSON.
func parseFenced(s string) (json.RawMessage, bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(s, -1) {
		body := strings.TrimSpace(m[1])
		if !startsWithBracket(body) {
			continue
		}
		if v, ok := validJSON(body); ok {
			return v, true
		}
	}
	return nil, false
}

// parseBracketSlice slices from the earliest { or [ to the last matching closer.
// When that span is not valid JSON the first balanced span is tried instead.
func parseBracketSlice(s string) (json.RawMessage, bool) {
	open, closer := firstOpener(s)
	if open < 0 {
		return nil, false
	}
	if end := strings.LastIndexByte(s, closer); end > open {
		if v, ok := validJSON(s[open : end+1]); ok {
			return v, true
		}
	}
	if span, ok := extractBalancedJSON(s[open:], s[open], closer); ok {
		return validJSON(span)
	}
	return nil, false
}

// parseTruncatedArray recovers the complete leading elements of an array
// whose reply was cut off, e.g. by a max-token limit.
func parseTruncatedArray(s string) (json.RawMessage, bool) {
	open, closer := firstOpener(s)
	if open < 0 || closer != ']' {
		return nil, false
	}

	body := s[open:]
	lastComplete := -1
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(body); i++ {
		c := body[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 1 {
				lastComplete = i
			}
			if depth == 0 {
				return nil, false // complete array; other strategies already failed on it
			}
		}
	}
	if lastComplete < 0 {
		return nil, false
	}
	return validJSON(body[:lastComplete+1] + "]")
}

// extractBalancedJSON finds the first balanced JSON structure starting with openChar.
// It handles nested structures by counting bracket depth.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

func firstOpener(s string) (int, byte) {
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	switch {
	case obj < 0 && arr < 0:
		return -1, 0
	case arr < 0 || (obj >= 0 && obj < arr):
		return obj, '}'
	default:
		return arr, ']'
	}
}

func startsWithBracket(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func validJSON(s string) (json.RawMessage, bool) {
	b := []byte(s)
	if !json.Valid(b) {
		return nil, false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, b); err != nil {
		return nil, false
	}
	return json.RawMessage(compact.Bytes()), true
}

func isArray(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) > 0 && bytes.TrimSpace(v)[0] == '['
}

func parseFailure(raw, reason string) ParseOutcome {
	return ParseOutcome{OK: false, Reason: reason, RawExcerpt: Excerpt(raw)}
}

// Excerpt truncates raw to MaxExcerptBytes without splitting a UTF-8 rune.
func Excerpt(raw string) string {
	if len(raw) <= MaxExcerptBytes {
		return raw
	}
	cut := MaxExcerptBytes
	for cut > 0 && !isRuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
