// Package llmjson validates and repairs JSON produced by language models.
//
// Well-formed input parses strictly and reports no repairs. Malformed input
// runs through a normalization pipeline (code fences, wrapping quotes, stray
// backticks, payload extraction) and a best-effort repair pass (smart quotes,
// trailing commas, bare keys, bracket balancing). Every applied step is
// recorded so callers can log how far a response drifted from the contract.
package llmjson

import (
	"encoding/json"
	"strings"
)

// Repair step names recorded in Result.RepairSteps.
const (
	StepStrippedCodeFence      = "stripped_code_fence"
	StepStrippedWrappingQuotes = "stripped_wrapping_quotes"
	StepRemovedBackticks       = "removed_backticks"
	StepExtractedJSONBlock     = "extracted_json_block"
	StepReplacedSmartQuotes    = "replaced_smart_quotes"
	StepRemovedTrailingCommas  = "removed_trailing_commas"
	StepQuotedBareKeys         = "quoted_bare_keys"
	StepBalancedBrackets       = "balanced_brackets"
)

// Failure kinds reported in Result.ErrorKind.
const (
	ErrKindEmpty       = "empty"
	ErrKindDecode      = "decode"
	ErrKindMissingKeys = "missing_keys"
	ErrKindNotObject   = "not_object"
	ErrKindNotArray    = "not_array"
)

// Result is the outcome of a validation pass.
type Result struct {
	OK          bool
	Parsed      any
	RepairSteps []string
	ErrorKind   string
}

// Validate parses raw as a JSON object, repairing if needed. When expectKeys
// are given, all of them must be present at the top level.
func Validate(raw string, expectKeys ...string) Result {
	return run(raw, false, expectKeys)
}

// ValidateArray parses raw as a JSON array, repairing if needed.
func ValidateArray(raw string) Result {
	return run(raw, true, nil)
}

func run(raw string, wantArray bool, expectKeys []string) Result {
	steps := []string{}

	s := strings.TrimSpace(raw)
	if s == "" {
		return Result{RepairSteps: steps, ErrorKind: ErrKindEmpty}
	}

	// Strict parse first: well-formed input must succeed with zero repairs.
	if v, ok := tryParse(s); ok {
		if res, done := finish(v, wantArray, expectKeys, steps); done {
			return res
		}
		// Parsed to a JSON string; the payload may be quoted inside it.
		inner := strings.TrimSpace(v.(string))
		steps = append(steps, StepStrippedWrappingQuotes)
		if inner == "" {
			return Result{RepairSteps: steps, ErrorKind: ErrKindEmpty}
		}
		s = inner
		if v2, ok2 := tryParse(s); ok2 {
			if res, done := finish(v2, wantArray, expectKeys, steps); done {
				return res
			}
			return typeMismatch(v2, wantArray, steps)
		}
	}

	// Normalization pipeline.
	if t, changed := stripCodeFence(s); changed {
		s = t
		steps = append(steps, StepStrippedCodeFence)
	}
	if t, changed := stripWrappingQuotes(s); changed {
		s = t
		steps = append(steps, StepStrippedWrappingQuotes)
	}
	if t, changed := stripBackticks(s); changed {
		s = t
		steps = append(steps, StepRemovedBackticks)
	}
	if t, changed := extractPayload(s, wantArray); changed {
		s = t
		steps = append(steps, StepExtractedJSONBlock)
	}

	if v, ok := tryParse(s); ok {
		if res, done := finish(v, wantArray, expectKeys, steps); done {
			return res
		}
		return typeMismatch(v, wantArray, steps)
	}

	// Repair pass. Each repair is cumulative; parse again after every one
	// that changed the input.
	repairs := []struct {
		name string
		fn   func(string) (string, bool)
	}{
		{StepReplacedSmartQuotes, replaceSmartQuotes},
		{StepRemovedTrailingCommas, removeTrailingCommas},
		{StepQuotedBareKeys, quoteBareKeys},
		{StepBalancedBrackets, balanceBrackets},
	}
	for _, rp := range repairs {
		t, changed := rp.fn(s)
		if !changed {
			continue
		}
		s = t
		steps = append(steps, rp.name)
		if v, ok := tryParse(s); ok {
			if res, done := finish(v, wantArray, expectKeys, steps); done {
				return res
			}
			return typeMismatch(v, wantArray, steps)
		}
	}

	return Result{RepairSteps: steps, ErrorKind: ErrKindDecode}
}

func tryParse(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// finish classifies a parsed value. The second return is false only when the
// value is a string, which may wrap the real payload and deserves another
// pass.
func finish(v any, wantArray bool, expectKeys []string, steps []string) (Result, bool) {
	if wantArray {
		if arr, ok := v.([]any); ok {
			return Result{OK: true, Parsed: arr, RepairSteps: steps}, true
		}
	} else if obj, ok := v.(map[string]any); ok {
		if missing := missingKeys(obj, expectKeys); len(missing) > 0 {
			return Result{Parsed: obj, RepairSteps: steps, ErrorKind: ErrKindMissingKeys}, true
		}
		return Result{OK: true, Parsed: obj, RepairSteps: steps}, true
	}
	if _, isStr := v.(string); isStr {
		return Result{}, false
	}
	return typeMismatch(v, wantArray, steps), true
}

func typeMismatch(v any, wantArray bool, steps []string) Result {
	kind := ErrKindNotObject
	if wantArray {
		kind = ErrKindNotArray
	}
	return Result{Parsed: v, RepairSteps: steps, ErrorKind: kind}
}

func missingKeys(obj map[string]any, keys []string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// ========================================
// Normalization
// ========================================

func stripCodeFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return s, false
	}
	rest := s[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = strings.TrimPrefix(rest, "json")
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "```")
	return strings.TrimSpace(rest), true
}

func stripWrappingQuotes(s string) (string, bool) {
	if len(s) < 2 {
		return s, false
	}
	first, last := s[0], s[len(s)-1]
	if first != last || (first != '"' && first != '\'') {
		return s, false
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
		return inner, true
	}
	return s, false
}

func stripBackticks(s string) (string, bool) {
	if !strings.Contains(s, "`") {
		return s, false
	}
	return strings.ReplaceAll(s, "`", ""), true
}

// extractPayload cuts the outermost JSON container out of surrounding prose.
// Objects are preferred unless the caller wants an array.
func extractPayload(s string, wantArray bool) (string, bool) {
	var block string
	var found bool
	if wantArray {
		block, found = extractBlock(s, '[', ']')
		if !found {
			block, found = extractBlock(s, '{', '}')
		}
	} else {
		block, found = extractBlock(s, '{', '}')
		if !found {
			block, found = extractBlock(s, '[', ']')
		}
	}
	if !found || block == s {
		return s, false
	}
	return block, true
}

// extractBlock returns the first balanced open..close span, skipping string
// literals. An unterminated span runs to the end of the input so the bracket
// balancer can close it.
func extractBlock(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], true
}

// ========================================
// Repairs
// ========================================

var smartQuoteReplacer = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"„", `"`, // low double
	"‘", `'`, // left single
	"’", `'`, // right single
)

func replaceSmartQuotes(s string) (string, bool) {
	t := smartQuoteReplacer.Replace(s)
	return t, t != s
}

func removeTrailingCommas(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	changed := false
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr {
			b.WriteByte(ch)
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		if ch == '"' {
			inStr = true
			b.WriteByte(ch)
			continue
		}
		if ch == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				changed = true
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String(), changed
}

func quoteBareKeys(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s) + 16)
	changed := false
	inStr, esc := false, false
	expectKey := false
	var stack []byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr {
			b.WriteByte(ch)
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch {
		case ch == '"':
			inStr = true
			b.WriteByte(ch)
		case ch == '{':
			stack = append(stack, '{')
			expectKey = true
			b.WriteByte(ch)
		case ch == '[':
			stack = append(stack, '[')
			expectKey = false
			b.WriteByte(ch)
		case ch == '}' || ch == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			expectKey = false
			b.WriteByte(ch)
		case ch == ',':
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '{'
			b.WriteByte(ch)
		case ch == ':':
			expectKey = false
			b.WriteByte(ch)
		case expectKey && (isAlpha(ch) || ch == '_'):
			j := i
			for j < len(s) && (isAlnum(s[j]) || s[j] == '_') {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				changed = true
				i = j - 1
				expectKey = false
			} else {
				b.WriteByte(ch)
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), changed
}

func balanceBrackets(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s) + 4)
	changed := false
	inStr, esc := false, false
	var stack []byte

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr {
			b.WriteByte(ch)
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
			b.WriteByte(ch)
		case '{', '[':
			stack = append(stack, ch)
			b.WriteByte(ch)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
				b.WriteByte(ch)
			} else {
				changed = true
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
				b.WriteByte(ch)
			} else {
				changed = true
			}
		default:
			b.WriteByte(ch)
		}
	}

	if inStr {
		b.WriteByte('"')
		changed = true
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
		changed = true
	}
	return b.String(), changed
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isAlnum(ch byte) bool {
	return isAlpha(ch) || (ch >= '0' && ch <= '9')
}
