package streaming

import (
	"encoding/json"
	"strings"

	"goa.design/llmgateway/internal/model"
)

// HealResult is the outcome of healing one truncated or malformed
// completion (spec.md §4.13: "{content, healed, healing_method?,
// original_content}").
type HealResult struct {
	Content         string
	Healed          bool
	HealingMethod   string
	OriginalContent string
}

// RepairJSON attempts to turn a truncated JSON string into valid JSON by
// closing unclosed strings and brackets and stripping trailing garbage
// that cannot be part of a well-formed value. It is a pure function: no
// I/O, deterministic on its input, safe to call identically whether the
// truncation was detected on a live stream or during cache replay
// (spec.md §4.13: "Strategies: close unclosed strings/brackets, strip
// trailing garbage, parse partial. Pure function; no I/O.").
func RepairJSON(raw string) HealResult {
	if valid(raw) {
		return HealResult{Content: raw, OriginalContent: raw}
	}

	trimmed := strings.TrimRightFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	repaired, method, ok := closeUnclosed(trimmed)
	if ok && valid(repaired) {
		return HealResult{Content: repaired, Healed: true, HealingMethod: method, OriginalContent: raw}
	}

	if partial, method, ok := stripTrailingGarbage(trimmed); ok {
		if closed, closeMethod, ok := closeUnclosed(partial); ok && valid(closed) {
			return HealResult{
				Content:         closed,
				Healed:          true,
				HealingMethod:   method + "+" + closeMethod,
				OriginalContent: raw,
			}
		}
	}

	return HealResult{Content: raw, Healed: false, OriginalContent: raw}
}

// closeUnclosed walks the string tracking bracket/string nesting and
// appends whatever closers are needed to balance it.
func closeUnclosed(s string) (string, string, bool) {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
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
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return s, "", false
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}
	return b.String(), "closed_unclosed_brackets", true
}

// stripTrailingGarbage removes a trailing partial token (an incomplete
// key, value, or dangling comma) that closeUnclosed alone cannot repair.
func stripTrailingGarbage(s string) (string, string, bool) {
	last := strings.LastIndexAny(s, ",:")
	if last == -1 {
		return s, "", false
	}
	return strings.TrimRight(s[:last], " \t\n\r"), "stripped_trailing_garbage", true
}

func valid(s string) bool {
	return json.Valid([]byte(s))
}

// HealStreamResult is the outcome of healing a streaming completion that
// ended before a Stop chunk arrived.
type HealStreamResult struct {
	Response model.Response
	Healed   bool
	Reason   string
}

// HealStream builds a Response from a stream that ended before a Stop
// chunk arrived, or whose tool-call blocks are still open. Such a Response
// carries the given parts and the usage seen so far, with stop reason
// length and Healed set. Open tool calls are not repaired (RepairJSON is
// not applied to their arguments) and are not included in the Response.
// A stream with a stop reason and no open tool calls is returned as is.
func HealStream(state *State, parts []model.Part) HealStreamResult {
	open := state.OpenToolCalls()
	if len(open) == 0 && state.StopReason() != "" {
		return HealStreamResult{
			Response: model.Response{Content: parts, Usage: state.Usage(), StopReason: state.StopReason()},
		}
	}

	reason := "stream ended without stop event"
	if len(open) > 0 {
		reason = "unterminated tool call"
	}
	return HealStreamResult{
		Response: model.Response{Content: parts, Usage: state.Usage(), StopReason: model.StopReasonLength},
		Healed:   true,
		Reason:   reason,
	}
}
