// Package classify decides whether a responder's text is a genuine answer.
//
// Providers behind agentic tool loops occasionally return instructional
// scaffolding, content-filter sentinel spam, or marked error strings instead
// of an answer. Treating any non-empty string as success would silently
// corrupt the output dataset, so every answer passes through Classify before
// it is accepted.
package classify

import "strings"

// Kind is the closed taxonomy of answer classifications. The classifier
// produces the first seven; KindTimeout and KindException are assigned by the
// retry layer for faults that never yield text.
type Kind string

const (
	KindOK            Kind = "ok"
	KindEmpty         Kind = "empty"
	KindExplicitError Kind = "explicit_error"
	KindRateLimited   Kind = "rate_limited"
	KindNotFound      Kind = "not_found"
	KindFailedAnswer  Kind = "failed_answer"
	KindIncomplete    Kind = "incomplete"
	KindTimeout       Kind = "timeout"
	KindException     Kind = "exception"
)

// OK reports whether the kind represents a genuine answer.
func (k Kind) OK() bool {
	return k == KindOK
}

// Result is the classification of one answer.
type Result struct {
	Kind    Kind
	Message string // short human-readable description; empty for OK
}

// Failed reports whether the result represents a failure of any kind.
func (r Result) Failed() bool {
	return !r.Kind.OK()
}

// ErrorMarker prefixes answers that a provider (or an earlier pipeline stage)
// has already flagged as errors.
const ErrorMarker = "[ERROR]"

// sentinelTokens are control tokens some models emit when generation is
// refused by a content filter or collapses into degenerate output.
var sentinelTokens = []string{"<|im_start|>", "<|im_end|>", "<|endoftext|>"}

// incompletePatterns mark responses where an agentic responder returned its
// own scaffolding or a placeholder instead of an answer.
var incompletePatterns = []string{
	"<your answer> and ends with",
	"please generate the next thought and action",
	"if you can get the answer, please also reply with answer",
	"completed but no clear answer found",
}

const (
	rateLimitSignature = "error code: 429"
	notFoundSignature  = "error code: 404"

	// A sentinel token repeated more than this many times, accounting for
	// over half the text, means the model produced no real content.
	sentinelRepeatLimit = 5

	// Answers shorter than shortAnswerLen with fewer than minSubstantiveLen
	// non-sentinel characters carry no usable content.
	shortAnswerLen    = 100
	minSubstantiveLen = 20
)

// Classify applies the failure heuristics in a fixed order; the first match
// wins. It is pure: no I/O, no shared state, deterministic for a given input.
func Classify(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Kind: KindEmpty, Message: "empty answer"}
	}

	if strings.HasPrefix(trimmed, ErrorMarker) {
		return Result{Kind: KindExplicitError, Message: trimmed}
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, rateLimitSignature) {
		return Result{Kind: KindRateLimited, Message: "backend rate limited (429)"}
	}
	if strings.Contains(lower, notFoundSignature) {
		return Result{Kind: KindNotFound, Message: "backend resource not found (404)"}
	}

	if dominatedBySentinels(text) {
		return Result{Kind: KindFailedAnswer, Message: "degenerate output: " + Preview(trimmed, 50)}
	}

	if len(trimmed) < shortAnswerLen && substantiveLength(trimmed) < minSubstantiveLen {
		return Result{Kind: KindFailedAnswer, Message: "no substantive content: " + Preview(trimmed, 50)}
	}

	for _, pattern := range incompletePatterns {
		if strings.Contains(lower, pattern) {
			return Result{Kind: KindIncomplete, Message: "incomplete agentic response: " + Preview(trimmed, 50)}
		}
	}

	return Result{Kind: KindOK}
}

// dominatedBySentinels reports whether repeated control tokens make up the
// bulk of the text.
func dominatedBySentinels(text string) bool {
	for _, token := range sentinelTokens {
		n := strings.Count(text, token)
		if n <= sentinelRepeatLimit {
			continue
		}
		if n*len(token)*2 > len(text) {
			return true
		}
	}
	return false
}

// substantiveLength returns the number of characters left after stripping
// sentinel tokens and surrounding whitespace.
func substantiveLength(text string) int {
	for _, token := range sentinelTokens {
		text = strings.ReplaceAll(text, token, "")
	}
	return len(strings.TrimSpace(text))
}

// Preview truncates s to at most max bytes for inclusion in log lines and
// failure messages.
func Preview(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
