package classify

import (
	"strings"
	"testing"
)

func TestClassify_Heuristics(t *testing.T) {
	longProse := strings.Repeat("The image shows a busy street corner. ", 4) // ~150 chars of genuine prose

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"empty string", "", KindEmpty},
		{"whitespace only", "   \n\t ", KindEmpty},
		{"explicit error marker", "[ERROR] API call failed", KindExplicitError},
		{"explicit error marker with leading space", "  [ERROR] boom", KindExplicitError},
		{"rate limit signature", "RateLimitError: Error code: 429 - too many requests", KindRateLimited},
		{"not found signature", "NotFoundError: Error code: 404 - unknown model", KindNotFound},
		{"repeated sentinel tokens", strings.Repeat("<|im_end|>", 200), KindFailedAnswer},
		{"short with only sentinels", "<|im_start|><|im_end|>", KindFailedAnswer},
		{"short without substance", "ok.", KindFailedAnswer},
		{"agentic scaffolding", "Please generate the next THOUGHT and ACTION to continue.", KindIncomplete},
		{"no clear answer", "VSP completed but no clear answer found in debug output", KindIncomplete},
		{"genuine prose answer", longProse, KindOK},
		{"short but substantive enough", "The answer is 42 because of the following reasons described here.", KindOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if got.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %q, want %q", Preview(tt.text, 40), got.Kind, tt.want)
			}
			if tt.want == KindOK && got.Message != "" {
				t.Errorf("OK result should carry no message, got %q", got.Message)
			}
			if tt.want != KindOK && got.Message == "" {
				t.Errorf("failure result should carry a message")
			}
		})
	}
}

// TestClassify_Deterministic verifies the classifier is a pure function:
// identical input yields identical output across calls.
func TestClassify_Deterministic(t *testing.T) {
	inputs := []string{
		"",
		"[ERROR] transient",
		strings.Repeat("<|endoftext|>", 50),
		"A complete and thoughtful answer describing the scene in enough detail to count as real prose output.",
	}

	for _, in := range inputs {
		first := Classify(in)
		second := Classify(in)
		if first != second {
			t.Errorf("Classify(%q) not deterministic: %+v vs %+v", Preview(in, 30), first, second)
		}
	}
}

func TestClassify_OrderFirstMatchWins(t *testing.T) {
	// Carries both the explicit marker and a rate-limit signature; the marker
	// check runs first.
	got := Classify("[ERROR] Error code: 429")
	if got.Kind != KindExplicitError {
		t.Errorf("expected explicit_error to win over rate_limited, got %q", got.Kind)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short", 50); got != "short" {
		t.Errorf("Preview should not truncate short strings, got %q", got)
	}
	long := strings.Repeat("x", 100)
	got := Preview(long, 50)
	if len(got) != 53 || !strings.HasSuffix(got, "...") {
		t.Errorf("Preview(100 chars, 50) = %q (len %d)", got, len(got))
	}
}
