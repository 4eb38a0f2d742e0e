package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/felichat/felichat/internal/felichat/apicall"
	"github.com/felichat/felichat/internal/felichat/nlp"
	"github.com/felichat/felichat/internal/felichat/tokenizer"
)

// fakeCompleter records calls and returns a canned result.
type fakeCompleter struct {
	calls      int
	allowances []int
	result     nlp.CompletionResult
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []nlp.Message, maxReplyTokens int) nlp.CompletionResult {
	f.calls++
	f.allowances = append(f.allowances, maxReplyTokens)
	return f.result
}

// oneToOne makes every character one token so test arithmetic is exact.
var oneToOne = tokenizer.Heuristic{CharsPerToken: 1}

var testPrompts = Prompts{
	PreSummary: strings.Repeat("s", 20),
	PreNote:    "Summary of the conversation so far:",
	PostNote:   "The summary ends; the latest exchange follows.",
}

func tenMessageMemory() Memory {
	mem := New(strings.Repeat("p", 20))
	for i := 1; i < 10; i++ {
		role := nlp.RoleUser
		if i%2 == 0 {
			role = nlp.RoleAssistant
		}
		mem = mem.Append(nlp.Message{Role: role, Content: strings.Repeat("m", 20)})
	}
	return mem
}

func TestCompact_NoCompactionUnderBudget(t *testing.T) {
	fc := &fakeCompleter{}
	mem := tenMessageMemory()
	// join = 10*20 content + 9 newlines = 209 tokens; 209 + 40 <= 1000.
	c := NewCompactor(oneToOne, fc, Budget{MaxTokens: 1000, ReplyReserve: 40}, testPrompts)

	res := c.Compact(context.Background(), mem)

	if !res.OK() {
		t.Fatalf("expected success, got %v: %s", res.Status, res.Message)
	}
	if len(res.Messages) != len(mem) {
		t.Errorf("memory should be unchanged, got %d messages", len(res.Messages))
	}
	if res.TokensUsed != 209 {
		t.Errorf("TokensUsed = %d, want estimate of the full memory (209)", res.TokensUsed)
	}
	if fc.calls != 0 {
		t.Errorf("no summarisation call expected, got %d", fc.calls)
	}
}

func TestCompact_SingleSystemMessage(t *testing.T) {
	fc := &fakeCompleter{}
	mem := New("P")
	c := NewCompactor(oneToOne, fc, Budget{MaxTokens: 1_000_000, ReplyReserve: 1000}, testPrompts)

	res := c.Compact(context.Background(), mem)

	if !res.OK() {
		t.Fatalf("expected success: %s", res.Message)
	}
	if len(res.Messages) != 1 || res.Messages[0].Content != "P" {
		t.Errorf("memory should be returned as-is: %v", res.Messages)
	}
	if res.TokensUsed != 1 {
		t.Errorf("TokensUsed = %d, want estimate(\"P\") = 1", res.TokensUsed)
	}
}

func TestCompact_OverBudgetReassembles(t *testing.T) {
	fc := &fakeCompleter{result: nlp.CompletionResult{
		Status: apicall.StatusOK,
		Text:   "they talked about cats",
	}}
	mem := tenMessageMemory()
	// 209 + 40 > 200 → compaction. Compactable span (8 messages incl. the
	// summarisation instruction) = 8*20 + 7 = 167 tokens.
	// Ratio search: 167+30 <= 200 → first ratio (0.75) is feasible.
	c := NewCompactor(oneToOne, fc, Budget{MaxTokens: 200, ReplyReserve: 40}, testPrompts)

	res := c.Compact(context.Background(), mem)

	if !res.OK() {
		t.Fatalf("expected success, got %v: %s", res.Status, res.Message)
	}
	if fc.calls != 1 {
		t.Fatalf("expected exactly one summarisation call, got %d", fc.calls)
	}
	if fc.allowances[0] != 30 {
		t.Errorf("summarisation allowance = %d, want 0.75*40 = 30", fc.allowances[0])
	}

	if len(res.Messages) != 6 {
		t.Fatalf("expected 6-element reassembled memory, got %d", len(res.Messages))
	}
	if res.Messages[0] != mem[0] {
		t.Errorf("persona prompt not preserved: %v", res.Messages[0])
	}
	for i, want := range []string{testPrompts.PreNote, "they talked about cats", testPrompts.PostNote} {
		got := res.Messages[1+i]
		if got.Role != nlp.RoleSystem || got.Content != want {
			t.Errorf("messages[%d] = %+v, want system %q", 1+i, got, want)
		}
	}
	if res.Messages[4] != mem[len(mem)-2] || res.Messages[5] != mem[len(mem)-1] {
		t.Errorf("trailing exchange not preserved verbatim")
	}

	// Cumulative accounting: compactable + summary + reassembled.
	want := 167 + oneToOne.Estimate("they talked about cats") + oneToOne.Estimate(res.Messages.JoinContents())
	if res.TokensUsed != want {
		t.Errorf("TokensUsed = %d, want cumulative %d", res.TokensUsed, want)
	}
}

func TestCompact_AllRatiosInfeasible(t *testing.T) {
	fc := &fakeCompleter{result: nlp.CompletionResult{Status: apicall.StatusOK, Text: "x"}}
	mem := tenMessageMemory()
	// Compactable span is 167 tokens; even 0.25*40 = 10 gives 177 > 150.
	c := NewCompactor(oneToOne, fc, Budget{MaxTokens: 150, ReplyReserve: 40}, testPrompts)

	res := c.Compact(context.Background(), mem)

	if res.Status != apicall.StatusBudget {
		t.Fatalf("expected StatusBudget, got %v: %s", res.Status, res.Message)
	}
	if fc.calls != 0 {
		t.Errorf("completer must not be called when no ratio is feasible, got %d calls", fc.calls)
	}
	if res.Messages != nil {
		t.Errorf("failure result should carry no memory")
	}
}

func TestCompact_CompleterFailurePropagates(t *testing.T) {
	fc := &fakeCompleter{result: nlp.CompletionResult{
		Status:  apicall.StatusTransport,
		Message: "API call failed after 3 attempts: status 503",
	}}
	mem := tenMessageMemory()
	c := NewCompactor(oneToOne, fc, Budget{MaxTokens: 200, ReplyReserve: 40}, testPrompts)

	res := c.Compact(context.Background(), mem)

	if res.Status != apicall.StatusTransport {
		t.Fatalf("expected transport passthrough, got %v", res.Status)
	}
	if res.Message != fc.result.Message {
		t.Errorf("failure message should propagate verbatim, got %q", res.Message)
	}
	if fc.calls != 1 {
		t.Errorf("a call failure must abort compaction, not advance to smaller ratios; got %d calls", fc.calls)
	}
}

func TestCompact_TooShortToCompact(t *testing.T) {
	fc := &fakeCompleter{}
	// Three huge messages: over budget, but nothing between the persona
	// prompt and the trailing exchange to summarise.
	mem := Memory{
		{Role: nlp.RoleSystem, Content: strings.Repeat("p", 100)},
		{Role: nlp.RoleUser, Content: strings.Repeat("u", 100)},
		{Role: nlp.RoleAssistant, Content: strings.Repeat("a", 100)},
	}
	c := NewCompactor(oneToOne, fc, Budget{MaxTokens: 150, ReplyReserve: 40}, testPrompts)

	res := c.Compact(context.Background(), mem)

	if res.Status != apicall.StatusBudget {
		t.Fatalf("expected StatusBudget, got %v", res.Status)
	}
	if fc.calls != 0 {
		t.Errorf("no degenerate summarisation call expected, got %d", fc.calls)
	}
}

func TestMemory_CloneIsIndependent(t *testing.T) {
	mem := New("persona")
	cl := mem.Clone()
	cl[0] = nlp.Message{Role: nlp.RoleSystem, Content: "changed"}
	if mem[0].Content != "persona" {
		t.Error("Clone should not share backing storage")
	}
}

func TestMemory_AppendDoesNotMutate(t *testing.T) {
	mem := New("persona")
	_ = mem.Append(nlp.Message{Role: nlp.RoleUser, Content: "hi"})
	if len(mem) != 1 {
		t.Errorf("Append mutated the receiver: %d messages", len(mem))
	}
}
