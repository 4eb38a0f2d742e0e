package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felichat/felichat/internal/felichat/apicall"
	"github.com/felichat/felichat/internal/felichat/nlp"
	"github.com/felichat/felichat/internal/felichat/tokenizer"
)

// compactionRatios are the candidate reply-token allowances tried in
// descending order when summarising the compactable span.  Each ratio is a
// fraction of the configured reply reserve.
var compactionRatios = [...]float64{0.75, 0.5, 0.25}

// headTailKeep is the number of messages compaction always preserves: the
// leading persona prompt plus the trailing user/assistant exchange.
const headTailKeep = 3

// Budget holds the token quantities compaction decisions are made against.
type Budget struct {
	// MaxTokens is the hard ceiling of the model's context window.
	MaxTokens int
	// ReplyReserve is the token allowance reserved for the next reply.
	ReplyReserve int
}

// Prompts holds the summarisation prompt texts.
type Prompts struct {
	// PreSummary is the one-off system instruction appended to the
	// compactable span, asking the model to summarise it.
	PreSummary string
	// PreNote introduces the summary in the rebuilt memory.
	PreNote string
	// PostNote closes the summary and reintroduces the recent exchange.
	PostNote string
}

// Completer is the slice of the chat-completion client compaction needs.
// *nlp.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, messages []nlp.Message, maxReplyTokens int) nlp.CompletionResult
}

// CompactResult is the envelope-shaped outcome of one compaction pass.
// Messages and TokensUsed are populated only when Status is apicall.StatusOK.
type CompactResult struct {
	Status  apicall.Status
	Message string
	// Messages is the memory guaranteed to fit the budget: either the input
	// unchanged (no compaction needed) or the reassembled sequence.
	Messages Memory
	// Compacted reports whether a summarisation actually ran.
	Compacted bool
	// TokensUsed is cumulative accounting of estimation work done this
	// pass — the compactable span, the summary, and the reassembled
	// sequence — not just the final footprint.
	TokensUsed int
}

// OK reports whether compaction succeeded.
func (r CompactResult) OK() bool {
	return r.Status == apicall.StatusOK
}

// Compactor decides each turn whether conversation memory fits the model's
// context window and, when it does not, compresses the middle of the
// conversation through a summarisation call.
type Compactor struct {
	est       tokenizer.Estimator
	completer Completer
	budget    Budget
	prompts   Prompts
}

// NewCompactor creates a Compactor.  est and completer must be non-nil.
func NewCompactor(est tokenizer.Estimator, completer Completer, budget Budget, prompts Prompts) *Compactor {
	return &Compactor{
		est:       est,
		completer: completer,
		budget:    budget,
		prompts:   prompts,
	}
}

// Compact returns a memory guaranteed to satisfy
//
//	estimate(memory) + ReplyReserve <= MaxTokens
//
// or a failure envelope when that cannot be achieved.  When the input
// already fits, it is returned unchanged.  Otherwise the compactable span
// memory[1:len-2] is summarised — via at most ONE completion call — and the
// memory is reassembled as
//
//	[persona, pre-note, summary, post-note] + last two messages.
//
// The reply allowance for the summarisation call is searched in descending
// ratios of the reply reserve; only token-budget infeasibility advances to
// the next ratio.  A completion failure aborts compaction immediately and
// propagates verbatim, so the caller can retry the turn with memory intact.
func (c *Compactor) Compact(ctx context.Context, mem Memory) CompactResult {
	memoryTokens := c.est.Estimate(mem.JoinContents())
	if memoryTokens+c.budget.ReplyReserve <= c.budget.MaxTokens {
		return CompactResult{
			Status:     apicall.StatusOK,
			Message:    "success",
			Messages:   mem,
			TokensUsed: memoryTokens,
		}
	}

	// Compaction required.  A memory too short to have a middle span cannot
	// be trimmed: the persona prompt and the trailing exchange are
	// untouchable, so this is terminal rather than a degenerate
	// summarisation call on an empty span.
	if len(mem) <= headTailKeep {
		return CompactResult{
			Status: apicall.StatusBudget,
			Message: fmt.Sprintf(
				"conversation memory (%d tokens, %d messages) exceeds the context budget but is too short to compact",
				memoryTokens, len(mem)),
		}
	}

	// The compactable span plus the one-off summarisation instruction is
	// what actually goes on the wire, so it is what gets estimated.
	compactable := make([]nlp.Message, 0, len(mem)-headTailKeep+1)
	compactable = append(compactable, mem[1:len(mem)-2]...)
	compactable = append(compactable, nlp.Message{Role: nlp.RoleSystem, Content: c.prompts.PreSummary})

	compactableTokens := c.est.Estimate(Memory(compactable).JoinContents())
	tokensUsed := compactableTokens

	for _, ratio := range compactionRatios {
		allowance := int(float64(c.budget.ReplyReserve) * ratio)
		if compactableTokens+allowance > c.budget.MaxTokens {
			continue
		}

		slog.Debug("memory: compaction triggered",
			"memory_tokens", memoryTokens,
			"compactable_tokens", compactableTokens,
			"reply_allowance", allowance,
		)

		res := c.completer.Complete(ctx, compactable, allowance)
		if !res.OK() {
			// Call failures propagate immediately; a smaller allowance
			// would not help a transport or payload problem.
			return CompactResult{Status: res.Status, Message: res.Message}
		}

		summary := res.Text
		tokensUsed += c.est.Estimate(summary)

		rebuilt := Memory{
			mem[0],
			{Role: nlp.RoleSystem, Content: c.prompts.PreNote},
			{Role: nlp.RoleSystem, Content: summary},
			{Role: nlp.RoleSystem, Content: c.prompts.PostNote},
			mem[len(mem)-2],
			mem[len(mem)-1],
		}
		tokensUsed += c.est.Estimate(rebuilt.JoinContents())

		return CompactResult{
			Status:     apicall.StatusOK,
			Message:    "success",
			Messages:   rebuilt,
			Compacted:  true,
			TokensUsed: tokensUsed,
		}
	}

	return CompactResult{
		Status: apicall.StatusBudget,
		Message: fmt.Sprintf(
			"compaction required but even the smallest reply allowance cannot fit the compactable span (%d tokens) into the context window (%d tokens)",
			compactableTokens, c.budget.MaxTokens),
	}
}
