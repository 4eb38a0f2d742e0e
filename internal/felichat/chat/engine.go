// Package chat orchestrates one conversation turn: sanitise the user's
// message, fit the conversation memory into the token budget, obtain the
// model's reply, derive and render an illustration, and hand back the new
// memory and display log for the session to commit.
//
// A turn commits atomically: every failure before the reply is obtained
// returns the failure envelope with no new state, so the caller's memory and
// log are exactly as they were and the user can simply retry.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felichat/felichat/common/trace"
	"github.com/felichat/felichat/internal/felichat/apicall"
	"github.com/felichat/felichat/internal/felichat/image"
	"github.com/felichat/felichat/internal/felichat/memory"
	"github.com/felichat/felichat/internal/felichat/nlp"
	"github.com/felichat/felichat/internal/felichat/store"
)

// Compacter fits a memory into the token budget.  *memory.Compactor
// satisfies it.
type Compacter interface {
	Compact(ctx context.Context, mem memory.Memory) memory.CompactResult
}

// Generator renders an image prompt.  *image.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) image.GenerateResult
}

// Recorder appends turn accounting rows.  *store.Store satisfies it.
type Recorder interface {
	RecordTurn(ctx context.Context, u store.TurnUsage) error
}

// TurnInput is everything a single turn needs from the session layer.
type TurnInput struct {
	SessionID string
	// Seq is the 1-based turn number within the session.
	Seq int
	// Memory and Log are the session's pre-turn state; the engine never
	// mutates them, it returns replacements in TurnResult.
	Memory memory.Memory
	Log    []string
	// UserText is the raw user message.
	UserText string
}

// TurnResult is the envelope-shaped outcome of one turn.  Memory, Log and
// Reply are populated only when Status is apicall.StatusOK.
type TurnResult struct {
	Status  apicall.Status
	Message string

	Memory memory.Memory
	Log    []string

	// Reply is the model's spoken reply text.
	Reply string
	// ImageB64 is the base64 PNG of the illustration; empty when image
	// generation is disabled, filtered or failed.
	ImageB64 string
	// ImagePrompt is the prompt the illustration was (or would have been)
	// rendered from.
	ImagePrompt string
	// Warning carries non-fatal degradation notices, e.g. a failed or
	// filtered image on an otherwise successful turn.
	Warning string
	// TokensUsed is the cumulative token estimate consumed by memory
	// fitting this turn.
	TokensUsed int
	// Compacted reports whether the turn triggered memory compaction.
	Compacted bool
}

// OK reports whether the turn succeeded.
func (r TurnResult) OK() bool {
	return r.Status == apicall.StatusOK
}

// Engine runs conversation turns.  Safe for concurrent use; per-session
// serialisation is the session layer's job.
type Engine struct {
	compacter Compacter
	completer memory.Completer
	parser    image.ReplyParser
	generator Generator // nil disables image generation
	recorder  Recorder  // nil disables the usage ledger
}

// NewEngine creates an Engine.  generator and recorder may be nil.
func NewEngine(compacter Compacter, completer memory.Completer, parser image.ReplyParser, generator Generator, recorder Recorder) *Engine {
	return &Engine{
		compacter: compacter,
		completer: completer,
		parser:    parser,
		generator: generator,
		recorder:  recorder,
	}
}

// sanitizer neutralises HTML angle brackets in user input before it enters
// the log or the prompt.
var sanitizer = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// ProcessTurn runs one turn end to end and returns the new session state.
func (e *Engine) ProcessTurn(ctx context.Context, in TurnInput) TurnResult {
	turnID := trace.GenerateID()
	ctx = trace.WithTurnID(ctx, turnID)
	log := slog.With("turn_id", turnID, "session_id", in.SessionID)

	userText := strings.TrimSpace(sanitizer.Replace(in.UserText))
	if userText == "" {
		return TurnResult{
			Status:  apicall.StatusMalformed,
			Message: "empty message",
		}
	}

	candidate := in.Memory.Append(nlp.Message{Role: nlp.RoleUser, Content: userText})

	compacted := e.compacter.Compact(ctx, candidate)
	if !compacted.OK() {
		log.Warn("turn failed during memory fitting", "status", compacted.Status.String(), "error", compacted.Message)
		e.record(ctx, in, compacted.Status, false, 0)
		return TurnResult{Status: compacted.Status, Message: compacted.Message}
	}

	completion := e.completer.Complete(ctx, compacted.Messages, 0)
	if !completion.OK() {
		log.Warn("turn failed during completion", "status", completion.Status.String(), "error", completion.Message)
		e.record(ctx, in, completion.Status, compacted.Compacted, compacted.TokensUsed)
		return TurnResult{Status: completion.Status, Message: completion.Message}
	}

	parsed := e.parser.Parse(completion.Text)

	var imageB64, warning string
	if e.generator != nil {
		gen := e.generator.Generate(ctx, parsed.ImagePrompt)
		switch {
		case !gen.OK():
			warning = fmt.Sprintf("image generation failed: %s", gen.Message)
			log.Warn("image generation failed", "status", gen.Status.String(), "error", gen.Message)
		case gen.Filtered:
			warning = "image withheld by content filter"
		default:
			imageB64 = gen.ImageB64
		}
	}

	newMemory := compacted.Messages.Append(nlp.Message{Role: nlp.RoleAssistant, Content: parsed.ReplyText})
	newLog := append(append([]string{}, in.Log...), "Human: "+userText, "AI: "+parsed.ReplyText)

	log.Info("turn completed",
		"compacted", compacted.Compacted,
		"tokens_used", compacted.TokensUsed,
		"image", imageB64 != "",
	)
	e.record(ctx, in, apicall.StatusOK, compacted.Compacted, compacted.TokensUsed)

	return TurnResult{
		Status:      apicall.StatusOK,
		Message:     "success",
		Memory:      newMemory,
		Log:         newLog,
		Reply:       parsed.ReplyText,
		ImageB64:    imageB64,
		ImagePrompt: parsed.ImagePrompt,
		Warning:     warning,
		TokensUsed:  compacted.TokensUsed,
		Compacted:   compacted.Compacted,
	}
}

// record appends a ledger row.  Ledger failures are logged, never surfaced:
// accounting must not break the conversation.
func (e *Engine) record(ctx context.Context, in TurnInput, status apicall.Status, compacted bool, tokens int) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.RecordTurn(ctx, store.TurnUsage{
		SessionID:  in.SessionID,
		Seq:        in.Seq,
		Status:     status.String(),
		Compacted:  compacted,
		TokensUsed: tokens,
	})
	if err != nil {
		slog.Warn("usage ledger write failed",
			"turn_id", trace.FromContext(ctx), "session_id", in.SessionID, "error", err)
	}
}
