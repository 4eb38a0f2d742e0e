// Package memory implements FeliChat's conversation memory and its
// compaction policy.  Memory is the message sequence actually sent to the
// chat model, bounded by the model's context window; the display log is a
// separate, unbounded concern owned by the session package.
//
// Compaction never touches the leading system persona prompt (identity-
// defining) nor the most recent user/assistant exchange (needed for
// immediate coherence).  Only the middle of the conversation is
// compressible, and compression is itself a chat-completion call subject to
// the same token-budget discipline via a descending reply-allowance search.
package memory

import (
	"strings"

	"github.com/felichat/felichat/internal/felichat/nlp"
)

// Memory is an ordered conversation message sequence.  Index 0 is always
// the original system persona prompt; the trailing two entries, when
// present, are the most recent exchange and are preserved verbatim by
// compaction.
type Memory []nlp.Message

// Clone returns an independent copy of the memory.  Messages are value
// types, so copying the slice is a deep copy.
func (m Memory) Clone() Memory {
	if m == nil {
		return nil
	}
	out := make(Memory, len(m))
	copy(out, m)
	return out
}

// Append returns a new memory with msg added; the receiver is unchanged.
func (m Memory) Append(msg nlp.Message) Memory {
	out := make(Memory, 0, len(m)+1)
	out = append(out, m...)
	return append(out, msg)
}

// JoinContents concatenates all message contents with newlines, the form
// used for token estimation.
func (m Memory) JoinContents() string {
	parts := make([]string, len(m))
	for i, msg := range m {
		parts[i] = msg.Content
	}
	return strings.Join(parts, "\n")
}

// New creates a fresh memory seeded with the system persona prompt.
func New(personaPrompt string) Memory {
	return Memory{{Role: nlp.RoleSystem, Content: personaPrompt}}
}
