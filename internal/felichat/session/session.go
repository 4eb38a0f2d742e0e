// Package session tracks the live chat sessions of the relay.  Each session
// owns two views of its conversation: the model-facing memory, bounded by the
// context window and subject to compaction, and the human-facing display log,
// which grows without bound and is never compacted.
package session

import (
	"sync"
	"time"

	"github.com/felichat/felichat/internal/felichat/memory"
)

// Session is one user's conversation with the relay.  Turns within a session
// are serialised: BeginTurn blocks until any in-flight turn completes, so
// memory and log always advance atomically per turn.
type Session struct {
	// ID is the session's UUID, assigned at creation.
	ID string
	// StartedAt is when the session was created.
	StartedAt time.Time

	mu         sync.Mutex
	mem        memory.Memory
	log        []string
	lastTurnAt time.Time
	turns      int
}

func newSession(id, personaPrompt string, now time.Time) *Session {
	return &Session{
		ID:         id,
		StartedAt:  now,
		mem:        memory.New(personaPrompt),
		log:        []string{personaPrompt},
		lastTurnAt: now,
	}
}

// BeginTurn acquires the session's turn lock.  The caller must pair it with
// EndTurn, normally via defer.
func (s *Session) BeginTurn() {
	s.mu.Lock()
}

// EndTurn releases the turn lock.
func (s *Session) EndTurn() {
	s.mu.Unlock()
}

// State returns independent copies of the session's memory and display log.
// Must be called between BeginTurn and EndTurn.  The caller mutates the
// copies freely and hands the final versions back through Commit; a failed
// turn simply never commits, leaving the session untouched.
func (s *Session) State() (memory.Memory, []string) {
	log := make([]string, len(s.log))
	copy(log, s.log)
	return s.mem.Clone(), log
}

// Commit replaces the session's memory and log with the turn's outcome and
// marks the session active.  Must be called between BeginTurn and EndTurn.
func (s *Session) Commit(mem memory.Memory, log []string) {
	s.commitAt(mem, log, time.Now())
}

func (s *Session) commitAt(mem memory.Memory, log []string, now time.Time) {
	s.mem = mem
	s.log = log
	s.lastTurnAt = now
	s.turns++
}

// Seq returns the 1-based number of the turn currently in flight.  Must be
// called between BeginTurn and EndTurn.
func (s *Session) Seq() int {
	return s.turns + 1
}

// Turns returns the number of committed turns.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}
