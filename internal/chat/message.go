// Package chat manages the message list of one chat session with optimistic
// insertion: a user message and a pending placeholder appear immediately and
// are later replaced by the answer or rolled back.
package chat

import (
	"sync"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

// Role is the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation
type Message struct {
	ID        string
	Role      Role
	Text      string
	Pending   bool
	Phase     domain.Phase
	Progress  int
	CreatedAt time.Time
}

// Outcome is the state of a turn
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeDelivered  Outcome = "delivered"
	OutcomeRolledBack Outcome = "rolled_back"
	// OutcomeLowBalance keeps the user message but drops the placeholder
	OutcomeLowBalance Outcome = "low_balance"
)

// Turn is one user/assistant exchange. It settles exactly once.
type Turn struct {
	user          Message
	placeholderID string
	done          chan struct{}

	mu      sync.Mutex
	outcome Outcome
	final   Message
	err     error
}

func newTurn(user Message, placeholderID string) *Turn {
	return &Turn{
		user:          user,
		placeholderID: placeholderID,
		done:          make(chan struct{}),
		outcome:       OutcomePending,
	}
}

// UserMessage returns the message the user sent
func (t *Turn) UserMessage() Message { return t.user }

// PlaceholderID returns the id of the pending entry shown while waiting
func (t *Turn) PlaceholderID() string { return t.placeholderID }

// Done is closed once the turn has settled
func (t *Turn) Done() <-chan struct{} { return t.done }

// Outcome returns the current outcome
func (t *Turn) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Final returns the assistant message of a delivered turn
func (t *Turn) Final() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.final, t.outcome == OutcomeDelivered
}

// Err returns the error that rolled the turn back, if any
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// settle records the outcome and reports false if the turn had already settled
func (t *Turn) settle(outcome Outcome, final Message, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outcome != OutcomePending {
		return false
	}
	t.outcome = outcome
	t.final = final
	t.err = err
	close(t.done)
	return true
}
