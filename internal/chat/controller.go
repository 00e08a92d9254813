package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/cuongbtq/docintel/internal/metrics"
	"github.com/cuongbtq/docintel/internal/tracker"
)

// ErrClosed is reported for turns still pending when the controller closes
var ErrClosed = errors.New("chat session closed")

// Querier sends one chat question; jobclient.Client implements it
type Querier interface {
	Query(ctx context.Context, sessionID, query string) (domain.ChatReply, error)
}

// Options holds controller configuration
type Options struct {
	SessionID string
	// Followup polls replies the backend deferred. Without it a deferred
	// reply rolls the turn back.
	Followup tracker.Adapter
	Tracker  tracker.Options
	// Overlap lets a turn's request start before earlier turns settled.
	// By default requests go out one at a time.
	Overlap bool

	// OnChange receives a copy of the message list after every change.
	// Callbacks must not call Close.
	OnChange     func(messages []Message)
	OnError      func(turn *Turn, err error)
	OnLowBalance func()
	Logger       *slog.Logger
}

// Controller owns the message list of one session
type Controller struct {
	querier Querier
	opts    Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	messages  []Message
	turns     []*Turn
	draft     string
	tail      <-chan struct{}
	followers map[*Turn]*tracker.Tracker
	closed    bool
}

// NewController creates a new Controller
func NewController(q Querier, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("session_id", opts.SessionID))
	if opts.Tracker.Logger == nil {
		opts.Tracker.Logger = logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		querier:   q,
		opts:      opts,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		followers: make(map[*Turn]*tracker.Tracker),
	}
}

// Send appends the user message and a pending placeholder, clears the draft
// and sends the question in the background. The returned turn settles when
// the answer arrives or the exchange fails.
func (c *Controller) Send(ctx context.Context, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewValidationError("message", "must not be empty")
	}
	if c.opts.SessionID == "" {
		return nil, domain.NewValidationError("session", "no active session")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	now := time.Now()
	user := Message{ID: uuid.NewString(), Role: RoleUser, Text: text, CreatedAt: now}
	placeholder := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Pending:   true,
		Phase:     domain.PhaseQueued,
		CreatedAt: now,
	}
	c.messages = append(c.messages, user, placeholder)
	c.draft = ""

	turn := newTurn(user, placeholder.ID)
	c.turns = append(c.turns, turn)

	var prev <-chan struct{}
	if !c.opts.Overlap {
		prev = c.tail
		c.tail = turn.done
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.changed(snapshot)

	reqCtx, cancel := context.WithCancel(c.ctx)
	stop := context.AfterFunc(ctx, cancel)
	go func() {
		defer cancel()
		defer stop()
		c.exchange(reqCtx, turn, prev)
	}()

	return turn, nil
}

// Messages returns a copy of the message list
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Turns returns every turn sent so far, oldest first
func (c *Controller) Turns() []*Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.turns)
}

// Draft returns the text currently in the input box
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the text in the input box
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// Close aborts in-flight requests and follow-ups. Pending turns settle as
// rolled back with ErrClosed and the message list is left as it is.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	followers := make([]*tracker.Tracker, 0, len(c.followers))
	for _, tr := range c.followers {
		followers = append(followers, tr)
	}
	clear(c.followers)
	turns := slices.Clone(c.turns)
	c.mu.Unlock()

	c.cancel()
	for _, tr := range followers {
		tr.Cancel()
	}
	for _, turn := range turns {
		turn.settle(OutcomeRolledBack, Message{}, ErrClosed)
	}

	c.logger.Debug("Chat controller closed", slog.Int("follow_ups", len(followers)))
}

func (c *Controller) exchange(ctx context.Context, turn *Turn, prev <-chan struct{}) {
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			c.rollback(turn, ctx.Err())
			return
		}
	}

	reply, err := c.querier.Query(ctx, c.opts.SessionID, turn.user.Text)
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		c.lowBalance(turn)
	case err != nil:
		c.rollback(turn, err)
	case reply.LowBalance:
		c.lowBalance(turn)
	case reply.Status == domain.ChatStatusSuccess:
		c.deliver(turn, reply.Answer)
	case reply.Status.IsDeferred():
		c.follow(turn, reply)
	default:
		c.rollback(turn, &domain.JobFailedError{Message: reply.Message})
	}
}

// follow hands a deferred reply to a tracker polling the chat job
func (c *Controller) follow(turn *Turn, reply domain.ChatReply) {
	if c.opts.Followup == nil || reply.ChatID == "" {
		c.rollback(turn, &domain.JobFailedError{Message: "chat reply deferred without a follow-up id"})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		turn.settle(OutcomeRolledBack, Message{}, ErrClosed)
		return
	}

	c.setProgressLocked(turn, domain.ParsePhase(string(reply.Status)), 0)
	tr := tracker.New(c.opts.Tracker)
	c.followers[turn] = tr

	// The tracker is fresh, so no callback can hold its lock while we hold ours
	tr.Follow(c.opts.Followup, reply.ChatID, tracker.Callbacks{
		OnProgress: func(phase domain.Phase, progress int) {
			c.progress(turn, phase, progress)
		},
		OnCompleted: func(result any) {
			answer, _ := result.(string)
			c.deliver(turn, answer)
		},
		OnError: func(err error) {
			c.rollback(turn, err)
		},
		OnLowBalance: func() {
			c.lowBalance(turn)
		},
	})
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("Chat reply deferred",
		slog.String("turn_id", turn.user.ID),
		slog.String("chat_id", reply.ChatID),
	)
	c.changed(snapshot)
}

func (c *Controller) progress(turn *Turn, phase domain.Phase, progress int) {
	c.mu.Lock()
	if c.closed || !c.setProgressLocked(turn, phase, progress) {
		c.mu.Unlock()
		return
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.changed(snapshot)
}

// deliver replaces the placeholder with the answer, in place
func (c *Controller) deliver(turn *Turn, answer string) {
	final := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Text:      answer,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	if !c.settleLocked(turn, OutcomeDelivered, final, nil) {
		c.mu.Unlock()
		return
	}

	switch i, j := c.indexLocked(turn.placeholderID), c.indexLocked(turn.user.ID); {
	case i >= 0:
		c.messages[i] = final
	case j >= 0:
		c.messages = slices.Insert(c.messages, j+1, final)
	default:
		c.messages = append(c.messages, final)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.settled(turn, OutcomeDelivered, nil)
	c.changed(snapshot)
}

// rollback removes the whole turn and gives its text back to the draft
func (c *Controller) rollback(turn *Turn, err error) {
	c.mu.Lock()
	if !c.settleLocked(turn, OutcomeRolledBack, Message{}, err) {
		c.mu.Unlock()
		return
	}

	c.removeLocked(turn.placeholderID)
	c.removeLocked(turn.user.ID)
	if c.draft == "" {
		c.draft = turn.user.Text
	} else {
		c.draft = turn.user.Text + "\n" + c.draft
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.settled(turn, OutcomeRolledBack, err)
	c.changed(snapshot)
	if c.opts.OnError != nil {
		c.opts.OnError(turn, err)
	}
}

// lowBalance drops the placeholder only; the question stays in the history
func (c *Controller) lowBalance(turn *Turn) {
	c.mu.Lock()
	if !c.settleLocked(turn, OutcomeLowBalance, Message{}, domain.ErrInsufficientBalance) {
		c.mu.Unlock()
		return
	}

	c.removeLocked(turn.placeholderID)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.settled(turn, OutcomeLowBalance, domain.ErrInsufficientBalance)
	c.changed(snapshot)
	if c.opts.OnLowBalance != nil {
		c.opts.OnLowBalance()
	}
}

// settleLocked settles turn unless it already settled or the controller is
// closed, in which case the message list must not change
func (c *Controller) settleLocked(turn *Turn, outcome Outcome, final Message, err error) bool {
	delete(c.followers, turn)
	if c.closed {
		turn.settle(OutcomeRolledBack, Message{}, ErrClosed)
		return false
	}
	return turn.settle(outcome, final, err)
}

func (c *Controller) settled(turn *Turn, outcome Outcome, err error) {
	metrics.IncChatTurn(string(outcome))

	attrs := []any{
		slog.String("turn_id", turn.user.ID),
		slog.String("outcome", string(outcome)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		c.logger.Warn("Chat turn settled", attrs...)
		return
	}
	c.logger.Info("Chat turn settled", attrs...)
}

func (c *Controller) setProgressLocked(turn *Turn, phase domain.Phase, progress int) bool {
	i := c.indexLocked(turn.placeholderID)
	if i < 0 {
		return false
	}
	c.messages[i].Phase = phase
	c.messages[i].Progress = progress
	c.messages[i].Text = fmt.Sprintf("%s (%d%%)", phase, progress)
	return true
}

func (c *Controller) indexLocked(id string) int {
	return slices.IndexFunc(c.messages, func(m Message) bool { return m.ID == id })
}

func (c *Controller) removeLocked(id string) {
	if i := c.indexLocked(id); i >= 0 {
		c.messages = slices.Delete(c.messages, i, i+1)
	}
}

func (c *Controller) snapshotLocked() []Message {
	return slices.Clone(c.messages)
}

func (c *Controller) changed(messages []Message) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(messages)
	}
}
