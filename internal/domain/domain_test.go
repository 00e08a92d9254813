package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhase(t *testing.T) {
	tests := []struct {
		phase    Phase
		terminal bool
		working  bool
	}{
		{phase: PhaseQueued},
		{phase: PhaseUploading},
		{phase: PhaseAnalyzing, working: true},
		{phase: PhaseProcessing, working: true},
		{phase: PhaseCompleted, terminal: true},
		{phase: PhaseError, terminal: true},
		{phase: PhaseNotFound, terminal: true},
		{phase: PhaseLowBalance, terminal: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.phase.IsTerminal())
			assert.Equal(t, tt.working, tt.phase.IsWorking())
			assert.Equal(t, tt.phase, ParsePhase(string(tt.phase)))
		})
	}

	assert.Equal(t, PhaseQueued, ParsePhase(""))
	assert.Equal(t, PhaseProcessing, ParsePhase("rendering"))
}

func TestChatStatus_IsDeferred(t *testing.T) {
	assert.True(t, ChatStatusProcessing.IsDeferred())
	assert.True(t, ChatStatusAnalyzing.IsDeferred())
	assert.False(t, ChatStatusSuccess.IsDeferred())
	assert.False(t, ChatStatusError.IsDeferred())
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		message   string
	}{
		{
			name:      "transport error",
			err:       NewTransportError("poll", errors.New("connection refused")),
			transient: true,
			message:   "transport error during poll: connection refused",
		},
		{
			name:      "wrapped transport error",
			err:       fmt.Errorf("%w: %w", ErrSubmitFailed, NewTransportError("submit", errors.New("eof"))),
			transient: true,
			message:   "failed to submit job: transport error during submit: eof",
		},
		{
			name:    "job failed",
			err:     &JobFailedError{Message: "quota exceeded"},
			message: "quota exceeded",
		},
		{
			name:    "job failed without message",
			err:     &JobFailedError{},
			message: "job failed",
		},
		{
			name:    "validation",
			err:     NewValidationError("url", "not a youtube link"),
			message: "invalid url: not a youtube link",
		},
		{
			name:    "session expired",
			err:     ErrSessionExpired,
			message: "session expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.EqualError(t, tt.err, tt.message)
		})
	}
}
