package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/cuongbtq/docintel/internal/jobtype"
)

func TestPayload(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		args     []string
		expected any
		wantErr  bool
	}{
		{
			name:     "pdf with pages",
			kind:     "pdf",
			args:     []string{"doc-1", "2", "5"},
			expected: jobtype.PdfAnalysisRequest{DocumentID: "doc-1", Pages: []int{2, 5}},
		},
		{
			name:    "pdf bad page",
			kind:    "pdf",
			args:    []string{"doc-1", "two"},
			wantErr: true,
		},
		{
			name:     "video with voice",
			kind:     "video",
			args:     []string{"doc-2", "alloy"},
			expected: jobtype.VideoGenerationRequest{DocumentID: "doc-2", Voice: "alloy"},
		},
		{
			name:     "youtube url",
			kind:     "youtube",
			args:     []string{"https://youtu.be/abc"},
			expected: "https://youtu.be/abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payload(tt.kind, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDescribe(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "low balance", err: fmt.Errorf("submit: %w", domain.ErrInsufficientBalance), contains: "insufficient credits"},
		{name: "session expired", err: domain.ErrSessionExpired, contains: "sign in again"},
		{name: "timed out", err: domain.ErrTimedOut, contains: "lost contact"},
		{name: "job failed", err: &domain.JobFailedError{Message: "quota exceeded"}, contains: "job failed: quota exceeded"},
		{name: "other", err: plain, contains: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, describe(tt.err).Error(), tt.contains)
		})
	}

	assert.NoError(t, describe(nil))
}
