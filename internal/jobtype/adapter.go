// Package jobtype describes each backend job type as data and binds it to a
// transport so the tracker can drive it.
package jobtype

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

// ErrPollOnly is returned by Submit on job types that are never submitted
// directly, such as chat follow-ups.
var ErrPollOnly = errors.New("job type cannot be submitted directly")

// Transport is the subset of jobclient.Client the adapters need
type Transport interface {
	Submit(ctx context.Context, path string, body any) (domain.Snapshot, error)
	Status(ctx context.Context, path string) (domain.Snapshot, error)
}

// Spec is the configuration of one job type
type Spec struct {
	Type       domain.JobType
	SubmitPath string
	// StatusPath contains the literal "{id}" where the job id goes
	StatusPath string
	Interval   time.Duration
	// Vocabulary maps backend-specific phase names onto Phase values
	Vocabulary map[string]domain.Phase
	// Build validates a caller payload and returns the request body
	Build func(payload any) (any, error)
	// Extract decodes a completed result; lowBalance reports a result that
	// cannot be released because the user is out of credits
	Extract func(raw json.RawMessage) (value any, lowBalance bool, err error)
}

// Adapter binds a Spec to a Transport
type Adapter struct {
	spec      Spec
	transport Transport
}

// New creates a new Adapter
func New(spec Spec, transport Transport) *Adapter {
	return &Adapter{spec: spec, transport: transport}
}

// Type returns the job type
func (a *Adapter) Type() domain.JobType {
	return a.spec.Type
}

// Interval returns the delay between polls
func (a *Adapter) Interval() time.Duration {
	return a.spec.Interval
}

// Submit validates payload, posts it and returns the backend job id
func (a *Adapter) Submit(ctx context.Context, payload any) (string, error) {
	if a.spec.SubmitPath == "" {
		return "", ErrPollOnly
	}

	body := payload
	if a.spec.Build != nil {
		var err error
		body, err = a.spec.Build(payload)
		if err != nil {
			return "", err
		}
	}

	snap, err := a.transport.Submit(ctx, a.spec.SubmitPath, body)
	if err != nil {
		return "", err
	}
	return snap.JobID, nil
}

// Poll fetches the job status and normalizes it: the phase is mapped through
// the vocabulary, and a completed result is decoded into Snapshot.Value.
func (a *Adapter) Poll(ctx context.Context, jobID string) (domain.Snapshot, error) {
	if jobID == "" {
		return domain.Snapshot{}, domain.NewValidationError("job id", "must not be empty")
	}

	snap, err := a.transport.Status(ctx, a.StatusPath(jobID))
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap.JobID = jobID
	snap.Phase = a.normalize(snap.Phase)

	if snap.Phase == domain.PhaseCompleted && a.spec.Extract != nil {
		value, lowBalance, err := a.spec.Extract(snap.Result)
		if err != nil {
			return domain.Snapshot{
				JobID:   jobID,
				Phase:   domain.PhaseError,
				Message: fmt.Sprintf("malformed %s result: %v", a.spec.Type, err),
			}, nil
		}
		snap.Value = value
		snap.LowBalance = snap.LowBalance || lowBalance
	}

	return snap, nil
}

// StatusPath returns the status path for jobID
func (a *Adapter) StatusPath(jobID string) string {
	return strings.ReplaceAll(a.spec.StatusPath, "{id}", jobID)
}

func (a *Adapter) normalize(p domain.Phase) domain.Phase {
	if mapped, ok := a.spec.Vocabulary[strings.ToLower(string(p))]; ok {
		return mapped
	}
	return domain.ParsePhase(strings.ToLower(string(p)))
}

// decodeResult unmarshals raw into a new T, rejecting an empty result
func decodeResult[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return out, errors.New("result is empty")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// WithInterval returns a copy of s polling every d. Non-positive d keeps the
// built-in interval.
func (s Spec) WithInterval(d time.Duration) Spec {
	if d > 0 {
		s.Interval = d
	}
	return s
}
