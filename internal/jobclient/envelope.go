package jobclient

import (
	"encoding/json"
	"math"

	"github.com/cuongbtq/docintel/internal/domain"
)

// Envelope statuses observed on the wire
const (
	statusSuccess    = "success"
	statusError      = "error"
	statusNotFound   = "not_found"
	statusLowBalance = "low_balance"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type jobData struct {
	JobID      string          `json:"jobId"`
	Phase      string          `json:"phase"`
	Progress   float64         `json:"progress"`
	Message    string          `json:"message"`
	Result     json.RawMessage `json:"result,omitempty"`
	LowBalance bool            `json:"lowBalance"`
}

type chatData struct {
	Data       string `json:"data"`
	ChatID     string `json:"chat_id"`
	Message    string `json:"message"`
	LowBalance bool   `json:"lowBalance"`
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

// snapshot converts a decoded envelope into a status observation
func (e *envelope) snapshot() (domain.Snapshot, error) {
	var data jobData
	if len(e.Data) > 0 && string(e.Data) != "null" {
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return domain.Snapshot{}, err
		}
	}

	snap := domain.Snapshot{
		JobID:      data.JobID,
		Phase:      domain.Phase(data.Phase),
		Progress:   int(math.Round(data.Progress)),
		Message:    data.Message,
		Result:     data.Result,
		LowBalance: data.LowBalance,
	}
	if snap.Message == "" {
		snap.Message = e.reason()
	}

	switch e.Status {
	case statusError:
		snap.Phase = domain.PhaseError
	case statusNotFound:
		snap.Phase = domain.PhaseNotFound
	case statusLowBalance:
		snap.Phase = domain.PhaseLowBalance
		snap.LowBalance = true
	}

	return snap, nil
}

// reason returns the human-readable message carried by the envelope
func (e *envelope) reason() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
