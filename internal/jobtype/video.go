package jobtype

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

// VideoGenerationRequest asks for a narrated video of a document
type VideoGenerationRequest struct {
	DocumentID string `json:"documentId"`
	Voice      string `json:"voice,omitempty"`
	Language   string `json:"language,omitempty"`
}

// VideoResult is the completed payload of a video generation job
type VideoResult struct {
	VideoURL        string  `json:"videoUrl"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	LowBalance      bool    `json:"lowBalance,omitempty"`
}

var VideoGenerationSpec = Spec{
	Type:       domain.JobTypeVideoGeneration,
	SubmitPath: "/video/generate",
	StatusPath: "/video/{id}/status",
	Interval:   2000 * time.Millisecond,
	Vocabulary: map[string]domain.Phase{
		"scripting": domain.PhaseProcessing,
		"narrating": domain.PhaseProcessing,
		"rendering": domain.PhaseProcessing,
	},
	Build:   buildVideoGeneration,
	Extract: extractVideo,
}

// VideoGeneration creates the video generation adapter
func VideoGeneration(t Transport) *Adapter {
	return New(VideoGenerationSpec, t)
}

func buildVideoGeneration(payload any) (any, error) {
	var req VideoGenerationRequest
	switch p := payload.(type) {
	case VideoGenerationRequest:
		req = p
	case *VideoGenerationRequest:
		if p == nil {
			return nil, domain.NewValidationError("payload", "video generation request is required")
		}
		req = *p
	default:
		return nil, domain.NewValidationError("payload", "expected a video generation request")
	}

	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		return nil, domain.NewValidationError("document", "no document to narrate")
	}

	return req, nil
}

func extractVideo(raw json.RawMessage) (any, bool, error) {
	res, err := decodeResult[VideoResult](raw)
	if err != nil {
		return nil, false, err
	}
	// A low-balance result may withhold the URL
	if res.VideoURL == "" && !res.LowBalance {
		return nil, false, errors.New("video url missing")
	}
	return res, res.LowBalance, nil
}
