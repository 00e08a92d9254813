package jobtype

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

var youtubeHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"m.youtube.com":   true,
	"youtu.be":        true,
}

// YoutubeAnalysisRequest asks for an analysis of a YouTube video
type YoutubeAnalysisRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

// Chapter is one section of an analyzed video
type Chapter struct {
	StartSeconds float64 `json:"start"`
	Title        string  `json:"title"`
	Summary      string  `json:"summary"`
}

// YoutubeAnalysisResult is the completed payload of a YouTube analysis job
type YoutubeAnalysisResult struct {
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Chapters   []Chapter `json:"chapters,omitempty"`
	LowBalance bool      `json:"lowBalance,omitempty"`
}

// YoutubeAnalysisSpec uses the progress route, which answers
// status "not_found" for unknown ids instead of a bare 404
var YoutubeAnalysisSpec = Spec{
	Type:       domain.JobTypeYoutubeAnalysis,
	SubmitPath: "/youtube/analyze",
	StatusPath: "/youtube/progress/{id}",
	Interval:   2000 * time.Millisecond,
	Vocabulary: map[string]domain.Phase{
		"downloading":  domain.PhaseUploading,
		"transcribing": domain.PhaseAnalyzing,
		"summarizing":  domain.PhaseProcessing,
		"done":         domain.PhaseCompleted,
		"failed":       domain.PhaseError,
	},
	Build:   buildYoutubeAnalysis,
	Extract: extractYoutube,
}

// YoutubeAnalysis creates the YouTube analysis adapter
func YoutubeAnalysis(t Transport) *Adapter {
	return New(YoutubeAnalysisSpec, t)
}

func buildYoutubeAnalysis(payload any) (any, error) {
	var req YoutubeAnalysisRequest
	switch p := payload.(type) {
	case YoutubeAnalysisRequest:
		req = p
	case *YoutubeAnalysisRequest:
		if p == nil {
			return nil, domain.NewValidationError("payload", "youtube analysis request is required")
		}
		req = *p
	case string:
		req = YoutubeAnalysisRequest{URL: p}
	default:
		return nil, domain.NewValidationError("payload", "expected a youtube analysis request")
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, domain.NewValidationError("url", "a youtube link is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, domain.NewValidationError("url", "not a valid link")
	}
	if !youtubeHosts[strings.ToLower(u.Hostname())] {
		return nil, domain.NewValidationError("url", "not a youtube link")
	}

	return req, nil
}

func extractYoutube(raw json.RawMessage) (any, bool, error) {
	res, err := decodeResult[YoutubeAnalysisResult](raw)
	if err != nil {
		return nil, false, err
	}
	return res, res.LowBalance, nil
}
