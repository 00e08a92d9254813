package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuongbtq/docintel/internal/backend/model"
	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/cuongbtq/docintel/internal/jobtype"
)

// ErrInvalidPayload is returned when a stored payload cannot be decoded
var ErrInvalidPayload = errors.New("invalid job payload")

type step struct {
	phase    string
	progress int
	message  string
}

// pipeline is the scripted run of one job type. Early steps report zero
// progress the way the real backend does before it has an estimate.
type pipeline struct {
	steps  []step
	done   string
	failed string
	result func(job *model.Job) (any, error)
}

var pipelines = map[domain.JobType]pipeline{
	domain.JobTypePdfAnalysis: {
		steps: []step{
			{phase: "uploaded", message: "Document received"},
			{phase: "extracting", message: "Extracting text"},
			{phase: "extracting", message: "Extracting text"},
			{phase: "explaining", progress: 60, message: "Explaining pages"},
			{phase: "explaining", progress: 90, message: "Explaining pages"},
		},
		done:   "completed",
		failed: "error",
		result: pdfResult,
	},
	domain.JobTypeVideoGeneration: {
		steps: []step{
			{phase: "scripting", message: "Writing script"},
			{phase: "scripting", message: "Writing script"},
			{phase: "narrating", progress: 40, message: "Recording narration"},
			{phase: "rendering", progress: 75, message: "Rendering video"},
		},
		done:   "completed",
		failed: "error",
		result: videoResult,
	},
	domain.JobTypeYoutubeAnalysis: {
		steps: []step{
			{phase: "downloading", message: "Fetching video"},
			{phase: "transcribing", message: "Transcribing audio"},
			{phase: "transcribing", progress: 30, message: "Transcribing audio"},
			{phase: "summarizing", progress: 70, message: "Summarizing"},
		},
		done:   "done",
		failed: "failed",
		result: youtubeResult,
	},
	domain.JobTypeChatFollowup: {
		steps: []step{
			{phase: "analyzing", message: "Analyzing document"},
			{phase: "processing", message: "Composing answer"},
			{phase: "processing", progress: 50, message: "Composing answer"},
		},
		done:   "completed",
		failed: "error",
		result: chatResult,
	},
}

func decode[T any](job *model.Job) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(job.Payload), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

func pdfResult(job *model.Job) (any, error) {
	req, err := decode[jobtype.PdfAnalysisRequest](job)
	if err != nil {
		return nil, err
	}

	pages := req.Pages
	if len(pages) == 0 {
		pages = []int{1, 2, 3}
	}
	name := req.FileName
	if name == "" {
		name = req.DocumentID
	}

	res := jobtype.PdfAnalysisResult{}
	for _, p := range pages {
		res.Explanations = append(res.Explanations, jobtype.PageExplanation{
			Page:        p,
			Explanation: fmt.Sprintf("Page %d of %s introduces its main idea and supports it with an example.", p, name),
		})
	}
	return res, nil
}

func videoResult(job *model.Job) (any, error) {
	if _, err := decode[jobtype.VideoGenerationRequest](job); err != nil {
		return nil, err
	}
	return jobtype.VideoResult{
		VideoURL:        fmt.Sprintf("https://media.docintel.local/videos/%s.mp4", job.JobID),
		DurationSeconds: 90,
	}, nil
}

func youtubeResult(job *model.Job) (any, error) {
	req, err := decode[jobtype.YoutubeAnalysisRequest](job)
	if err != nil {
		return nil, err
	}
	return jobtype.YoutubeAnalysisResult{
		Title:   "Analyzed video",
		Summary: fmt.Sprintf("Summary of %s.", req.URL),
		Chapters: []jobtype.Chapter{
			{StartSeconds: 0, Title: "Introduction", Summary: "Sets up the topic."},
			{StartSeconds: 120, Title: "Main points", Summary: "Walks through the key arguments."},
		},
	}, nil
}

// ChatQuery is the payload stored for a deferred chat reply
type ChatQuery struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

func chatResult(job *model.Job) (any, error) {
	req, err := decode[ChatQuery](job)
	if err != nil {
		return nil, err
	}
	return jobtype.ChatAnswer{Data: Answer(req.Query)}, nil
}

// Answer is the canned reply to a chat question
func Answer(query string) string {
	return fmt.Sprintf("Here is what the document says about %q.", strings.TrimSpace(query))
}

// withheld is the result stored when the user could not pay for the job
func withheld() []byte {
	return []byte(`{"lowBalance":true}`)
}
