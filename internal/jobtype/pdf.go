package jobtype

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

// PdfAnalysisRequest asks the backend to explain an uploaded document
type PdfAnalysisRequest struct {
	DocumentID string `json:"documentId"`
	FileName   string `json:"fileName,omitempty"`
	Pages      []int  `json:"pages,omitempty"`
	Language   string `json:"language,omitempty"`
}

// PageExplanation is the explanation generated for one page
type PageExplanation struct {
	Page        int    `json:"page"`
	Explanation string `json:"explanation"`
}

// PdfAnalysisResult is the completed payload of a PDF analysis job
type PdfAnalysisResult struct {
	Explanations []PageExplanation `json:"explanations"`
	LowBalance   bool              `json:"lowBalance,omitempty"`
}

// PdfAnalysisSpec polls every second, matching the upload page
var PdfAnalysisSpec = Spec{
	Type:       domain.JobTypePdfAnalysis,
	SubmitPath: "/pdf/analyze",
	StatusPath: "/pdf/analyze/{id}/status",
	Interval:   1000 * time.Millisecond,
	Vocabulary: map[string]domain.Phase{
		"uploaded":   domain.PhaseUploading,
		"extracting": domain.PhaseAnalyzing,
		"explaining": domain.PhaseProcessing,
	},
	Build:   buildPdfAnalysis,
	Extract: extractPdfAnalysis,
}

// PdfAnalysis creates the PDF analysis adapter
func PdfAnalysis(t Transport) *Adapter {
	return New(PdfAnalysisSpec, t)
}

func buildPdfAnalysis(payload any) (any, error) {
	var req PdfAnalysisRequest
	switch p := payload.(type) {
	case PdfAnalysisRequest:
		req = p
	case *PdfAnalysisRequest:
		if p == nil {
			return nil, domain.NewValidationError("payload", "pdf analysis request is required")
		}
		req = *p
	default:
		return nil, domain.NewValidationError("payload", "expected a pdf analysis request")
	}

	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		return nil, domain.NewValidationError("document", "no file selected")
	}
	for _, page := range req.Pages {
		if page < 1 {
			return nil, domain.NewValidationError("pages", "page numbers start at 1")
		}
	}

	return req, nil
}

func extractPdfAnalysis(raw json.RawMessage) (any, bool, error) {
	res, err := decodeResult[PdfAnalysisResult](raw)
	if err != nil {
		return nil, false, err
	}
	return res, res.LowBalance, nil
}
