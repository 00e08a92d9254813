package domain

// JobType identifies which backend pipeline a job runs on.
type JobType string

const (
	JobTypePdfAnalysis     JobType = "pdf_analysis"
	JobTypeVideoGeneration JobType = "video_generation"
	JobTypeYoutubeAnalysis JobType = "youtube_analysis"
	JobTypeChatFollowup    JobType = "chat_followup"
)

// Phase is the lifecycle stage reported for a job.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseUploading  Phase = "uploading"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
	PhaseNotFound   Phase = "not_found"
	PhaseLowBalance Phase = "low_balance"
)

// IsTerminal reports whether no further polls are expected for the phase.
// low_balance is terminal and additionally blocks until the user acts.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseError, PhaseNotFound, PhaseLowBalance:
		return true
	default:
		return false
	}
}

// IsWorking reports whether the backend is actively computing the result.
// Progress is monotonic from the first working phase onward.
func (p Phase) IsWorking() bool {
	return p == PhaseAnalyzing || p == PhaseProcessing
}

// ParsePhase maps a wire value onto a known phase. Unknown values are
// reported as processing so that the job keeps being polled.
func ParsePhase(s string) Phase {
	switch p := Phase(s); p {
	case PhaseQueued, PhaseUploading, PhaseAnalyzing, PhaseProcessing,
		PhaseCompleted, PhaseError, PhaseNotFound, PhaseLowBalance:
		return p
	case "":
		return PhaseQueued
	default:
		return PhaseProcessing
	}
}
