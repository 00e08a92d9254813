package domain

// ChatStatus is the top-level status of a chat query reply.
type ChatStatus string

const (
	ChatStatusSuccess    ChatStatus = "success"
	ChatStatusError      ChatStatus = "error"
	ChatStatusProcessing ChatStatus = "processing"
	ChatStatusAnalyzing  ChatStatus = "analyzing"
)

// IsDeferred reports whether the answer will arrive through a follow-up job.
func (s ChatStatus) IsDeferred() bool {
	return s == ChatStatusProcessing || s == ChatStatusAnalyzing
}

// ChatReply is the decoded response of a chat query.
type ChatReply struct {
	Status     ChatStatus
	Answer     string
	ChatID     string
	Message    string
	LowBalance bool
}
