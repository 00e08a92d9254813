package jobtype

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

// ChatAnswer is the completed payload of a deferred chat reply
type ChatAnswer struct {
	Data       string `json:"data"`
	LowBalance bool   `json:"lowBalance,omitempty"`
}

// ChatFollowupSpec polls a chat reply the backend deferred while it was still
// analyzing the document. It has no submit path.
var ChatFollowupSpec = Spec{
	Type:       domain.JobTypeChatFollowup,
	StatusPath: "/chat/{id}/status",
	Interval:   2000 * time.Millisecond,
	Extract:    extractChatAnswer,
}

// ChatFollowup creates the chat follow-up adapter
func ChatFollowup(t Transport) *Adapter {
	return New(ChatFollowupSpec, t)
}

func extractChatAnswer(raw json.RawMessage) (any, bool, error) {
	res, err := decodeResult[ChatAnswer](raw)
	if err != nil {
		return nil, false, err
	}
	return res.Data, res.LowBalance, nil
}
