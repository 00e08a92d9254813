package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/backend/storage"
)

// DecodeJobCursor parses an opaque page cursor. An empty string is the
// first page.
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	createdAt, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	nanos, err := strconv.ParseInt(createdAt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		JobID:     jobID,
	}, nil
}

func EncodeJobCursor(cursor *storage.JobCursor) string {
	cs := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + "|" + cursor.JobID
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
