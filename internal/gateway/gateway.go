package gateway

import (
	"context"
	"errors"
	"fmt"

	"assistant-backend/internal/core"
)

// ErrUnavailable indicates the inference backend could not be reached or did
// not answer within the deadline.
var ErrUnavailable = errors.New("model backend unavailable")

// BackendError is a failure reported by the backend itself.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("model backend error: %s", e.Message)
}

// Gateway is the single typed contract the core depends on; response-shape
// variance of any particular backend is the adapter's problem.
type Gateway interface {
	// Generate produces the full reply for a prompt.
	Generate(ctx context.Context, prompt core.Prompt) (string, error)

	// GenerateStream streams reply fragments through onDelta. The returned
	// string is the text accumulated so far, valid even when err is non-nil,
	// so a partial reply survives client disconnect.
	GenerateStream(ctx context.Context, prompt core.Prompt, onDelta func(delta string) error) (string, error)

	// SummarizeTitle produces a short cleaned-up title for a conversation.
	SummarizeTitle(ctx context.Context, turns []core.Turn) (string, error)
}
