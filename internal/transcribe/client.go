// Package transcribe wraps the external transcription vendor behind a thin
// upload + poll adapter. Retry policy lives in the lifecycle manager, not
// here.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/alotth/audio-transcriber/internal/format"
)

// Vendor job states as reported by PollStatus.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ErrUnavailable is returned when the vendor cannot be reached at all
// (network failure, malformed response).
var ErrUnavailable = errors.New("transcribe: vendor unavailable")

// RejectedError is returned when the vendor answered with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transcribe: vendor rejected request: status %d: %s", e.StatusCode, e.Body)
}

// JobStatus is one poll result. Text and Utterances are populated only when
// Status is StatusCompleted; ErrorMessage only when Status is StatusError.
type JobStatus struct {
	Status       string
	Text         string
	Utterances   []format.Utterance
	SpeakerCount int
	ErrorMessage string
}

// Client is the vendor adapter used by the lifecycle manager. Implementations
// must not retry internally.
type Client interface {
	// Upload stores raw audio bytes with the vendor and returns an opaque
	// upload handle usable in CreateJob.
	Upload(ctx context.Context, data []byte) (string, error)
	// CreateJob starts a transcription for a previously uploaded handle and
	// returns the vendor's job id.
	CreateJob(ctx context.Context, uploadHandle, languageCode string) (string, error)
	// PollStatus fetches the current state of a vendor job.
	PollStatus(ctx context.Context, vendorJobID string) (JobStatus, error)
}
