// Package notify posts best-effort completion and failure notices to chat.
// Delivery failures are logged by the caller and never affect the job.
package notify

import (
	"fmt"

	"github.com/alotth/audio-transcriber/internal/models"
)

// Notifier delivers a job outcome notice.
type Notifier interface {
	JobCompleted(job *models.Job) error
	JobFailed(job *models.Job) error
}

// Multi fans a notice out to several notifiers, collecting the first error.
type Multi []Notifier

// JobCompleted notifies all members.
func (m Multi) JobCompleted(job *models.Job) error {
	var first error
	for _, n := range m {
		if err := n.JobCompleted(job); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// JobFailed notifies all members.
func (m Multi) JobFailed(job *models.Job) error {
	var first error
	for _, n := range m {
		if err := n.JobFailed(job); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// completedText renders the completion notice body.
func completedText(job *models.Job) string {
	name := job.OriginalName
	if name == "" {
		name = job.ID
	}
	return fmt.Sprintf("Transcription completed: %s (%d speaker(s), job %s)", name, job.SpeakerCount, job.ID)
}

// failedText renders the failure notice body.
func failedText(job *models.Job) string {
	name := job.OriginalName
	if name == "" {
		name = job.ID
	}
	return fmt.Sprintf("Transcription failed: %s (job %s): %s", name, job.ID, job.Error)
}
