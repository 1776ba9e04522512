package models

import "time"

// Job states. Transitions only move forward; StateError is reachable from
// any non-terminal state. StateCompleted and StateError are terminal.
const (
	StatePending      = "pending"
	StateUploading    = "uploading"
	StateTranscribing = "transcribing"
	StateCompleted    = "completed"
	StateError        = "error"
)

// States lists every job state, in lifecycle order.
func States() []string {
	return []string{StatePending, StateUploading, StateTranscribing, StateCompleted, StateError}
}

// ValidState reports whether s names a known job state.
func ValidState(s string) bool {
	switch s {
	case StatePending, StateUploading, StateTranscribing, StateCompleted, StateError:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func Terminal(s string) bool {
	return s == StateCompleted || s == StateError
}

// Job is one transcription request tracked end-to-end.
type Job struct {
	ID                string `gorm:"primaryKey;size:64"`
	State             string `gorm:"size:16;not null;index"`
	VendorJobID       string `gorm:"size:64;index"`
	UploadHandle      string `gorm:"size:512"`
	SourceAudioRef    string `gorm:"size:256"`
	OriginalName      string `gorm:"size:256"`
	SpeakerCount      int    `gorm:"default:0"`
	TranscriptRef     string `gorm:"size:256"`
	TranscriptPreview string `gorm:"type:text"`
	Error             string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
	StalledAt         *time.Time
}

// Active reports whether the job still has remote work outstanding.
func (j *Job) Active() bool {
	return !Terminal(j.State)
}

// Stalled reports whether automatic polling gave up on this job without
// reaching a terminal state.
func (j *Job) Stalled() bool {
	return j.StalledAt != nil && j.State == StateTranscribing
}
