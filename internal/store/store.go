// Package store is the durable metadata table for transcription jobs. It is
// the single source of truth: every state transition goes through an atomic,
// state-machine-validated update here.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/alotth/audio-transcriber/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateID is returned when registering a job whose id already exists.
	ErrDuplicateID = errors.New("store: duplicate job id")
	// ErrNotFound is returned when a job id is unknown.
	ErrNotFound = errors.New("store: job not found")
	// ErrInvalidTransition is returned for a state change the lifecycle forbids.
	ErrInvalidTransition = errors.New("store: invalid state transition")
)

// Store wraps the GORM handle with job-specific operations.
type Store struct {
	db *gorm.DB
}

// New creates a Store on an already-migrated database.
func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// Fields holds the optional attributes a transition may set alongside the
// state. Nil pointers leave the stored value untouched.
type Fields struct {
	VendorJobID       *string
	UploadHandle      *string
	SourceAudioRef    *string
	SpeakerCount      *int
	TranscriptRef     *string
	TranscriptPreview *string
	Error             *string
	CompletedAt       *time.Time
}

// Register inserts a new job in state pending. The caller assigns the id;
// re-registering an existing id fails with ErrDuplicateID.
func (s *Store) Register(job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("store: register: job id is required")
	}
	job.State = models.StatePending
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Job{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("store: check id %s: %w", job.ID, err)
		}
		if count > 0 {
			return fmt.Errorf("store: register %s: %w", job.ID, ErrDuplicateID)
		}
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("store: register %s: %w", job.ID, err)
		}
		return nil
	})
	return err
}

// Transition atomically moves a job to newState and applies fields. Illegal
// transitions fail with ErrInvalidTransition, with one exception: a repeat of
// an already-applied terminal transition is an idempotent no-op, so two
// racing completion attempts produce exactly one write.
func (s *Store) Transition(jobID, newState string, fields Fields) error {
	if !models.ValidState(newState) {
		return fmt.Errorf("store: transition %s: unknown state %q", jobID, newState)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Where("id = ?", jobID).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("store: transition %s: %w", jobID, ErrNotFound)
			}
			return fmt.Errorf("store: transition %s: %w", jobID, err)
		}

		if models.Terminal(job.State) {
			if job.State == newState {
				// Duplicate terminal transition: no-op.
				return nil
			}
			return fmt.Errorf("store: transition %s: %s -> %s: %w", jobID, job.State, newState, ErrInvalidTransition)
		}
		if !allowed(job.State, newState) {
			return fmt.Errorf("store: transition %s: %s -> %s: %w", jobID, job.State, newState, ErrInvalidTransition)
		}

		updates := map[string]interface{}{"state": newState}
		if fields.VendorJobID != nil {
			updates["vendor_job_id"] = *fields.VendorJobID
		}
		if fields.UploadHandle != nil {
			updates["upload_handle"] = *fields.UploadHandle
		}
		if fields.SourceAudioRef != nil {
			updates["source_audio_ref"] = *fields.SourceAudioRef
		}
		if fields.SpeakerCount != nil {
			updates["speaker_count"] = *fields.SpeakerCount
		}
		if fields.TranscriptRef != nil {
			updates["transcript_ref"] = *fields.TranscriptRef
		}
		if fields.TranscriptPreview != nil {
			updates["transcript_preview"] = *fields.TranscriptPreview
		}
		if fields.Error != nil {
			updates["error"] = *fields.Error
		}
		if fields.CompletedAt != nil {
			updates["completed_at"] = *fields.CompletedAt
		}
		if newState == models.StateCompleted || newState == models.StateError {
			// Terminal transitions clear any stalled marker.
			updates["stalled_at"] = nil
		}

		if err := tx.Model(&models.Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
			return fmt.Errorf("store: transition %s: %w", jobID, err)
		}
		return nil
	})
}

// allowed enforces the forward-only lifecycle edges. A self-transition is
// permitted so a resumed step can refresh fields without moving state.
func allowed(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case models.StatePending:
		return to == models.StateUploading || to == models.StateError
	case models.StateUploading:
		return to == models.StateTranscribing || to == models.StateError
	case models.StateTranscribing:
		return to == models.StateCompleted || to == models.StateError
	default:
		return false
	}
}

// Get returns the job with the given id, or ErrNotFound.
func (s *Store) Get(jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: get %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get %s: %w", jobID, err)
	}
	return &job, nil
}

// ListAll returns every job, newest first.
func (s *Store) ListAll() ([]models.Job, error) {
	var jobs []models.Job
	if err := s.db.Order("created_at DESC, id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: list all: %w", err)
	}
	return jobs, nil
}

// ListByState returns every job in the given state, newest first.
func (s *Store) ListByState(state string) ([]models.Job, error) {
	if !models.ValidState(state) {
		return nil, fmt.Errorf("store: list by state: unknown state %q", state)
	}
	var jobs []models.Job
	if err := s.db.Where("state = ?", state).Order("created_at DESC, id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: list state %s: %w", state, err)
	}
	return jobs, nil
}

// ListActive returns every job that still has remote work outstanding,
// oldest first so resumption replays submissions in arrival order.
func (s *Store) ListActive() ([]models.Job, error) {
	var jobs []models.Job
	active := []string{models.StatePending, models.StateUploading, models.StateTranscribing}
	if err := s.db.Where("state IN ?", active).Order("created_at ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: list active: %w", err)
	}
	return jobs, nil
}

// MarkStalled records that automatic polling gave up on a transcribing job.
// The state is untouched; the marker only flags the condition for callers.
func (s *Store) MarkStalled(jobID string, at time.Time) error {
	result := s.db.Model(&models.Job{}).
		Where("id = ? AND state = ?", jobID, models.StateTranscribing).
		Update("stalled_at", at)
	if result.Error != nil {
		return fmt.Errorf("store: mark stalled %s: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: mark stalled %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// ClearStalled removes the stalled marker, typically on a manual recheck.
func (s *Store) ClearStalled(jobID string) error {
	result := s.db.Model(&models.Job{}).Where("id = ?", jobID).Update("stalled_at", nil)
	if result.Error != nil {
		return fmt.Errorf("store: clear stalled %s: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: clear stalled %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// CountByState returns job counts grouped by state.
func (s *Store) CountByState() (map[string]int64, error) {
	type row struct {
		State string
		Count int64
	}
	var rows []row
	if err := s.db.Model(&models.Job{}).
		Select("state, count(*) as count").
		Group("state").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: count by state: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}
