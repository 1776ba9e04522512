// Package lifecycle drives each transcription job through
// upload -> remote job creation -> poll-until-terminal -> persist-result.
// The metadata store is the source of truth; the manager's in-memory loop
// registry is only a handle table and is rebuilt from the store on restart.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alotth/audio-transcriber/internal/artifact"
	"github.com/alotth/audio-transcriber/internal/format"
	"github.com/alotth/audio-transcriber/internal/media"
	"github.com/alotth/audio-transcriber/internal/models"
	"github.com/alotth/audio-transcriber/internal/notify"
	"github.com/alotth/audio-transcriber/internal/store"
	"github.com/alotth/audio-transcriber/internal/transcribe"
)

// Default polling parameters.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollInterval = 15 * time.Second
	DefaultBackoffEvery    = 30 * time.Minute
	DefaultMaxPollDuration = 4 * time.Hour
)

// Config holds lifecycle tuning. Zero values take the defaults above.
type Config struct {
	LanguageCode    string
	PollInterval    time.Duration // base interval between status polls
	MaxPollInterval time.Duration // backoff ceiling
	BackoffEvery    time.Duration // elapsed time per interval doubling
	MaxPollDuration time.Duration // auto-stop after this much elapsed time
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = DefaultMaxPollInterval
	}
	if c.BackoffEvery <= 0 {
		c.BackoffEvery = DefaultBackoffEvery
	}
	if c.MaxPollDuration <= 0 {
		c.MaxPollDuration = DefaultMaxPollDuration
	}
}

// Opts holds the collaborators a Manager needs.
type Opts struct {
	Store     *store.Store
	Artifacts *artifact.Store
	Client    transcribe.Client
	Converter *media.Converter // nil skips audio normalization
	Notifier  notify.Notifier  // nil skips chat notices
	Config    Config
}

// Manager orchestrates the per-job state machine.
type Manager struct {
	store     *store.Store
	artifacts *artifact.Store
	client    transcribe.Client
	converter *media.Converter
	notifier  notify.Notifier
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	loops map[string]*pollLoop
}

// New creates a Manager. Call Close to stop any in-flight poll loops.
func New(opts Opts) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("lifecycle: store is required")
	}
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("lifecycle: artifact store is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("lifecycle: vendor client is required")
	}
	cfg := opts.Config
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     opts.Store,
		artifacts: opts.Artifacts,
		client:    opts.Client,
		converter: opts.Converter,
		notifier:  opts.Notifier,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		loops:     make(map[string]*pollLoop),
	}, nil
}

// Close stops every poll loop. Job records keep their last persisted state
// and are picked up again by Resume on the next start.
func (m *Manager) Close() {
	m.cancel()
}

// RegisterOpts describes a new submission.
type RegisterOpts struct {
	// ID is an optional caller-supplied idempotency key. Resubmitting an
	// existing id fails with store.ErrDuplicateID; callers treat that as
	// "already submitted" and query instead.
	ID           string
	Audio        []byte
	OriginalName string
}

// Register persists the audio, records the job as pending and starts the
// remote pipeline asynchronously. It returns the job id immediately.
func (m *Manager) Register(opts RegisterOpts) (string, error) {
	if len(opts.Audio) == 0 {
		return "", fmt.Errorf("lifecycle: register: no audio data")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	ref, err := m.artifacts.PutAudio(opts.Audio, opts.OriginalName)
	if err != nil {
		return "", fmt.Errorf("lifecycle: register %s: %w", id, err)
	}

	job := &models.Job{
		ID:             id,
		SourceAudioRef: ref,
		OriginalName:   opts.OriginalName,
	}
	if err := m.store.Register(job); err != nil {
		if rmErr := m.artifacts.RemoveAudio(ref); rmErr != nil {
			log.Printf("lifecycle: register %s: remove orphaned audio: %v", id, rmErr)
		}
		return "", err
	}

	go m.advance(id)
	return id, nil
}

// Resume reloads every non-terminal job and continues it from the step its
// persisted state calls for. Jobs that never reached the vendor are
// re-uploaded; jobs with a vendor id resume polling for that same id, so a
// restart never creates a duplicate vendor job.
func (m *Manager) Resume() error {
	jobs, err := m.store.ListActive()
	if err != nil {
		return fmt.Errorf("lifecycle: resume: %w", err)
	}
	for _, job := range jobs {
		log.Printf("lifecycle: resuming job %s in state %s", job.ID, job.State)
		go m.advance(job.ID)
	}
	return nil
}

// Recheck restarts polling for a transcribing job whose automatic loop has
// stopped. Starting a loop that is already running is a no-op.
func (m *Manager) Recheck(jobID string) error {
	job, err := m.store.Get(jobID)
	if err != nil {
		return err
	}
	if job.State != models.StateTranscribing || job.VendorJobID == "" {
		return fmt.Errorf("lifecycle: recheck %s: job is %s, not awaiting transcription", jobID, job.State)
	}
	if err := m.store.ClearStalled(jobID); err != nil {
		return err
	}
	m.startPolling(jobID, job.VendorJobID)
	return nil
}

// advance runs a job forward from whatever step its persisted state calls
// for, until it is polling or terminal.
func (m *Manager) advance(jobID string) {
	job, err := m.store.Get(jobID)
	if err != nil {
		log.Printf("lifecycle: advance %s: %v", jobID, err)
		return
	}

	switch job.State {
	case models.StatePending:
		m.upload(job)
	case models.StateUploading:
		if job.UploadHandle == "" {
			m.upload(job)
			return
		}
		m.createJob(job)
	case models.StateTranscribing:
		if job.VendorJobID == "" {
			// Interrupted between upload and job creation.
			m.createJob(job)
			return
		}
		if job.Stalled() {
			// Polling restarts with a fresh clock, so the job is no
			// longer stalled.
			if err := m.store.ClearStalled(job.ID); err != nil {
				log.Printf("lifecycle: advance %s: clear stalled: %v", job.ID, err)
			}
		}
		m.startPolling(job.ID, job.VendorJobID)
	}
}

// upload normalizes the audio if needed and sends it to the vendor. Success
// advances the job to uploading with the handle recorded; any failure is
// terminal.
func (m *Manager) upload(job *models.Job) {
	ref := job.SourceAudioRef

	if m.converter != nil {
		path, err := m.converter.Normalize(m.ctx, m.artifacts.AudioPath(ref))
		if err != nil {
			m.fail(job.ID, err)
			return
		}
		if converted := artifactRef(path); converted != ref {
			ref = converted
		}
	}

	data, err := m.artifacts.ReadAudio(ref)
	if err != nil {
		m.fail(job.ID, err)
		return
	}

	handle, err := m.client.Upload(m.ctx, data)
	if err != nil {
		m.fail(job.ID, err)
		return
	}

	if err := m.store.Transition(job.ID, models.StateUploading, store.Fields{
		UploadHandle:   &handle,
		SourceAudioRef: &ref,
	}); err != nil {
		log.Printf("lifecycle: job %s: record upload: %v", job.ID, err)
		return
	}

	job.UploadHandle = handle
	job.SourceAudioRef = ref
	m.createJob(job)
}

// createJob asks the vendor to transcribe the uploaded audio. Success
// advances the job to transcribing and starts polling; failure is terminal.
func (m *Manager) createJob(job *models.Job) {
	vendorID, err := m.client.CreateJob(m.ctx, job.UploadHandle, m.cfg.LanguageCode)
	if err != nil {
		m.fail(job.ID, err)
		return
	}

	if err := m.store.Transition(job.ID, models.StateTranscribing, store.Fields{
		VendorJobID: &vendorID,
	}); err != nil {
		log.Printf("lifecycle: job %s: record vendor job: %v", job.ID, err)
		return
	}

	m.startPolling(job.ID, vendorID)
}

// complete persists the formatted transcript and commits the terminal
// transition. The transcript file is write-once and the store makes the
// terminal transition idempotent, so a racing duplicate completion is a
// no-op.
func (m *Manager) complete(jobID string, status transcribe.JobStatus) {
	text := format.Transcript(status.Text, status.Utterances)

	ref, err := m.artifacts.PutTranscript(jobID, text)
	if err != nil && !errors.Is(err, artifact.ErrExists) {
		m.fail(jobID, err)
		return
	}

	speakers := format.SpeakerCount(status.Utterances)
	preview := format.Preview(text, format.PreviewLimit)
	now := time.Now()
	if err := m.store.Transition(jobID, models.StateCompleted, store.Fields{
		SpeakerCount:      &speakers,
		TranscriptRef:     &ref,
		TranscriptPreview: &preview,
		CompletedAt:       &now,
	}); err != nil {
		log.Printf("lifecycle: job %s: commit completion: %v", jobID, err)
		return
	}
	log.Printf("lifecycle: job %s completed (%d speaker(s))", jobID, speakers)

	job, err := m.store.Get(jobID)
	if err != nil {
		log.Printf("lifecycle: job %s: reload after completion: %v", jobID, err)
		return
	}
	if job.SourceAudioRef != "" {
		if err := m.artifacts.RemoveAudio(job.SourceAudioRef); err != nil {
			log.Printf("lifecycle: job %s: cleanup audio: %v", jobID, err)
		}
	}
	m.notifyDone(job)
}

// fail records a terminal error with the failure reason verbatim.
func (m *Manager) fail(jobID string, cause error) {
	msg := cause.Error()
	if err := m.store.Transition(jobID, models.StateError, store.Fields{
		Error: &msg,
	}); err != nil {
		log.Printf("lifecycle: job %s: record error: %v", jobID, err)
		return
	}
	log.Printf("lifecycle: job %s failed: %s", jobID, msg)

	if m.notifier != nil {
		if job, err := m.store.Get(jobID); err == nil {
			if err := m.notifier.JobFailed(job); err != nil {
				log.Printf("lifecycle: job %s: notify failure: %v", jobID, err)
			}
		}
	}
}

// notifyDone posts a best-effort completion notice.
func (m *Manager) notifyDone(job *models.Job) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.JobCompleted(job); err != nil {
		log.Printf("lifecycle: job %s: notify completion: %v", job.ID, err)
	}
}

// artifactRef turns an absolute artifact path back into a store reference.
func artifactRef(path string) string {
	return filepath.Base(path)
}
