package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alotth/audio-transcriber/internal/models"
)

// testStore creates a Store on an in-memory SQLite database.
func testStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("underlying handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&models.Job{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return New(gdb)
}

func strptr(s string) *string { return &s }

func TestRegisterAndGet(t *testing.T) {
	st := testStore(t)

	job := &models.Job{ID: "job-1", SourceAudioRef: "a.webm", OriginalName: "meeting.webm"}
	if err := st.Register(job); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := st.Get("job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.StatePending {
		t.Errorf("state = %q, want %q", got.State, models.StatePending)
	}
	if got.OriginalName != "meeting.webm" {
		t.Errorf("original name = %q, want %q", got.OriginalName, "meeting.webm")
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	st := testStore(t)

	if err := st.Register(&models.Job{ID: "dup"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := st.Register(&models.Job{ID: "dup"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}

	jobs, err := st.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("got %d records, want 1", len(jobs))
	}
}

func TestGetNotFound(t *testing.T) {
	st := testStore(t)
	if _, err := st.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTransitionForwardOnly(t *testing.T) {
	st := testStore(t)
	if err := st.Register(&models.Job{ID: "j"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	steps := []string{models.StateUploading, models.StateTranscribing, models.StateCompleted}
	for _, state := range steps {
		if err := st.Transition("j", state, Fields{}); err != nil {
			t.Fatalf("transition to %s: %v", state, err)
		}
	}

	// Terminal states never move backward.
	err := st.Transition("j", models.StateTranscribing, Fields{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed -> transcribing: err = %v, want ErrInvalidTransition", err)
	}
	err = st.Transition("j", models.StateError, Fields{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed -> error: err = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionSkippingStateIsInvalid(t *testing.T) {
	st := testStore(t)
	if err := st.Register(&models.Job{ID: "j"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := st.Transition("j", models.StateTranscribing, Fields{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending -> transcribing: err = %v, want ErrInvalidTransition", err)
	}
	err = st.Transition("j", models.StateCompleted, Fields{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending -> completed: err = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionErrorFromAnyNonTerminal(t *testing.T) {
	for _, setup := range [][]string{
		nil,
		{models.StateUploading},
		{models.StateUploading, models.StateTranscribing},
	} {
		st := testStore(t)
		if err := st.Register(&models.Job{ID: "j"}); err != nil {
			t.Fatalf("register: %v", err)
		}
		for _, state := range setup {
			if err := st.Transition("j", state, Fields{}); err != nil {
				t.Fatalf("setup transition to %s: %v", state, err)
			}
		}
		if err := st.Transition("j", models.StateError, Fields{Error: strptr("boom")}); err != nil {
			t.Fatalf("transition to error after %v: %v", setup, err)
		}
		job, err := st.Get("j")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if job.Error != "boom" {
			t.Errorf("error = %q, want %q", job.Error, "boom")
		}
	}
}

func TestTransitionNotFound(t *testing.T) {
	st := testStore(t)
	err := st.Transition("missing", models.StateUploading, Fields{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateTerminalTransitionIsNoOp(t *testing.T) {
	st := testStore(t)
	if err := st.Register(&models.Job{ID: "j"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, state := range []string{models.StateUploading, models.StateTranscribing} {
		if err := st.Transition("j", state, Fields{}); err != nil {
			t.Fatalf("transition to %s: %v", state, err)
		}
	}

	first := time.Now().Add(-time.Minute)
	second := time.Now()
	count := 1
	if err := st.Transition("j", models.StateCompleted, Fields{
		CompletedAt:   &first,
		TranscriptRef: strptr("transcription-j.txt"),
		SpeakerCount:  &count,
	}); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	// A racing duplicate completion must not overwrite anything.
	if err := st.Transition("j", models.StateCompleted, Fields{
		CompletedAt:   &second,
		TranscriptRef: strptr("other.txt"),
	}); err != nil {
		t.Fatalf("duplicate completion: %v", err)
	}

	job, err := st.Get("j")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.TranscriptRef != "transcription-j.txt" {
		t.Errorf("transcript_ref = %q, want first write preserved", job.TranscriptRef)
	}
	if job.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if diff := job.CompletedAt.Sub(first); diff < -time.Second || diff > time.Second {
		t.Errorf("completed_at = %v, want first write %v", job.CompletedAt, first)
	}
}

func TestConcurrentTerminalTransitions(t *testing.T) {
	st := testStore(t)
	if err := st.Register(&models.Job{ID: "j"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, state := range []string{models.StateUploading, models.StateTranscribing} {
		if err := st.Transition("j", state, Fields{}); err != nil {
			t.Fatalf("transition to %s: %v", state, err)
		}
	}

	now := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.Transition("j", models.StateCompleted, Fields{CompletedAt: &now})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("completion %d: %v", i, err)
		}
	}
	job, err := st.Get("j")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.State != models.StateCompleted {
		t.Errorf("state = %q, want completed", job.State)
	}
}

func TestSelfTransitionRefreshesFields(t *testing.T) {
	st := testStore(t)
	if err := st.Register(&models.Job{ID: "j"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.Transition("j", models.StateUploading, Fields{UploadHandle: strptr("h1")}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := st.Transition("j", models.StateUploading, Fields{UploadHandle: strptr("h2")}); err != nil {
		t.Fatalf("self transition: %v", err)
	}
	job, err := st.Get("j")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.UploadHandle != "h2" {
		t.Errorf("upload_handle = %q, want %q", job.UploadHandle, "h2")
	}
}

func TestListAllNewestFirst(t *testing.T) {
	st := testStore(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		job := &models.Job{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := st.Register(job); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	jobs, err := st.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	want := []string{"new", "mid", "old"}
	if len(jobs) != len(want) {
		t.Fatalf("got %d jobs, want %d", len(jobs), len(want))
	}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Errorf("jobs[%d] = %q, want %q", i, jobs[i].ID, id)
		}
	}
}

func TestListByState(t *testing.T) {
	st := testStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := st.Register(&models.Job{ID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if err := st.Transition("b", models.StateUploading, Fields{}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	pending, err := st.ListByState(models.StatePending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}

	if _, err := st.ListByState("bogus"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestListActiveExcludesTerminal(t *testing.T) {
	st := testStore(t)
	for _, id := range []string{"p", "done", "failed"} {
		if err := st.Register(&models.Job{ID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	for _, state := range []string{models.StateUploading, models.StateTranscribing, models.StateCompleted} {
		if err := st.Transition("done", state, Fields{}); err != nil {
			t.Fatalf("transition done: %v", err)
		}
	}
	if err := st.Transition("failed", models.StateError, Fields{Error: strptr("x")}); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	active, err := st.ListActive()
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "p" {
		t.Errorf("active = %v, want just %q", active, "p")
	}
}

func TestMarkAndClearStalled(t *testing.T) {
	st := testStore(t)
	if err := st.Register(&models.Job{ID: "j"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Only a transcribing job can stall.
	if err := st.MarkStalled("j", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("mark stalled pending job: err = %v, want ErrNotFound", err)
	}

	for _, state := range []string{models.StateUploading, models.StateTranscribing} {
		if err := st.Transition("j", state, Fields{}); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	if err := st.MarkStalled("j", time.Now()); err != nil {
		t.Fatalf("mark stalled: %v", err)
	}
	job, _ := st.Get("j")
	if !job.Stalled() {
		t.Error("job not flagged stalled")
	}

	if err := st.ClearStalled("j"); err != nil {
		t.Fatalf("clear stalled: %v", err)
	}
	job, _ = st.Get("j")
	if job.Stalled() {
		t.Error("stalled flag not cleared")
	}
}

func TestTerminalTransitionClearsStalled(t *testing.T) {
	st := testStore(t)
	if err := st.Register(&models.Job{ID: "j"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, state := range []string{models.StateUploading, models.StateTranscribing} {
		if err := st.Transition("j", state, Fields{}); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	if err := st.MarkStalled("j", time.Now()); err != nil {
		t.Fatalf("mark stalled: %v", err)
	}
	if err := st.Transition("j", models.StateCompleted, Fields{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	job, _ := st.Get("j")
	if job.StalledAt != nil {
		t.Error("stalled_at survived terminal transition")
	}
}

func TestCountByState(t *testing.T) {
	st := testStore(t)
	for _, id := range []string{"a", "b"} {
		if err := st.Register(&models.Job{ID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if err := st.Transition("b", models.StateUploading, Fields{}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	counts, err := st.CountByState()
	if err != nil {
		t.Fatalf("count by state: %v", err)
	}
	if counts[models.StatePending] != 1 || counts[models.StateUploading] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
