package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/alotth/audio-transcriber/internal/transcribe"
)

// pollLoop is the per-job polling handle. It lives in the manager's registry
// alongside the metadata record, never inside it, and is released
// deterministically on terminal transition or auto-stop.
type pollLoop struct {
	jobID       string
	vendorJobID string
	cancel      context.CancelFunc
}

// startPolling launches the poll loop for a job. At most one loop runs per
// job id: starting a second one, e.g. a restart resumption racing a fresh
// submission, is a no-op.
func (m *Manager) startPolling(jobID, vendorJobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.loops[jobID]; running {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	loop := &pollLoop{jobID: jobID, vendorJobID: vendorJobID, cancel: cancel}
	m.loops[jobID] = loop
	go m.poll(ctx, loop)
}

// release drops a loop from the registry and cancels its timer context.
func (m *Manager) release(loop *pollLoop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loop.cancel()
	delete(m.loops, loop.jobID)
}

// Polling reports whether a poll loop is currently running for the job.
func (m *Manager) Polling(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.loops[jobID]
	return running
}

// ActiveLoops returns the ids of all jobs with a running poll loop.
func (m *Manager) ActiveLoops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	return ids
}

// poll repeatedly checks the vendor job until a terminal result or the
// auto-stop deadline. Transient poll failures are logged and retried on the
// next tick; only an explicit vendor error result transitions the job.
func (m *Manager) poll(ctx context.Context, loop *pollLoop) {
	defer m.release(loop)

	start := time.Now()
	timer := time.NewTimer(m.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		elapsed := time.Since(start)
		if elapsed >= m.cfg.MaxPollDuration {
			if err := m.store.MarkStalled(loop.jobID, time.Now()); err != nil {
				log.Printf("lifecycle: job %s: mark stalled: %v", loop.jobID, err)
			}
			log.Printf("lifecycle: job %s: polling stopped after %s; awaiting manual recheck",
				loop.jobID, elapsed.Round(time.Second))
			return
		}

		status, err := m.client.PollStatus(ctx, loop.vendorJobID)
		if err != nil {
			log.Printf("lifecycle: job %s: poll %s: %v", loop.jobID, loop.vendorJobID, err)
		} else {
			switch status.Status {
			case transcribe.StatusCompleted:
				m.complete(loop.jobID, status)
				return
			case transcribe.StatusError:
				m.failVendor(loop.jobID, status.ErrorMessage)
				return
			}
		}

		timer.Reset(m.intervalAfter(elapsed))
	}
}

// intervalAfter returns the poll interval to use given total elapsed time:
// the base interval doubled once per BackoffEvery elapsed, capped at
// MaxPollInterval.
func (m *Manager) intervalAfter(elapsed time.Duration) time.Duration {
	interval := m.cfg.PollInterval
	for doublings := int64(elapsed / m.cfg.BackoffEvery); doublings > 0; doublings-- {
		interval *= 2
		if interval >= m.cfg.MaxPollInterval {
			return m.cfg.MaxPollInterval
		}
	}
	return interval
}

// failVendor records a vendor-reported transcription error, preserving the
// vendor's message verbatim.
func (m *Manager) failVendor(jobID, message string) {
	if message == "" {
		message = "vendor reported an unspecified transcription error"
	}
	m.fail(jobID, vendorError(message))
}

// vendorError wraps a vendor message so fail() records exactly that text.
type vendorError string

func (e vendorError) Error() string { return string(e) }
