package lifecycle

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/alotth/audio-transcriber/internal/artifact"
)

// DefaultSweepSpec is how often the inventory sweep runs.
const DefaultSweepSpec = "@every 5m"

// Sweeper periodically logs an inventory of the artifact directories and job
// counts, giving operators a heartbeat of what the service is holding.
type Sweeper struct {
	cron *cron.Cron
}

// StartSweeper schedules the inventory sweep. spec is a cron expression or
// descriptor; empty means DefaultSweepSpec.
func (m *Manager) StartSweeper(spec string) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, m.sweep); err != nil {
		return nil, fmt.Errorf("lifecycle: schedule sweep %q: %w", spec, err)
	}
	c.Start()
	m.sweep()
	return &Sweeper{cron: c}, nil
}

// Stop halts the sweep schedule.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// sweep logs one inventory snapshot.
func (m *Manager) sweep() {
	counts, err := m.store.CountByState()
	if err != nil {
		log.Printf("lifecycle: sweep: %v", err)
		return
	}
	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, state := range states {
		parts = append(parts, fmt.Sprintf("%s=%d", state, counts[state]))
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}

	uploads := artifact.Inspect(m.artifacts.UploadsDir())
	transcripts := artifact.Inspect(m.artifacts.TranscriptsDir())
	log.Printf("lifecycle: sweep: jobs %s; uploads %d file(s); transcripts %d file(s); loops %d",
		strings.Join(parts, " "), uploads.Files, transcripts.Files, len(m.ActiveLoops()))
}
