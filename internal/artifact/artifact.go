// Package artifact is the filesystem layout for audio inputs and transcript
// outputs. Audio and transcripts live in separate directories under one data
// root; both are created on first use.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a referenced artifact does not exist.
	ErrNotFound = errors.New("artifact: not found")
	// ErrExists is returned when writing a transcript that was already written.
	// Transcripts are write-once.
	ErrExists = errors.New("artifact: already exists")
)

const (
	uploadsDir     = "uploads"
	transcriptsDir = "transcripts"
)

// Store manages the artifact directories.
type Store struct {
	root string
}

// New creates a Store rooted at dir and ensures both artifact directories
// exist.
func New(dir string) (*Store, error) {
	s := &Store{root: dir}
	for _, sub := range []string{uploadsDir, transcriptsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("artifact: create %s: %w", sub, err)
		}
	}
	return s, nil
}

// Root returns the data directory the store was created with.
func (s *Store) Root() string {
	return s.root
}

// UploadsDir returns the directory holding raw audio inputs.
func (s *Store) UploadsDir() string {
	return filepath.Join(s.root, uploadsDir)
}

// TranscriptsDir returns the directory holding transcript outputs.
func (s *Store) TranscriptsDir() string {
	return filepath.Join(s.root, transcriptsDir)
}

// PutAudio persists raw upload bytes and returns a stable reference. The
// reference is the stored filename: a timestamp prefix keeps names unique
// while preserving the original extension for the conversion filter.
func (s *Store) PutAudio(data []byte, suggestedName string) (string, error) {
	ext := filepath.Ext(suggestedName)
	name := fmt.Sprintf("%d%s", time.Now().UnixNano(), ext)
	path := filepath.Join(s.UploadsDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("artifact: put audio: %w", err)
	}
	return name, nil
}

// AudioPath resolves a source audio reference to an absolute path.
func (s *Store) AudioPath(ref string) string {
	return filepath.Join(s.UploadsDir(), filepath.Base(ref))
}

// ReadAudio returns the raw bytes for a source audio reference.
func (s *Store) ReadAudio(ref string) ([]byte, error) {
	data, err := os.ReadFile(s.AudioPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact: read audio %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("artifact: read audio %s: %w", ref, err)
	}
	return data, nil
}

// RemoveAudio deletes a source audio file. Cleanup after completion is
// best-effort; callers log failures rather than surfacing them.
func (s *Store) RemoveAudio(ref string) error {
	if err := os.Remove(s.AudioPath(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifact: remove audio %s: %w", ref, err)
	}
	return nil
}

// TranscriptRef returns the reference a job's transcript is stored under.
func TranscriptRef(jobID string) string {
	return fmt.Sprintf("transcription-%s.txt", jobID)
}

// PutTranscript writes the full transcript text for a job, write-once, and
// returns its reference. A second write for the same job fails with
// ErrExists; the already-stored content is never mutated in place.
func (s *Store) PutTranscript(jobID, text string) (string, error) {
	ref := TranscriptRef(jobID)
	path := filepath.Join(s.TranscriptsDir(), ref)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ref, fmt.Errorf("artifact: put transcript %s: %w", jobID, ErrExists)
		}
		return "", fmt.Errorf("artifact: put transcript %s: %w", jobID, err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return "", fmt.Errorf("artifact: put transcript %s: %w", jobID, err)
	}
	return ref, nil
}

// GetTranscript resolves a transcript reference to its full text.
func (s *Store) GetTranscript(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "..") {
		return "", fmt.Errorf("artifact: get transcript %q: %w", ref, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(s.TranscriptsDir(), filepath.Base(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("artifact: get transcript %s: %w", ref, ErrNotFound)
		}
		return "", fmt.Errorf("artifact: get transcript %s: %w", ref, err)
	}
	return string(data), nil
}

// DirInfo describes one artifact directory for the system status endpoint
// and the periodic inventory sweep.
type DirInfo struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Writable bool   `json:"writable"`
	Files    int    `json:"files"`
}

// Inspect reports existence, writability and file count for an artifact
// directory.
func Inspect(dir string) DirInfo {
	info := DirInfo{Path: dir}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return info
	}
	info.Exists = true
	info.Files = len(entries)
	probe := filepath.Join(dir, ".write-probe")
	if f, err := os.Create(probe); err == nil {
		f.Close()
		os.Remove(probe)
		info.Writable = true
	}
	return info
}
