// Package media normalizes uploaded audio through an external ffmpeg filter.
// Files already in a vendor-accepted container pass through untouched.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// acceptedExtensions are containers the vendor ingests directly; anything
// else is converted to webm/opus first.
var acceptedExtensions = map[string]bool{
	".mp3":  true,
	".mp4":  true,
	".wav":  true,
	".ogg":  true,
	".m4a":  true,
	".webm": true,
}

// Converter runs the ffmpeg binary named by Bin, defaulting to "ffmpeg" on
// PATH.
type Converter struct {
	Bin string
}

// Accepted reports whether the file at path needs no conversion.
func Accepted(path string) bool {
	return acceptedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Normalize returns a path to vendor-ready audio. Accepted formats are
// returned as-is; anything else is converted next to the input, and the
// original is removed on success.
func (c *Converter) Normalize(ctx context.Context, inputPath string) (string, error) {
	if Accepted(inputPath) {
		return inputPath, nil
	}

	bin := c.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	ext := filepath.Ext(inputPath)
	outputPath := strings.TrimSuffix(inputPath, ext) + ".webm"

	cmd := exec.CommandContext(ctx, bin,
		"-y", "-i", inputPath,
		"-c:a", "libopus",
		"-f", "webm",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("media: convert %s: %w: %s", filepath.Base(inputPath), err, lastLine(out))
	}

	if err := os.Remove(inputPath); err != nil {
		return "", fmt.Errorf("media: remove original %s: %w", filepath.Base(inputPath), err)
	}
	return outputPath, nil
}

// lastLine extracts the final non-empty line of ffmpeg output, which carries
// the actual failure reason.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
