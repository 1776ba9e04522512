// Package format converts raw vendor transcription payloads into normalized
// human-readable text with speaker labels.
package format

import (
	"fmt"
	"strings"
)

// Placeholder is returned when the vendor supplied neither utterances nor
// bare text.
const Placeholder = "No transcription text available"

// TruncationMarker terminates a preview that was cut short of the full text.
const TruncationMarker = "... (text truncated, see full file)"

// PreviewLimit bounds the inline transcript copy kept in the metadata store.
const PreviewLimit = 8000

// Utterance is a speaker-tagged fragment of a transcript, in spoken order.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Transcript builds the normalized transcript. Consecutive utterances by the
// same speaker are grouped into one turn: a "Speaker <id>:" marker is emitted
// only when the speaker changes, and each utterance's text follows separated
// by a single space. Without utterances the bare text is returned verbatim,
// or Placeholder when that is empty too.
func Transcript(text string, utterances []Utterance) string {
	if len(utterances) == 0 {
		if text == "" {
			return Placeholder
		}
		return text
	}

	var b strings.Builder
	currentSpeaker := ""
	started := false
	for _, u := range utterances {
		if !started || u.Speaker != currentSpeaker {
			currentSpeaker = u.Speaker
			started = true
			fmt.Fprintf(&b, "\nSpeaker %s: ", u.Speaker)
		}
		b.WriteString(u.Text)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

// SpeakerCount returns the number of distinct speaker tags, 0 when there are
// no utterances.
func SpeakerCount(utterances []Utterance) int {
	seen := make(map[string]struct{}, len(utterances))
	for _, u := range utterances {
		seen[u.Speaker] = struct{}{}
	}
	return len(seen)
}

// Preview returns text bounded to limit units. A truncated preview is always
// a strict prefix of the full text followed by TruncationMarker.
func Preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + TruncationMarker
}
