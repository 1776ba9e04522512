package format

import (
	"strings"
	"testing"
)

func TestTranscriptGroupsConsecutiveSpeakers(t *testing.T) {
	utterances := []Utterance{
		{Speaker: "A", Text: "hi"},
		{Speaker: "A", Text: "there"},
		{Speaker: "B", Text: "yo"},
	}
	got := Transcript("", utterances)
	want := "Speaker A: hi there \nSpeaker B: yo"
	if got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
}

func TestTranscriptDeterministic(t *testing.T) {
	utterances := []Utterance{
		{Speaker: "A", Text: "one"},
		{Speaker: "B", Text: "two"},
		{Speaker: "A", Text: "three"},
	}
	first := Transcript("fallback", utterances)
	for i := 0; i < 10; i++ {
		if got := Transcript("fallback", utterances); got != first {
			t.Fatalf("run %d produced %q, first run produced %q", i, got, first)
		}
	}
}

func TestTranscriptSpeakerChangeEachTurn(t *testing.T) {
	utterances := []Utterance{
		{Speaker: "A", Text: "hello"},
		{Speaker: "B", Text: "hey"},
		{Speaker: "A", Text: "bye"},
	}
	got := Transcript("", utterances)
	want := "Speaker A: hello \nSpeaker B: hey \nSpeaker A: bye"
	if got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
}

func TestTranscriptBareTextFallback(t *testing.T) {
	if got := Transcript("just text", nil); got != "just text" {
		t.Errorf("Transcript = %q, want bare text verbatim", got)
	}
}

func TestTranscriptPlaceholder(t *testing.T) {
	if got := Transcript("", nil); got != Placeholder {
		t.Errorf("Transcript = %q, want %q", got, Placeholder)
	}
}

func TestSpeakerCount(t *testing.T) {
	tests := []struct {
		name       string
		utterances []Utterance
		want       int
	}{
		{"none", nil, 0},
		{"single", []Utterance{{Speaker: "A", Text: "x"}, {Speaker: "A", Text: "y"}}, 1},
		{"two", []Utterance{{Speaker: "A", Text: "x"}, {Speaker: "B", Text: "y"}, {Speaker: "A", Text: "z"}}, 2},
	}
	for _, tt := range tests {
		if got := SpeakerCount(tt.utterances); got != tt.want {
			t.Errorf("%s: SpeakerCount = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestPreviewShortTextUntouched(t *testing.T) {
	if got := Preview("short", PreviewLimit); got != "short" {
		t.Errorf("Preview = %q, want unchanged", got)
	}
}

func TestPreviewTruncates(t *testing.T) {
	full := strings.Repeat("a", PreviewLimit+100)
	got := Preview(full, PreviewLimit)

	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("preview does not end with the truncation marker: %q", got[len(got)-50:])
	}
	prefix := strings.TrimSuffix(got, TruncationMarker)
	if len([]rune(prefix)) != PreviewLimit {
		t.Errorf("prefix length = %d, want %d", len([]rune(prefix)), PreviewLimit)
	}
	if !strings.HasPrefix(full, prefix) {
		t.Error("preview is not a prefix of the full text")
	}
}

func TestPreviewExactLimit(t *testing.T) {
	full := strings.Repeat("b", PreviewLimit)
	if got := Preview(full, PreviewLimit); got != full {
		t.Error("text at exactly the limit should not be truncated")
	}
}

func TestPreviewMultibyte(t *testing.T) {
	full := strings.Repeat("é", 20)
	got := Preview(full, 10)
	prefix := strings.TrimSuffix(got, TruncationMarker)
	if len([]rune(prefix)) != 10 {
		t.Errorf("rune prefix length = %d, want 10", len([]rune(prefix)))
	}
	if !strings.HasPrefix(full, prefix) {
		t.Error("preview is not a prefix of the full text")
	}
}
