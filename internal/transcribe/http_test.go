package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewHTTPClient(Opts{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestNewHTTPClientRequiresKey(t *testing.T) {
	if _, err := NewHTTPClient(Opts{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestUpload(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example/abc"})
	}))

	handle, err := client.Upload(context.Background(), []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if handle != "https://cdn.example/abc" {
		t.Errorf("handle = %q", handle)
	}
	if gotAuth != "test-key" {
		t.Errorf("auth header = %q, want api key", gotAuth)
	}
	if gotType != "application/octet-stream" {
		t.Errorf("content type = %q", gotType)
	}
	if string(gotBody) != "audio-bytes" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestUploadMissingURL(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{}")
	}))
	_, err := client.Upload(context.Background(), []byte("x"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCreateJob(t *testing.T) {
	var gotReq createRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]string{"id": "v1"})
	}))

	id, err := client.CreateJob(context.Background(), "https://cdn.example/abc", "pt")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if id != "v1" {
		t.Errorf("id = %q, want v1", id)
	}
	if gotReq.AudioURL != "https://cdn.example/abc" {
		t.Errorf("audio_url = %q", gotReq.AudioURL)
	}
	if gotReq.LanguageCode != "pt" {
		t.Errorf("language_code = %q", gotReq.LanguageCode)
	}
	if !gotReq.SpeakerLabels {
		t.Error("speaker_labels not requested")
	}
}

func TestPollStatusCompleted(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript/v1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"status": "completed",
			"text": "hello world",
			"utterances": [{"speaker": "A", "text": "hello"}, {"speaker": "A", "text": "world"}],
			"speaker_count": 1
		}`)
	}))

	status, err := client.PollStatus(context.Background(), "v1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status.Status != StatusCompleted {
		t.Errorf("status = %q", status.Status)
	}
	if status.Text != "hello world" {
		t.Errorf("text = %q", status.Text)
	}
	if len(status.Utterances) != 2 || status.Utterances[0].Speaker != "A" {
		t.Errorf("utterances = %+v", status.Utterances)
	}
}

func TestPollStatusError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "error", "error": "audio too short"}`)
	}))

	status, err := client.PollStatus(context.Background(), "v1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status.Status != StatusError {
		t.Errorf("status = %q", status.Status)
	}
	if status.ErrorMessage != "audio too short" {
		t.Errorf("error message = %q", status.ErrorMessage)
	}
}

func TestRejectedRequest(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))

	_, err := client.Upload(context.Background(), []byte("x"))
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if rejected.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", rejected.StatusCode)
	}
	if rejected.Body != "bad api key" {
		t.Errorf("body = %q", rejected.Body)
	}
}

func TestNetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // deliberately dead
	client, err := NewHTTPClient(Opts{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Upload(context.Background(), []byte("x"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if _, err := client.PollStatus(context.Background(), "v1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("poll err = %v, want ErrUnavailable", err)
	}
}
