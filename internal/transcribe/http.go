package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alotth/audio-transcriber/internal/format"
)

// DefaultBaseURL is the vendor API root.
const DefaultBaseURL = "https://api.assemblyai.com/v2"

// defaultTimeout bounds a single vendor round trip. Uploads carry whole
// recordings, so this is generous.
const defaultTimeout = 10 * time.Minute

// HTTPClient talks to the vendor's REST API: POST /upload with raw bytes,
// POST /transcript to create a job, GET /transcript/{id} to poll.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// Opts configures an HTTPClient.
type Opts struct {
	APIKey  string
	BaseURL string       // defaults to DefaultBaseURL
	Client  *http.Client // for tests; defaults to a client with a timeout
}

// NewHTTPClient creates a vendor client.
func NewHTTPClient(opts Opts) (*HTTPClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("transcribe: api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		httpc:   opts.Client,
	}, nil
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type createRequest struct {
	AudioURL      string `json:"audio_url"`
	LanguageCode  string `json:"language_code,omitempty"`
	SpeakerLabels bool   `json:"speaker_labels"`
}

type createResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status       string             `json:"status"`
	Text         string             `json:"text"`
	Utterances   []format.Utterance `json:"utterances"`
	SpeakerCount int                `json:"speaker_count"`
	Error        string             `json:"error"`
}

// Upload sends raw audio bytes and returns the vendor's upload URL.
func (c *HTTPClient) Upload(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("transcribe: upload request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("transcribe: upload: vendor returned no upload_url: %w", ErrUnavailable)
	}
	return out.UploadURL, nil
}

// CreateJob starts a transcription for an uploaded handle.
func (c *HTTPClient) CreateJob(ctx context.Context, uploadHandle, languageCode string) (string, error) {
	body, err := json.Marshal(createRequest{
		AudioURL:      uploadHandle,
		LanguageCode:  languageCode,
		SpeakerLabels: true,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: create job: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("transcribe: create job request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var out createResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("transcribe: create job: vendor returned no id: %w", ErrUnavailable)
	}
	return out.ID, nil
}

// PollStatus fetches the current state of a vendor job.
func (c *HTTPClient) PollStatus(ctx context.Context, vendorJobID string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+vendorJobID, nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("transcribe: poll request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	var out statusResponse
	if err := c.do(req, &out); err != nil {
		return JobStatus{}, err
	}
	return JobStatus{
		Status:       out.Status,
		Text:         out.Text,
		Utterances:   out.Utterances,
		SpeakerCount: out.SpeakerCount,
		ErrorMessage: out.Error,
	}, nil
}

// do executes a request and decodes a 2xx JSON body into out. Network errors
// map to ErrUnavailable, non-2xx answers to RejectedError with body detail.
func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("transcribe: %s %s: %v: %w", req.Method, req.URL.Path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("transcribe: decode %s response: %v: %w", req.URL.Path, err, ErrUnavailable)
	}
	return nil
}
