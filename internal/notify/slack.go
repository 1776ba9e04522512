package notify

import (
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/alotth/audio-transcriber/internal/models"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts job notices to a single channel.
type Slack struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	client := opts.Client
	if client == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("notify: slack bot token is required")
		}
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channelID: opts.ChannelID}, nil
}

// JobCompleted posts a completion notice.
func (s *Slack) JobCompleted(job *models.Job) error {
	return s.post(completedText(job))
}

// JobFailed posts a failure notice.
func (s *Slack) JobFailed(job *models.Job) error {
	return s.post(failedText(job))
}

func (s *Slack) post(text string) error {
	_, _, err := s.client.PostMessage(s.channelID, slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}
