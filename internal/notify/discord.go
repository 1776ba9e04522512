package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/alotth/audio-transcriber/internal/models"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts job notices to a single channel.
type Discord struct {
	session   discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real gateway.
	Session discordSession
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel is required")
	}
	session := opts.Session
	if session == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("notify: discord bot token is required")
		}
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		session = s
	}
	return &Discord{session: session, channelID: opts.ChannelID}, nil
}

// JobCompleted posts a completion notice.
func (d *Discord) JobCompleted(job *models.Job) error {
	return d.post(completedText(job))
}

// JobFailed posts a failure notice.
func (d *Discord) JobFailed(job *models.Job) error {
	return d.post(failedText(job))
}

func (d *Discord) post(text string) error {
	if _, err := d.session.ChannelMessageSend(d.channelID, text); err != nil {
		return fmt.Errorf("notify: discord post: %w", err)
	}
	return nil
}
