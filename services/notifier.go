package services

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Notifier delivers a text message to a human
type Notifier interface {
	Send(ctx context.Context, content string) error
}

// DiscordNotifier posts messages to one Discord channel
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordSession creates a REST-only Discord session for a bot token
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return session, nil
}

// NewDiscordNotifier sends to channelID through session
func NewDiscordNotifier(session *discordgo.Session, channelID string) *DiscordNotifier {
	return &DiscordNotifier{session: session, channelID: channelID}
}

// Send posts content to the channel
func (d *DiscordNotifier) Send(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.session.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send discord message to %s: %w", d.channelID, err)
	}
	return nil
}

// LogNotifier writes messages to the log; used when no Discord token is configured
type LogNotifier struct {
	logger *logrus.Logger
	sink   string
}

func NewLogNotifier(logger *logrus.Logger, sink string) *LogNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogNotifier{logger: logger, sink: sink}
}

// Send logs content
func (l *LogNotifier) Send(_ context.Context, content string) error {
	l.logger.WithField("sink", l.sink).Info(content)
	return nil
}
