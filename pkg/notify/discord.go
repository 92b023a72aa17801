package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/cuemby/nodewatch/pkg/types"
)

// maxDiscordChars stays under Discord's 2000 character message limit
const maxDiscordChars = 1900

// MessageSender is the part of a discordgo session used for delivery
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordDispatcher posts events to a channel, mentioning the owner's
// linked Discord account when one is configured
type DiscordDispatcher struct {
	session   MessageSender
	channelID string
	users     map[string]string // owner -> Discord user ID
}

// NewDiscordSession creates a REST-only bot session
func NewDiscordSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	return discordgo.New("Bot " + token)
}

// NewDiscordDispatcher creates a dispatcher posting to channelID
func NewDiscordDispatcher(session MessageSender, channelID string, users map[string]string) *DiscordDispatcher {
	return &DiscordDispatcher{
		session:   session,
		channelID: strings.TrimSpace(channelID),
		users:     users,
	}
}

func (d *DiscordDispatcher) Send(ctx context.Context, userID string, event types.NotificationEvent) (int, error) {
	return d.SendBatch(ctx, userID, []types.NotificationEvent{event})
}

// SendBatch joins events into as few channel messages as fit the size limit
// and returns the number of messages posted
func (d *DiscordDispatcher) SendBatch(ctx context.Context, userID string, events []types.NotificationEvent) (int, error) {
	if d.session == nil || d.channelID == "" || len(events) == 0 {
		return 0, nil
	}

	var mentions []string
	prefix := ""
	if id := strings.TrimSpace(d.users[userID]); id != "" {
		mentions = []string{id}
		prefix = "<@" + id + "> "
	}

	sent := 0
	for _, msg := range chunkLines(prefix, events) {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		_, err := d.session.ChannelMessageSendComplex(d.channelID, &discordgo.MessageSend{
			Content: msg,
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Users: mentions,
			},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return sent, fmt.Errorf("discord send: %w", err)
		}
		sent++
	}
	return sent, nil
}

// chunkLines renders one line per event, prefix on every message
func chunkLines(prefix string, events []types.NotificationEvent) []string {
	var (
		msgs []string
		msg  string
	)
	for _, e := range events {
		line := e.Message
		if line == "" {
			continue
		}
		if len(prefix)+len(line) > maxDiscordChars {
			line = truncateUTF8(line, maxDiscordChars-len(prefix))
		}
		if msg == "" {
			msg = prefix + line
			continue
		}
		if len(msg)+1+len(line) > maxDiscordChars {
			msgs = append(msgs, msg)
			msg = prefix + line
			continue
		}
		msg += "\n" + line
	}
	if msg != "" {
		msgs = append(msgs, msg)
	}
	return msgs
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
