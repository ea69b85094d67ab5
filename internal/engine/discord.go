package engine

import (
	"context"
	"fmt"

	"github.com/hseinmoussa/tzbuddy/internal/format"
	"github.com/hseinmoussa/tzbuddy/internal/lang"
)

// DiscordMessage is a message observed in a guild channel.
type DiscordMessage struct {
	GuildID   string
	ChannelID string
	SenderID  string
	Text      string
	IsBot     bool
	IsEdit    bool
}

// DiscordDetect decides whether a channel message gets the public "convert
// for me" prompt. Conversions are never posted publicly on Discord.
func (e *Engine) DiscordDetect(ctx context.Context, msg DiscordMessage) (Reply, error) {
	req := e.begin(Discord, "detect")

	if msg.IsBot && e.opts.IgnoreBots {
		return req.reply(Ignored, "", lang.Unknown), nil
	}
	if msg.IsEdit && !e.opts.RespondToEdited {
		return req.reply(Ignored, "", lang.Unknown), nil
	}
	monitored, err := e.store.ChannelMonitored(ctx, msg.GuildID, msg.ChannelID)
	if err != nil {
		return Reply{}, fmt.Errorf("check monitored channel: %w", err)
	}
	if !monitored {
		return req.reply(Ignored, "", lang.Unknown), nil
	}

	parsed := e.parser.Parse(msg.Text)
	if parsed.Empty() {
		return req.reply(NoMention, "", parsed.Language), nil
	}

	e.logEvent(ctx, req, Event{
		Platform:  Discord,
		Name:      EventDiscordTimeDetected,
		ScopeID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		UserID:    msg.SenderID,
		Metadata:  map[string]any{"times_detected": len(parsed.Mentions)},
	})

	tag := parsed.Language.Or(lang.EN)
	return req.reply(Prompt, e.format.DiscordPrompt(tag), tag), nil
}

// DiscordConvert answers a click on the prompt button. The original
// message's explicit zone or its sender's zone is the source; the
// clicker's zone is the only target.
func (e *Engine) DiscordConvert(ctx context.Context, text, senderID, clickerID string) (Reply, error) {
	req := e.begin(Discord, "convert")

	settings, err := e.store.UserSettings(ctx, Discord, clickerID)
	if err != nil {
		return Reply{}, fmt.Errorf("load clicker settings: %w", err)
	}
	if settings.Muted {
		return req.reply(Ignored, "", lang.Unknown), nil
	}

	parsed := e.parser.Parse(text)
	if parsed.Empty() {
		return req.reply(NoMention, "", parsed.Language), nil
	}

	clickerZone, err := e.store.UserTimezone(ctx, Discord, clickerID)
	if err != nil {
		return Reply{}, fmt.Errorf("lookup clicker timezone: %w", err)
	}

	var targets []string
	if clickerZone != "" {
		targets = []string{clickerZone}
	}
	c, err := e.convert(ctx, req, Discord, parsed, senderID, targets, format.PairMode)
	if err != nil {
		return Reply{}, err
	}
	if c.reply.Outcome != Converted && c.reply.Outcome != Failed {
		return c.reply, nil
	}
	if clickerZone == "" {
		// Source known, but nothing to convert into.
		tag := parsed.Language.Or(lang.EN)
		return req.reply(NeedsOnboarding, e.format.Onboarding(tag), tag), nil
	}

	e.logEvent(ctx, req, Event{
		Platform: Discord,
		Name:     EventDiscordConvertClicked,
		UserID:   clickerID,
		Metadata: map[string]any{"source_tz_reason": sourceReason(parsed)},
	})
	return c.reply, nil
}
