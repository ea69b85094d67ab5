package engine

import (
	"context"
	"fmt"

	"github.com/hseinmoussa/tzbuddy/internal/format"
	"github.com/hseinmoussa/tzbuddy/internal/lang"
)

// TelegramMessage is a message observed in a Telegram group.
type TelegramMessage struct {
	ChatID   string
	SenderID string
	Text     string
	IsBot    bool
	IsEdit   bool
}

// TelegramPublic builds the public group reply: the source time plus the
// chat's active timezones.
func (e *Engine) TelegramPublic(ctx context.Context, msg TelegramMessage) (Reply, error) {
	req := e.begin(Telegram, "public")

	if msg.IsBot && e.opts.IgnoreBots {
		return req.reply(Ignored, "", lang.Unknown), nil
	}
	if msg.IsEdit && !e.opts.RespondToEdited {
		return req.reply(Ignored, "", lang.Unknown), nil
	}
	enabled, err := e.store.MonitoringEnabled(ctx, msg.ChatID)
	if err != nil {
		return Reply{}, fmt.Errorf("check monitoring: %w", err)
	}
	if !enabled {
		return req.reply(Ignored, "", lang.Unknown), nil
	}

	// Membership feeds the active timezone set; losing one touch is harmless.
	if err := e.store.TouchMember(ctx, msg.ChatID, msg.SenderID); err != nil {
		req.log.Warn("touch member failed", "chat_id", msg.ChatID, "error", err)
	}

	parsed := e.parser.Parse(msg.Text)
	if parsed.Empty() {
		return req.reply(NoMention, "", parsed.Language), nil
	}

	active, err := e.store.ActiveTimezones(ctx, msg.ChatID)
	if err != nil {
		return Reply{}, fmt.Errorf("load active timezones: %w", err)
	}

	c, err := e.convert(ctx, req, Telegram, parsed, msg.SenderID, active, format.GroupMode)
	if err != nil {
		return Reply{}, err
	}
	if c.reply.Outcome != Converted {
		return c.reply, nil
	}
	if len(c.res.Targets) == 0 {
		// Everyone in the chat shares the source zone.
		return req.reply(Ignored, "", c.reply.Language), nil
	}

	e.logEvent(ctx, req, Event{
		Platform: Telegram,
		Name:     EventTelegramPublicReply,
		ScopeID:  msg.ChatID,
		UserID:   msg.SenderID,
		Metadata: map[string]any{
			"times_detected":         len(parsed.Mentions),
			"source_tz_reason":       sourceReason(parsed),
			"resolved_date":          c.res.DateIsConcrete,
			"active_timezones_count": len(active),
		},
	})
	return c.reply, nil
}

// TelegramDM builds a private conversion of a group message for one
// recipient, if they opted in and are not muted.
func (e *Engine) TelegramDM(ctx context.Context, msg TelegramMessage, recipientID string) (Reply, error) {
	req := e.begin(Telegram, "dm")

	if msg.IsBot && e.opts.IgnoreBots {
		return req.reply(Ignored, "", lang.Unknown), nil
	}
	if msg.IsEdit && !e.opts.RespondToEdited {
		return req.reply(Ignored, "", lang.Unknown), nil
	}
	if recipientID == msg.SenderID {
		return req.reply(Ignored, "", lang.Unknown), nil
	}

	settings, err := e.store.UserSettings(ctx, Telegram, recipientID)
	if err != nil {
		return Reply{}, fmt.Errorf("load recipient settings: %w", err)
	}
	if settings.Muted || !settings.DMEnabled {
		return req.reply(Ignored, "", lang.Unknown), nil
	}

	parsed := e.parser.Parse(msg.Text)
	if parsed.Empty() {
		return req.reply(NoMention, "", parsed.Language), nil
	}

	recipientZone, err := e.store.UserTimezone(ctx, Telegram, recipientID)
	if err != nil {
		return Reply{}, fmt.Errorf("lookup recipient timezone: %w", err)
	}
	if recipientZone == "" {
		tag := parsed.Language.Or(lang.EN)
		return req.reply(NeedsOnboarding, e.format.Onboarding(tag), tag), nil
	}

	c, err := e.convert(ctx, req, Telegram, parsed, msg.SenderID, []string{recipientZone}, format.PairMode)
	if err != nil {
		return Reply{}, err
	}
	if c.reply.Outcome != Converted {
		return c.reply, nil
	}

	e.logEvent(ctx, req, Event{
		Platform: Telegram,
		Name:     EventTelegramDMSent,
		ScopeID:  msg.ChatID,
		UserID:   recipientID,
		Metadata: map[string]any{"from_sender_id": msg.SenderID},
	})
	return c.reply, nil
}
