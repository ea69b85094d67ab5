package delivery

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hseinmoussa/tzbuddy/internal/engine"
)

// Inbound event kinds.
const (
	KindDiscordMessage  = "discord_message"
	KindDiscordClick    = "discord_click"
	KindTelegramMessage = "telegram_message"
)

// maxLine bounds one inbound JSON line.
const maxLine = 1 << 20

// Inbound is one chat event read by Serve.
type Inbound struct {
	Kind         string   `json:"kind"`
	GuildID      string   `json:"guild_id,omitempty"`
	ChannelID    string   `json:"channel_id,omitempty"`
	ChatID       string   `json:"chat_id,omitempty"`
	SenderID     string   `json:"sender_id"`
	ClickerID    string   `json:"clicker_id,omitempty"`
	Text         string   `json:"text"`
	IsBot        bool     `json:"is_bot,omitempty"`
	IsEdit       bool     `json:"is_edit,omitempty"`
	DMRecipients []string `json:"dm_recipients,omitempty"`
}

// Handle runs one inbound event through the engine and returns the replies
// to send. Outcomes that do not reply are dropped.
func Handle(ctx context.Context, e *engine.Engine, in Inbound) ([]Envelope, error) {
	var out []Envelope
	keep := func(env Envelope, r engine.Reply) {
		if r.Outcome.Replies() {
			out = append(out, env)
		}
	}

	switch in.Kind {
	case KindDiscordMessage:
		r, err := e.DiscordDetect(ctx, engine.DiscordMessage{
			GuildID:   in.GuildID,
			ChannelID: in.ChannelID,
			SenderID:  in.SenderID,
			Text:      in.Text,
			IsBot:     in.IsBot,
			IsEdit:    in.IsEdit,
		})
		if err != nil {
			return nil, err
		}
		keep(envelope(engine.Discord, in.Kind, r, in.GuildID, in.ChannelID, ""), r)

	case KindDiscordClick:
		if in.ClickerID == "" {
			return nil, fmt.Errorf("%s: clicker_id is required", in.Kind)
		}
		r, err := e.DiscordConvert(ctx, in.Text, in.SenderID, in.ClickerID)
		if err != nil {
			return nil, err
		}
		// Button replies are ephemeral: addressed to the clicker only.
		keep(envelope(engine.Discord, in.Kind, r, in.GuildID, in.ChannelID, in.ClickerID), r)

	case KindTelegramMessage:
		msg := engine.TelegramMessage{
			ChatID:   in.ChatID,
			SenderID: in.SenderID,
			Text:     in.Text,
			IsBot:    in.IsBot,
			IsEdit:   in.IsEdit,
		}
		r, err := e.TelegramPublic(ctx, msg)
		if err != nil {
			return nil, err
		}
		keep(envelope(engine.Telegram, in.Kind, r, in.ChatID, "", ""), r)

		for _, rcpt := range in.DMRecipients {
			dm, err := e.TelegramDM(ctx, msg, rcpt)
			if err != nil {
				return out, fmt.Errorf("dm %s: %w", rcpt, err)
			}
			keep(envelope(engine.Telegram, "telegram_dm", dm, in.ChatID, "", rcpt), dm)
		}

	default:
		return nil, fmt.Errorf("unknown event kind %q", in.Kind)
	}
	return out, nil
}

// Stats summarizes a Serve run.
type Stats struct {
	Events  int
	Replies int
	Errors  int
}

// Serve reads JSON-lines events from r until EOF or ctx is done and
// delivers every reply to sink. Malformed lines and per-event failures are
// logged and counted; only read and write failures stop the loop.
func Serve(ctx context.Context, r io.Reader, e *engine.Engine, sink *Sink, log *slog.Logger) (Stats, error) {
	if log == nil {
		log = slog.Default()
	}
	var st Stats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		st.Events++

		var in Inbound
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			st.Errors++
			log.Warn("skipping malformed event", "line", st.Events, "error", err)
			continue
		}

		envs, err := Handle(ctx, e, in)
		if err != nil {
			st.Errors++
			log.Error("event failed", "line", st.Events, "kind", in.Kind, "error", err)
		}
		for _, env := range envs {
			if err := sink.Deliver(ctx, env); err != nil {
				return st, err
			}
			st.Replies++
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read events: %w", err)
	}
	return st, nil
}
