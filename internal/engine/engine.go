// Package engine wires the parser, resolver and formatter to a chat
// platform. It reads sender/recipient settings and writes analytics events
// through a Store; everything else is pure computation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hseinmoussa/tzbuddy/internal/format"
	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/logging"
	"github.com/hseinmoussa/tzbuddy/internal/parser"
	"github.com/hseinmoussa/tzbuddy/internal/resolver"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

// Platform names a chat platform.
type Platform string

const (
	Discord  Platform = "discord"
	Telegram Platform = "telegram"
)

// Settings are the per-user switches the engine honours.
type Settings struct {
	Muted     bool
	DMEnabled bool
}

// Event is one analytics row.
type Event struct {
	Platform  Platform
	Name      string
	ScopeID   string
	ChannelID string
	UserID    string
	Metadata  map[string]any
}

// Event names written by the engine.
const (
	EventDiscordTimeDetected   = "discord_time_detected"
	EventDiscordConvertClicked = "discord_convert_button_clicked"
	EventTelegramPublicReply   = "telegram_public_reply_sent"
	EventTelegramDMSent        = "telegram_dm_sent"
)

// Store is everything the engine reads and writes. A missing user or chat
// is not an error: it reads as the zero value.
type Store interface {
	UserTimezone(ctx context.Context, platform Platform, userID string) (string, error)
	ActiveTimezones(ctx context.Context, chatID string) ([]string, error)
	UserSettings(ctx context.Context, platform Platform, userID string) (Settings, error)
	TouchMember(ctx context.Context, chatID, userID string) error
	MonitoringEnabled(ctx context.Context, chatID string) (bool, error)
	ChannelMonitored(ctx context.Context, guildID, channelID string) (bool, error)
	LogEvent(ctx context.Context, ev Event) error
}

// Outcome is what the adapter should do with a Reply.
type Outcome int

const (
	// NoMention means no reply.
	NoMention Outcome = iota
	// Converted carries the rendered conversion.
	Converted
	// NeedsOnboarding carries the "set your timezone" prompt.
	NeedsOnboarding
	// UnknownTimezone carries the IANA hint for an unrecognized zone.
	UnknownTimezone
	// Prompt is the Discord public message with the convert button.
	Prompt
	// Ignored means the message was filtered before parsing (bot, edit,
	// unmonitored, muted) and gets no reply.
	Ignored
	// Failed means no target zone could be loaded.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoMention:
		return "no_mention"
	case Converted:
		return "converted"
	case NeedsOnboarding:
		return "needs_onboarding"
	case UnknownTimezone:
		return "unknown_timezone"
	case Prompt:
		return "prompt"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Replies reports whether the outcome produces a message to send.
func (o Outcome) Replies() bool {
	switch o {
	case NoMention, Ignored:
		return false
	}
	return true
}

// Reply is the engine's answer to one platform event.
type Reply struct {
	Outcome   Outcome
	Text      string
	Language  lang.Tag
	RequestID string
}

// Options tune an Engine.
type Options struct {
	MaxMentions     int
	MaxTargets      int
	RespondToEdited bool
	IgnoreBots      bool
	Now             func() time.Time
	Logger          *slog.Logger
}

// Engine is safe for concurrent use if its Store is.
type Engine struct {
	store    Store
	parser   *parser.Parser
	resolver *resolver.Resolver
	format   *format.Formatter
	opts     Options
	log      *slog.Logger
}

// New builds an Engine over dir and store.
func New(dir *tzdir.Directory, store Store, opts Options) (*Engine, error) {
	f, err := format.New(dir, format.Options{MaxTargets: opts.MaxTargets})
	if err != nil {
		return nil, fmt.Errorf("formatter: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		parser:   parser.New(dir, parser.Options{MaxMentions: opts.MaxMentions}),
		resolver: resolver.New(dir, opts.Now),
		format:   f,
		opts:     opts,
		log:      logger,
	}, nil
}

// Parse exposes the parser for adapters and the CLI.
func (e *Engine) Parse(text string) parser.Result { return e.parser.Parse(text) }

// request is the per-call logging scope.
type request struct {
	id  string
	log *slog.Logger
}

func (e *Engine) begin(platform Platform, op string) request {
	id := uuid.NewString()
	return request{id: id, log: e.log.With(logging.FieldRequestID, id, logging.FieldPlatform, string(platform), logging.FieldOp, op)}
}

func (r request) reply(out Outcome, text string, tag lang.Tag) Reply {
	r.log.Debug("handled", logging.FieldOutcome, out.String(), "lang", tag.String())
	return Reply{Outcome: out, Text: text, Language: tag, RequestID: r.id}
}

// logEvent is best-effort: a failed analytics write never blocks a reply.
func (e *Engine) logEvent(ctx context.Context, req request, ev Event) {
	if err := e.store.LogEvent(ctx, ev); err != nil {
		req.log.Warn("log event failed", "event", ev.Name, "error", err)
	}
}

// conversion is the shared parse-resolve-format step. senderID is whose
// stored zone is the fallback source; targets are the zones to convert to.
type conversion struct {
	reply Reply
	res   resolver.Resolution
}

func (e *Engine) convert(ctx context.Context, req request, platform Platform, parsed parser.Result,
	senderID string, targets []string, mode format.Mode) (conversion, error) {
	tag := parsed.Language.Or(lang.EN)

	sender := ""
	if parsed.Timezone == nil && senderID != "" {
		tz, err := e.store.UserTimezone(ctx, platform, senderID)
		if err != nil {
			return conversion{}, fmt.Errorf("lookup sender timezone: %w", err)
		}
		sender = tz
	}

	res := e.resolver.Resolve(parsed, sender, targets)
	if len(res.Skipped) > 0 {
		req.log.Warn("skipped target zones", "zones", res.Skipped)
	}

	var r Reply
	switch res.Outcome {
	case resolver.NoMention:
		r = req.reply(NoMention, "", tag)
	case resolver.UnknownTimezone:
		r = req.reply(UnknownTimezone, e.format.UnknownTimezone(tag, res.RawToken), tag)
	case resolver.NeedsOnboarding:
		r = req.reply(NeedsOnboarding, e.format.Onboarding(tag), tag)
	default:
		if len(res.Targets) == 0 && len(res.Skipped) > 0 {
			r = req.reply(Failed, e.format.ConversionFailed(tag), tag)
			break
		}
		r = req.reply(Converted, e.format.Format(res, tag, mode), tag)
	}
	return conversion{reply: r, res: res}, nil
}

// sourceReason names where the source zone came from, for event metadata.
func sourceReason(parsed parser.Result) string {
	if parsed.Timezone != nil {
		return "explicit"
	}
	return "sender_profile"
}
