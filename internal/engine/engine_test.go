package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

// memStore is an in-memory Store.
type memStore struct {
	zones     map[string]string // platform/user -> zone
	settings  map[string]Settings
	active    map[string][]string
	monitored map[string]bool // guild/channel
	groups    map[string]bool
	members   map[string][]string
	events    []Event
	failAll   bool
	failLog   bool
}

func newMemStore() *memStore {
	return &memStore{
		zones:     map[string]string{},
		settings:  map[string]Settings{},
		active:    map[string][]string{},
		monitored: map[string]bool{},
		groups:    map[string]bool{},
		members:   map[string][]string{},
	}
}

var errStore = errors.New("store down")

func key(a, b string) string { return a + "/" + b }

func (m *memStore) UserTimezone(_ context.Context, p Platform, userID string) (string, error) {
	if m.failAll {
		return "", errStore
	}
	return m.zones[key(string(p), userID)], nil
}

func (m *memStore) ActiveTimezones(_ context.Context, chatID string) ([]string, error) {
	if m.failAll {
		return nil, errStore
	}
	return m.active[chatID], nil
}

func (m *memStore) UserSettings(_ context.Context, p Platform, userID string) (Settings, error) {
	if m.failAll {
		return Settings{}, errStore
	}
	return m.settings[key(string(p), userID)], nil
}

func (m *memStore) TouchMember(_ context.Context, chatID, userID string) error {
	if m.failAll {
		return errStore
	}
	m.members[chatID] = append(m.members[chatID], userID)
	return nil
}

func (m *memStore) MonitoringEnabled(_ context.Context, chatID string) (bool, error) {
	if m.failAll {
		return false, errStore
	}
	return m.groups[chatID], nil
}

func (m *memStore) ChannelMonitored(_ context.Context, guildID, channelID string) (bool, error) {
	if m.failAll {
		return false, errStore
	}
	return m.monitored[key(guildID, channelID)], nil
}

func (m *memStore) LogEvent(_ context.Context, ev Event) error {
	if m.failLog {
		return errStore
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) eventNames() []string {
	var names []string
	for _, ev := range m.events {
		names = append(names, ev.Name)
	}
	return names
}

func newEngine(t *testing.T, st Store) *Engine {
	t.Helper()
	e, err := New(tzdir.MustDefault(), st, Options{
		IgnoreBots: true,
		Now:        func() time.Time { return time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return e
}

// ── discord ──

func TestDiscordDetect(t *testing.T) {
	st := newMemStore()
	st.monitored[key("g1", "c1")] = true
	e := newEngine(t, st)
	ctx := context.Background()

	r, err := e.DiscordDetect(ctx, DiscordMessage{GuildID: "g1", ChannelID: "c1", SenderID: "u1", Text: "standup at 10:00"})
	require.NoError(t, err)
	assert.Equal(t, Prompt, r.Outcome)
	assert.Contains(t, r.Text, "Time detected")
	assert.Equal(t, lang.EN, r.Language)
	assert.NotEmpty(t, r.RequestID)
	assert.Equal(t, []string{EventDiscordTimeDetected}, st.eventNames())
	assert.Equal(t, 1, st.events[0].Metadata["times_detected"])

	r, err = e.DiscordDetect(ctx, DiscordMessage{GuildID: "g1", ChannelID: "c1", Text: "созвон в 15:00"})
	require.NoError(t, err)
	assert.Equal(t, lang.RU, r.Language)
	assert.Contains(t, r.Text, "Найдено время")
}

func TestDiscordDetectFilters(t *testing.T) {
	st := newMemStore()
	st.monitored[key("g1", "c1")] = true
	e := newEngine(t, st)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  DiscordMessage
		want Outcome
	}{
		{"bot", DiscordMessage{GuildID: "g1", ChannelID: "c1", Text: "10:00", IsBot: true}, Ignored},
		{"edit", DiscordMessage{GuildID: "g1", ChannelID: "c1", Text: "10:00", IsEdit: true}, Ignored},
		{"unmonitored", DiscordMessage{GuildID: "g1", ChannelID: "c2", Text: "10:00"}, Ignored},
		{"no mention", DiscordMessage{GuildID: "g1", ChannelID: "c1", Text: "в 10"}, NoMention},
		{"inline code", DiscordMessage{GuildID: "g1", ChannelID: "c1", Text: "`see you at 10:30`"}, NoMention},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.DiscordDetect(ctx, tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Outcome)
			assert.False(t, r.Outcome.Replies())
		})
	}
	assert.Empty(t, st.events)
}

func TestDiscordDetectRespondsToEdits(t *testing.T) {
	st := newMemStore()
	st.monitored[key("g1", "c1")] = true
	e, err := New(tzdir.MustDefault(), st, Options{RespondToEdited: true})
	require.NoError(t, err)

	r, err := e.DiscordDetect(context.Background(), DiscordMessage{GuildID: "g1", ChannelID: "c1", Text: "10:00", IsEdit: true})
	require.NoError(t, err)
	assert.Equal(t, Prompt, r.Outcome)
}

func TestDiscordConvert(t *testing.T) {
	st := newMemStore()
	st.zones[key("discord", "sender")] = "Europe/Amsterdam"
	st.zones[key("discord", "clicker")] = "Asia/Yerevan"
	e := newEngine(t, st)

	r, err := e.DiscordConvert(context.Background(), "see you at 10:00", "sender", "clicker")
	require.NoError(t, err)
	assert.Equal(t, Converted, r.Outcome)
	assert.Equal(t, "10:00 Amsterdam → 13:00 Yerevan", r.Text)
	assert.Equal(t, []string{EventDiscordConvertClicked}, st.eventNames())
	assert.Equal(t, "sender_profile", st.events[0].Metadata["source_tz_reason"])
}

func TestDiscordConvertExplicitBeatsSender(t *testing.T) {
	st := newMemStore()
	st.zones[key("discord", "sender")] = "America/New_York"
	st.zones[key("discord", "clicker")] = "Asia/Yerevan"
	e := newEngine(t, st)

	r, err := e.DiscordConvert(context.Background(), "see you at 10:00 Amsterdam", "sender", "clicker")
	require.NoError(t, err)
	assert.Equal(t, "10:00 Amsterdam → 13:00 Yerevan", r.Text)
	assert.Equal(t, "explicit", st.events[0].Metadata["source_tz_reason"])
}

func TestDiscordConvertClickerInSourceZone(t *testing.T) {
	st := newMemStore()
	st.zones[key("discord", "sender")] = "Europe/Amsterdam"
	st.zones[key("discord", "clicker")] = "Europe/Amsterdam"
	e := newEngine(t, st)

	r, err := e.DiscordConvert(context.Background(), "see you at 10:00", "sender", "clicker")
	require.NoError(t, err)
	assert.Equal(t, Converted, r.Outcome)
	assert.Equal(t, "10:00 Amsterdam → 10:00 Amsterdam", r.Text)
}

func TestDiscordConvertOutcomes(t *testing.T) {
	st := newMemStore()
	st.zones[key("discord", "sender")] = "Europe/Amsterdam"
	st.zones[key("discord", "clicker")] = "Asia/Yerevan"
	st.settings[key("discord", "muted")] = Settings{Muted: true}
	e := newEngine(t, st)
	ctx := context.Background()

	r, err := e.DiscordConvert(ctx, "10:00", "sender", "muted")
	require.NoError(t, err)
	assert.Equal(t, Ignored, r.Outcome)

	r, err = e.DiscordConvert(ctx, "10:00", "nobody", "clicker")
	require.NoError(t, err)
	assert.Equal(t, NeedsOnboarding, r.Outcome)
	assert.Contains(t, r.Text, "/tz set")

	r, err = e.DiscordConvert(ctx, "10:00", "sender", "newcomer")
	require.NoError(t, err)
	assert.Equal(t, NeedsOnboarding, r.Outcome)

	r, err = e.DiscordConvert(ctx, "call at 10:00 Eindhoven", "sender", "clicker")
	require.NoError(t, err)
	assert.Equal(t, UnknownTimezone, r.Outcome)
	assert.Contains(t, r.Text, "**Eindhoven**")

	r, err = e.DiscordConvert(ctx, "nothing here", "sender", "clicker")
	require.NoError(t, err)
	assert.Equal(t, NoMention, r.Outcome)

	assert.Empty(t, st.events)
}

func TestDiscordConvertBrokenClickerZone(t *testing.T) {
	st := newMemStore()
	st.zones[key("discord", "sender")] = "Europe/Amsterdam"
	st.zones[key("discord", "clicker")] = "Mars/Olympus"
	e := newEngine(t, st)

	r, err := e.DiscordConvert(context.Background(), "10:00", "sender", "clicker")
	require.NoError(t, err)
	assert.Equal(t, Failed, r.Outcome)
	assert.Equal(t, "Could not convert time due to timezone resolution issue.", r.Text)
}

func TestDiscordConvertRussian(t *testing.T) {
	st := newMemStore()
	st.zones[key("discord", "clicker")] = "Europe/Amsterdam"
	e := newEngine(t, st)

	r, err := e.DiscordConvert(context.Background(), "встреча в 15:00 по Москве", "sender", "clicker")
	require.NoError(t, err)
	assert.Equal(t, lang.RU, r.Language)
	assert.Equal(t, "15:00 Москва → 13:00 Амстердам", r.Text)
}

// ── telegram ──

func TestTelegramPublic(t *testing.T) {
	st := newMemStore()
	st.groups["chat"] = true
	st.zones[key("telegram", "alice")] = "Europe/Amsterdam"
	st.active["chat"] = []string{"Asia/Tokyo", "Europe/Amsterdam", "America/New_York"}
	e := newEngine(t, st)

	r, err := e.TelegramPublic(context.Background(), TelegramMessage{ChatID: "chat", SenderID: "alice", Text: "sync at 10:00"})
	require.NoError(t, err)
	assert.Equal(t, Converted, r.Outcome)
	assert.Equal(t, "10:00 Amsterdam, 04:00 New York, 18:00 Tokyo", r.Text)
	assert.Equal(t, []string{"alice"}, st.members["chat"])

	require.Equal(t, []string{EventTelegramPublicReply}, st.eventNames())
	assert.Equal(t, 3, st.events[0].Metadata["active_timezones_count"])
	assert.Equal(t, false, st.events[0].Metadata["resolved_date"])
}

func TestTelegramPublicFilters(t *testing.T) {
	st := newMemStore()
	st.groups["on"] = true
	st.zones[key("telegram", "alice")] = "Europe/Amsterdam"
	st.active["on"] = []string{"Europe/Amsterdam"}
	e := newEngine(t, st)
	ctx := context.Background()

	r, err := e.TelegramPublic(ctx, TelegramMessage{ChatID: "off", SenderID: "alice", Text: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, Ignored, r.Outcome)
	assert.Empty(t, st.members["off"])

	r, err = e.TelegramPublic(ctx, TelegramMessage{ChatID: "on", SenderID: "bot", Text: "10:00", IsBot: true})
	require.NoError(t, err)
	assert.Equal(t, Ignored, r.Outcome)

	// Only the source zone is active.
	r, err = e.TelegramPublic(ctx, TelegramMessage{ChatID: "on", SenderID: "alice", Text: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, Ignored, r.Outcome)

	r, err = e.TelegramPublic(ctx, TelegramMessage{ChatID: "on", SenderID: "alice", Text: "version 10.3.0 ships"})
	require.NoError(t, err)
	assert.Equal(t, NoMention, r.Outcome)
	// The member was still seen.
	assert.Contains(t, st.members["on"], "alice")
}

func TestTelegramPublicOnboarding(t *testing.T) {
	st := newMemStore()
	st.groups["chat"] = true
	st.active["chat"] = []string{"Asia/Tokyo"}
	e := newEngine(t, st)

	r, err := e.TelegramPublic(context.Background(), TelegramMessage{ChatID: "chat", SenderID: "bob", Text: "созвон в 15:00"})
	require.NoError(t, err)
	assert.Equal(t, NeedsOnboarding, r.Outcome)
	assert.True(t, strings.HasPrefix(r.Text, "Я не знаю"))
	assert.Empty(t, st.events)
}

func TestTelegramDM(t *testing.T) {
	st := newMemStore()
	st.zones[key("telegram", "alice")] = "Europe/Amsterdam"
	st.zones[key("telegram", "bob")] = "Asia/Tokyo"
	st.settings[key("telegram", "bob")] = Settings{DMEnabled: true}
	e := newEngine(t, st)
	ctx := context.Background()
	msg := TelegramMessage{ChatID: "chat", SenderID: "alice", Text: "tomorrow 23:30"}

	r, err := e.TelegramDM(ctx, msg, "bob")
	require.NoError(t, err)
	assert.Equal(t, Converted, r.Outcome)
	assert.Equal(t, "Fri, Jan 23 — 23:30 Amsterdam → Sat, Jan 24 — 07:30 Tokyo", r.Text)
	require.Len(t, st.events, 1)
	assert.Equal(t, "bob", st.events[0].UserID)
	assert.Equal(t, "alice", st.events[0].Metadata["from_sender_id"])
}

func TestTelegramDMOptIn(t *testing.T) {
	st := newMemStore()
	st.zones[key("telegram", "alice")] = "Europe/Amsterdam"
	st.settings[key("telegram", "quiet")] = Settings{DMEnabled: true, Muted: true}
	st.settings[key("telegram", "nozone")] = Settings{DMEnabled: true}
	e := newEngine(t, st)
	ctx := context.Background()
	msg := TelegramMessage{ChatID: "chat", SenderID: "alice", Text: "10:00"}

	r, err := e.TelegramDM(ctx, msg, "stranger")
	require.NoError(t, err)
	assert.Equal(t, Ignored, r.Outcome)

	r, err = e.TelegramDM(ctx, msg, "quiet")
	require.NoError(t, err)
	assert.Equal(t, Ignored, r.Outcome)

	r, err = e.TelegramDM(ctx, msg, "nozone")
	require.NoError(t, err)
	assert.Equal(t, NeedsOnboarding, r.Outcome)
}

func TestTelegramDMFilters(t *testing.T) {
	st := newMemStore()
	st.zones[key("telegram", "alice")] = "Europe/Amsterdam"
	st.zones[key("telegram", "bob")] = "Asia/Tokyo"
	st.settings[key("telegram", "alice")] = Settings{DMEnabled: true}
	st.settings[key("telegram", "bob")] = Settings{DMEnabled: true}
	e := newEngine(t, st)
	ctx := context.Background()

	for name, msg := range map[string]TelegramMessage{
		"bot":  {ChatID: "chat", SenderID: "alice", Text: "10:00", IsBot: true},
		"edit": {ChatID: "chat", SenderID: "alice", Text: "10:00", IsEdit: true},
	} {
		r, err := e.TelegramDM(ctx, msg, "bob")
		require.NoError(t, err, name)
		assert.Equal(t, Ignored, r.Outcome, name)
	}

	// The sender never gets a private copy of their own message.
	r, err := e.TelegramDM(ctx, TelegramMessage{ChatID: "chat", SenderID: "alice", Text: "10:00"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, Ignored, r.Outcome)
	assert.Empty(t, st.events)
}

// ── errors ──

func TestStoreErrorsPropagate(t *testing.T) {
	st := newMemStore()
	st.failAll = true
	e := newEngine(t, st)
	ctx := context.Background()

	_, err := e.DiscordDetect(ctx, DiscordMessage{GuildID: "g", ChannelID: "c", Text: "10:00"})
	assert.ErrorIs(t, err, errStore)

	_, err = e.DiscordConvert(ctx, "10:00", "a", "b")
	assert.ErrorIs(t, err, errStore)

	_, err = e.TelegramPublic(ctx, TelegramMessage{ChatID: "c", Text: "10:00"})
	assert.ErrorIs(t, err, errStore)

	_, err = e.TelegramDM(ctx, TelegramMessage{ChatID: "c", Text: "10:00"}, "b")
	assert.ErrorIs(t, err, errStore)
}

func TestEventFailureDoesNotBlockReply(t *testing.T) {
	st := newMemStore()
	st.failLog = true
	st.monitored[key("g", "c")] = true
	e := newEngine(t, st)

	r, err := e.DiscordDetect(context.Background(), DiscordMessage{GuildID: "g", ChannelID: "c", Text: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, Prompt, r.Outcome)
}

func TestRequestIDsAreUnique(t *testing.T) {
	st := newMemStore()
	st.monitored[key("g", "c")] = true
	e := newEngine(t, st)
	ctx := context.Background()

	a, _ := e.DiscordDetect(ctx, DiscordMessage{GuildID: "g", ChannelID: "c", Text: "10:00"})
	b, _ := e.DiscordDetect(ctx, DiscordMessage{GuildID: "g", ChannelID: "c", Text: "10:00"})
	assert.NotEqual(t, a.RequestID, b.RequestID)
}
