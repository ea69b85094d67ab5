package format

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/parser"
	"github.com/hseinmoussa/tzbuddy/internal/resolver"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

var (
	testDir    = tzdir.MustDefault()
	testParser = parser.New(testDir, parser.Options{})
)

func newFormatter(t *testing.T, opts Options) *Formatter {
	t.Helper()
	f, err := New(testDir, opts)
	require.NoError(t, err)
	return f
}

// render parses text, resolves it on the given day at 12:00 UTC and
// formats it.
func render(t *testing.T, f *Formatter, day time.Time, text, sender string, mode Mode, targets ...string) string {
	t.Helper()
	r := resolver.New(testDir, func() time.Time { return day.Add(12 * time.Hour) })
	parsed := testParser.Parse(text)
	res := r.Resolve(parsed, sender, targets)
	require.Equal(t, resolver.Converted, res.Outcome, "text %q", text)
	return f.Format(res, parsed.Language, mode)
}

// Thursday.
var jan22 = time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)

// ── clock and date ──

func TestTime(t *testing.T) {
	tests := []struct {
		hour, minute int
		style        parser.Style
		tag          lang.Tag
		want         string
	}{
		{9, 5, parser.Style24h, lang.EN, "09:05"},
		{23, 30, parser.Style24h, lang.RU, "23:30"},
		{0, 5, parser.Style12h, lang.EN, "12:05 am"},
		{12, 0, parser.Style12h, lang.EN, "12:00 pm"},
		{15, 4, parser.Style12h, lang.EN, "3:04 pm"},
		{3, 0, parser.Style12h, lang.RU, "3:00 ночи"},
		{10, 0, parser.Style12h, lang.RU, "10:00 утра"},
		{15, 0, parser.Style12h, lang.RU, "3:00 дня"},
		{20, 15, parser.Style12h, lang.RU, "8:15 вечера"},
	}
	for _, tt := range tests {
		at := time.Date(2026, 1, 22, tt.hour, tt.minute, 0, 0, time.UTC)
		if got := Time(at, tt.style, tt.tag); got != tt.want {
			t.Errorf("Time(%02d:%02d, %s, %s) = %q; want %q", tt.hour, tt.minute, tt.style, tt.tag, got, tt.want)
		}
	}
}

func TestDate(t *testing.T) {
	d := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "Mon, Feb 2", Date(d, lang.EN))
	assert.Equal(t, "Пн, 2 фев", Date(d, lang.RU))
	assert.Equal(t, "Вс, 24 мая", Date(time.Date(2026, 5, 24, 0, 0, 0, 0, time.UTC), lang.RU))
}

// ── pair mode ──

func TestPairPlain(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "see you at 10:00 Amsterdam", "", PairMode, "Asia/Yerevan")
	assert.Equal(t, "10:00 Amsterdam → 13:00 Yerevan", got)
}

func TestPairAnchoredRollover(t *testing.T) {
	f := newFormatter(t, Options{})
	// Thursday Jan 29: "Monday" is Feb 2.
	day := time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC)
	got := render(t, f, day, "on Monday 23:30 Amsterdam", "", PairMode, "Asia/Yerevan")
	assert.Equal(t, "Mon, Feb 2 — 23:30 Amsterdam → Tue, Feb 3 — 02:30 Yerevan", got)
}

func TestPairSameZoneKeepsArrow(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "see you at 10:00", "Europe/Amsterdam", PairMode, "Europe/Amsterdam")
	assert.Equal(t, "10:00 Amsterdam → 10:00 Amsterdam", got)
}

func TestPairTomorrowBothSidesDated(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "meeting tomorrow at 10:30", "Europe/Amsterdam", PairMode, "Asia/Tokyo")
	assert.Equal(t, "Fri, Jan 23 — 10:30 Amsterdam → Fri, Jan 23 — 18:30 Tokyo", got)
}

func TestPairDayMarkers(t *testing.T) {
	f := newFormatter(t, Options{})

	got := render(t, f, jan22, "23:30", "Europe/Amsterdam", PairMode, "Asia/Tokyo")
	assert.Equal(t, "23:30 Amsterdam → 07:30 Tokyo (next day)", got)

	got = render(t, f, jan22, "01:00", "Europe/Amsterdam", PairMode, "America/Los_Angeles")
	assert.Equal(t, "01:00 Amsterdam → 16:00 Los Angeles (previous day)", got)

	got = render(t, f, jan22, "12:00", "Europe/Amsterdam", PairMode, "Asia/Tokyo")
	assert.NotContains(t, got, "(")
}

func TestPairStyleMirroring(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "call at 3pm", "America/New_York", PairMode, "Europe/Amsterdam")
	assert.Equal(t, "3:00 pm New York → 9:00 pm Amsterdam", got)
}

func TestPairRange(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "10:00–11:00", "Europe/Amsterdam", PairMode, "Asia/Yerevan")
	assert.Equal(t, "10:00–11:00 Amsterdam → 13:00–14:00 Yerevan", got)
}

func TestPairRussian(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "встреча в 15:00 по Москве", "", PairMode, "Europe/Amsterdam")
	assert.Equal(t, "15:00 Москва → 13:00 Амстердам", got)

	got = render(t, f, jan22, "созвон в 11 вечера", "Europe/Moscow", PairMode, "Asia/Tokyo")
	assert.Equal(t, "11:00 вечера Москва → 5:00 утра Токио (на следующий день)", got)
}

func TestAggregationKeepsDuplicates(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "10:00 and 10:00 again, then 14:00", "Europe/Amsterdam", PairMode, "UTC")
	assert.Equal(t, []string{
		"10:00 Amsterdam → 09:00 UTC",
		"10:00 Amsterdam → 09:00 UTC",
		"14:00 Amsterdam → 13:00 UTC",
	}, strings.Split(got, "\n"))
}

func TestNotConvertedRendersEmpty(t *testing.T) {
	f := newFormatter(t, Options{})
	assert.Empty(t, f.Format(resolver.Resolution{Outcome: resolver.NeedsOnboarding}, lang.EN, PairMode))
	assert.Empty(t, f.Format(resolver.Resolution{Outcome: resolver.NoMention}, lang.EN, GroupMode))
}

// ── group mode ──

func TestGroupOrderedByOffset(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "10:00", "Europe/Amsterdam", GroupMode,
		"Asia/Tokyo", "America/New_York", "Asia/Yerevan", "Europe/London")
	assert.Equal(t, "10:00 Amsterdam, 04:00 New York, 09:00 London, 13:00 Yerevan, 18:00 Tokyo", got)
}

func TestGroupOrderingInvariant(t *testing.T) {
	f := newFormatter(t, Options{})
	targets := []string{"Australia/Sydney", "America/Los_Angeles", "Asia/Kolkata", "UTC", "Europe/Moscow", "America/Chicago"}
	r := resolver.New(testDir, func() time.Time { return jan22.Add(12 * time.Hour) })
	res := r.Resolve(testParser.Parse("10:00"), "Europe/Amsterdam", targets)
	require.Equal(t, resolver.Converted, res.Outcome)

	u := units(res.Conversions)[0]
	order := f.orderTargets(res, u, lang.EN)
	require.Len(t, order, len(targets))
	prev := -24 * 3600
	for _, zi := range order {
		_, off := at(u.start, zi).Zone()
		if off < prev {
			t.Fatalf("offset %d listed after %d", off, prev)
		}
		prev = off
	}
}

func TestGroupTiesByLabel(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "10:00", "UTC", GroupMode, "Europe/Paris", "Europe/Berlin", "Europe/Amsterdam")
	assert.Equal(t, "10:00 UTC, 11:00 Amsterdam, 11:00 Berlin, 11:00 Paris", got)
}

func TestGroupAnchoredSharedDate(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "tomorrow 10:00", "Europe/Amsterdam", GroupMode, "Asia/Yerevan", "Europe/London")
	assert.Equal(t, "Fri, Jan 23 — 10:00 Amsterdam, 09:00 London, 13:00 Yerevan", got)
}

func TestGroupAnchoredDifferentDates(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "tomorrow 23:30", "Europe/Amsterdam", GroupMode, "Asia/Tokyo")
	assert.Equal(t, "Fri, Jan 23 — 23:30 Amsterdam; Sat, Jan 24 — 07:30 Tokyo", got)
}

func TestGroupMarkers(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "23:30", "Europe/Amsterdam", GroupMode, "Asia/Tokyo", "Europe/London")
	assert.Equal(t, "23:30 Amsterdam, 22:30 London, 07:30 Tokyo (next day)", got)
}

func TestGroupRange(t *testing.T) {
	f := newFormatter(t, Options{})
	got := render(t, f, jan22, "10:00-11:00", "Europe/Amsterdam", GroupMode, "Asia/Yerevan")
	assert.Equal(t, "10:00–11:00 Amsterdam, 13:00–14:00 Yerevan", got)
}

func TestGroupMaxTargets(t *testing.T) {
	f := newFormatter(t, Options{MaxTargets: 2})
	got := render(t, f, jan22, "10:00", "Europe/Amsterdam", GroupMode,
		"Asia/Tokyo", "America/New_York", "Asia/Yerevan")
	assert.Equal(t, "10:00 Amsterdam, 04:00 New York, 13:00 Yerevan", got)
}

// ── messages ──

func TestMessages(t *testing.T) {
	f := newFormatter(t, Options{})

	assert.Equal(t, "I don't know your timezone yet. Set it with: /tz set Europe/Amsterdam", f.Onboarding(lang.EN))
	assert.True(t, strings.HasPrefix(f.Onboarding(lang.RU), "Я не знаю ваш часовой пояс."))
	assert.Equal(t, "I couldn't recognize timezone **Eindhoven**.\nTry using an IANA timezone, e.g.: `Europe/Berlin`.",
		f.UnknownTimezone(lang.EN, "Eindhoven"))
	assert.Contains(t, f.UnknownTimezone(lang.RU, "IST"), "**IST**")
	assert.Contains(t, f.DiscordPrompt(lang.EN), "Time detected")
	assert.Contains(t, f.DiscordPrompt(lang.RU), "Найдено время")

	// Unknown language falls back to English.
	assert.Equal(t, f.Onboarding(lang.EN), f.Onboarding(lang.Unknown))
}

func TestDayMarkerTemplates(t *testing.T) {
	m, err := DefaultMessages()
	require.NoError(t, err)
	assert.Equal(t, "", m.dayMarker(lang.EN, 0))
	assert.Equal(t, "(+2 days)", m.dayMarker(lang.EN, 2))
	assert.Equal(t, "(-2 days)", m.dayMarker(lang.EN, -2))
	assert.Equal(t, "(накануне)", m.dayMarker(lang.RU, -1))
}

func TestParseMessagesMissingKey(t *testing.T) {
	_, err := ParseMessages([]byte("en:\n  plain: \"{time}\"\nru:\n  plain: \"{time}\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing key")

	_, err = ParseMessages([]byte("en: {}\n"))
	require.Error(t, err)
}
