// Package format renders resolved conversions as chat text in English or
// Russian.
//
// Every rendered time mirrors the style of the mention it came from:
// "15:04" for 24-hour mentions, "3:04 pm" (EN) or "3:04 дня" (RU) for
// 12-hour ones.
package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/parser"
	"github.com/hseinmoussa/tzbuddy/internal/resolver"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

// Mode picks the reply layout.
type Mode int

const (
	// PairMode renders "SOURCE → TARGET" per mention and target. Used for
	// Discord button clicks and Telegram DMs.
	PairMode Mode = iota
	// GroupMode renders the source and every target on one line per
	// mention, targets ordered by UTC offset. Used for Telegram groups.
	GroupMode
)

// DefaultMaxTargets caps the target zones listed in GroupMode.
const DefaultMaxTargets = 12

const (
	rangeSep   = "–"
	groupSep   = ", "
	datedSep   = "; "
	mentionSep = "\n"
)

// Options tune a Formatter.
type Options struct {
	// MaxTargets caps GroupMode targets after ordering; 0 means DefaultMaxTargets.
	MaxTargets int
	// Messages overrides the embedded templates.
	Messages *Messages
}

// Formatter is safe for concurrent use.
type Formatter struct {
	dir        *tzdir.Directory
	msg        *Messages
	maxTargets int
}

// New returns a Formatter. It fails only when the embedded templates are
// broken.
func New(dir *tzdir.Directory, opts Options) (*Formatter, error) {
	f := &Formatter{dir: dir, msg: opts.Messages, maxTargets: opts.MaxTargets}
	if f.msg == nil {
		m, err := DefaultMessages()
		if err != nil {
			return nil, err
		}
		f.msg = m
	}
	if f.maxTargets <= 0 {
		f.maxTargets = DefaultMaxTargets
	}
	return f, nil
}

// Messages exposes the template table for non-conversion replies.
func (f *Formatter) Messages() *Messages { return f.msg }

// Onboarding is the "set your timezone" prompt.
func (f *Formatter) Onboarding(tag lang.Tag) string {
	return f.msg.Render(tag, KeyOnboarding, nil)
}

// UnknownTimezone is the hint for an unrecognized explicit zone.
func (f *Formatter) UnknownTimezone(tag lang.Tag, raw string) string {
	return f.msg.Render(tag, KeyUnknownTimezone, map[string]string{"raw": raw})
}

// DiscordPrompt is the public reply carrying the convert button.
func (f *Formatter) DiscordPrompt(tag lang.Tag) string {
	return f.msg.Render(tag, KeyDiscordPrompt, nil)
}

// ConversionFailed is the reply when a conversion could not be produced.
func (f *Formatter) ConversionFailed(tag lang.Tag) string {
	return f.msg.Render(tag, KeyConversionFailed, nil)
}

// unit is one rendered item: a single mention, or both ends of a range.
type unit struct {
	start *resolver.Conversion
	end   *resolver.Conversion
}

// units groups conversions in detection order, pairing range endpoints.
func units(convs []resolver.Conversion) []unit {
	var out []unit
	for i := 0; i < len(convs); i++ {
		u := unit{start: &convs[i]}
		if convs[i].Mention.IsRangeEndpoint() && !convs[i].Mention.RangeEnd &&
			i+1 < len(convs) && convs[i+1].Mention.RangeID == convs[i].Mention.RangeID {
			u.end = &convs[i+1]
			i++
		}
		out = append(out, u)
	}
	return out
}

// at returns the instant of c in zone slot zi; -1 is the source zone.
func at(c *resolver.Conversion, zi int) time.Time {
	if zi < 0 {
		return c.Source
	}
	return c.Targets[zi].Time
}

// Format renders res. Outcomes other than Converted render as "".
func (f *Formatter) Format(res resolver.Resolution, tag lang.Tag, mode Mode) string {
	if res.Outcome != resolver.Converted || len(res.Conversions) == 0 {
		return ""
	}
	tag = tag.Or(lang.EN)

	var lines []string
	for _, u := range units(res.Conversions) {
		if mode == GroupMode {
			lines = append(lines, f.groupLine(res, u, tag))
			continue
		}
		lines = append(lines, f.pairLines(res, u, tag)...)
	}
	return strings.Join(lines, mentionSep)
}

func (f *Formatter) pairLines(res resolver.Resolution, u unit, tag lang.Tag) []string {
	src := f.side(res, u, -1, tag, res.DateIsConcrete)
	if len(res.Targets) == 0 {
		// The reader already lives in the source zone.
		return []string{f.msg.Render(tag, KeyLinePair, map[string]string{"source": src, "target": src})}
	}
	lines := make([]string, 0, len(res.Targets))
	for i := range res.Targets {
		tgt := f.side(res, u, i, tag, res.DateIsConcrete)
		if !res.DateIsConcrete {
			tgt = f.withMarker(tgt, u, i, tag)
		}
		lines = append(lines, f.msg.Render(tag, KeyLinePair, map[string]string{"source": src, "target": tgt}))
	}
	return lines
}

func (f *Formatter) groupLine(res resolver.Resolution, u unit, tag lang.Tag) string {
	order := f.orderTargets(res, u, tag)

	if res.DateIsConcrete {
		zones := append([]int{-1}, order...)
		if f.sameDate(u, zones) {
			entries := make([]string, len(zones))
			for i, zi := range zones {
				entries[i] = f.side(res, u, zi, tag, false)
			}
			return f.msg.Render(tag, KeySharedDate, map[string]string{
				"date":    Date(at(u.start, -1), tag),
				"entries": strings.Join(entries, groupSep),
			})
		}
		entries := make([]string, len(zones))
		for i, zi := range zones {
			entries[i] = f.side(res, u, zi, tag, true)
		}
		return strings.Join(entries, datedSep)
	}

	entries := []string{f.side(res, u, -1, tag, false)}
	for _, zi := range order {
		entries = append(entries, f.withMarker(f.side(res, u, zi, tag, false), u, zi, tag))
	}
	return strings.Join(entries, groupSep)
}

// orderTargets returns target slots sorted by the UTC offset of the
// start instant, ties by label, capped at maxTargets.
func (f *Formatter) orderTargets(res resolver.Resolution, u unit, tag lang.Tag) []int {
	type slot struct {
		zi     int
		offset int
		label  string
	}
	slots := make([]slot, len(res.Targets))
	for i, z := range res.Targets {
		_, off := at(u.start, i).Zone()
		slots[i] = slot{zi: i, offset: off, label: f.dir.Label(z, tag)}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].offset != slots[j].offset {
			return slots[i].offset < slots[j].offset
		}
		return slots[i].label < slots[j].label
	})
	if len(slots) > f.maxTargets {
		slots = slots[:f.maxTargets]
	}
	out := make([]int, len(slots))
	for i, s := range slots {
		out[i] = s.zi
	}
	return out
}

func (f *Formatter) sameDate(u unit, zones []int) bool {
	want := dateKey(at(u.start, -1))
	for _, zi := range zones {
		if dateKey(at(u.start, zi)) != want {
			return false
		}
		if u.end != nil && dateKey(at(u.end, zi)) != want {
			return false
		}
	}
	return true
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

// side renders one zone of a unit, with or without its date.
func (f *Formatter) side(res resolver.Resolution, u unit, zi int, tag lang.Tag, dated bool) string {
	label := f.label(res, zi, tag)
	clock := Time(at(u.start, zi), u.start.Mention.Style, tag)
	if u.end != nil {
		clock += rangeSep + Time(at(u.end, zi), u.end.Mention.Style, tag)
	}
	if dated {
		return f.msg.Render(tag, KeyDated, map[string]string{
			"date":  Date(at(u.start, zi), tag),
			"time":  clock,
			"label": label,
		})
	}
	return f.msg.Render(tag, KeyPlain, map[string]string{"time": clock, "label": label})
}

func (f *Formatter) label(res resolver.Resolution, zi int, tag lang.Tag) string {
	if zi < 0 {
		return f.dir.Label(res.SourceZone, tag)
	}
	return f.dir.Label(res.Targets[zi], tag)
}

// withMarker appends the relative day marker of the range start.
func (f *Formatter) withMarker(s string, u unit, zi int, tag lang.Tag) string {
	marker := f.msg.dayMarker(tag, resolver.DayDelta(u.start.Source, at(u.start, zi)))
	if marker == "" {
		return s
	}
	return s + " " + marker
}

// Time renders t's wall clock in the given style.
func Time(t time.Time, style parser.Style, tag lang.Tag) string {
	if style == parser.Style24h {
		return t.Format("15:04")
	}
	h := t.Hour() % 12
	if h == 0 {
		h = 12
	}
	if tag == lang.RU {
		return fmt.Sprintf("%d:%02d %s", h, t.Minute(), ruDayPart(t.Hour()))
	}
	suffix := "am"
	if t.Hour() >= 12 {
		suffix = "pm"
	}
	return fmt.Sprintf("%d:%02d %s", h, t.Minute(), suffix)
}

func ruDayPart(hour int) string {
	switch {
	case hour <= 4:
		return "ночи"
	case hour <= 11:
		return "утра"
	case hour <= 16:
		return "дня"
	default:
		return "вечера"
	}
}

var (
	ruWeekdays = [...]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}
	ruMonths   = [...]string{"янв", "фев", "мар", "апр", "мая", "июн", "июл", "авг", "сен", "окт", "ноя", "дек"}
)

// Date renders t's calendar date with its weekday: "Mon, Feb 2" or "Пн, 2 фев".
func Date(t time.Time, tag lang.Tag) string {
	if tag == lang.RU {
		return fmt.Sprintf("%s, %d %s", ruWeekdays[t.Weekday()], t.Day(), ruMonths[t.Month()-1])
	}
	return t.Format("Mon, Jan 2")
}
