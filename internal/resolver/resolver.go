// Package resolver picks the source timezone and calendar date of a parsed
// message and converts every mention into the target zones.
//
// Source zone priority:
//  1. an explicit, resolved timezone token in the message;
//  2. an explicit but unresolved token stops with UnknownTimezone;
//  3. the sender's stored zone;
//  4. otherwise NeedsOnboarding.
//
// Wall-clock times that fall in a DST gap are normalized forward, the way
// time.Date does (02:30 on a spring-forward night becomes 03:30).
package resolver

import (
	"time"

	"github.com/hseinmoussa/tzbuddy/internal/parser"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

// Outcome is the typed result of resolving one message.
type Outcome int

const (
	NoMention Outcome = iota
	Converted
	NeedsOnboarding
	UnknownTimezone
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
	default:
		return "unknown"
	}
}

// Target is one mention re-expressed in a target zone.
type Target struct {
	Zone tzdir.Zone
	Time time.Time
}

// Conversion is one mention resolved to an instant. Every Target.Time is
// the same instant as Source.
type Conversion struct {
	Mention parser.Mention
	Source  time.Time
	Targets []Target
}

// Resolution is the outcome for a whole message.
type Resolution struct {
	Outcome Outcome
	// RawToken is the unrecognized timezone text for UnknownTimezone.
	RawToken string

	SourceZone tzdir.Zone
	// Targets are the deduplicated target zones, source zone excluded, in
	// the order they were given.
	Targets []tzdir.Zone
	// DateIsConcrete is true when the message carried a date anchor.
	DateIsConcrete bool
	Conversions    []Conversion
	// Skipped lists target zone ids that could not be loaded.
	Skipped []string
}

// Resolver is safe for concurrent use.
type Resolver struct {
	dir *tzdir.Directory
	now func() time.Time
}

// New returns a Resolver. now defaults to time.Now.
func New(dir *tzdir.Directory, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{dir: dir, now: now}
}

// Resolve converts res. senderZone is the sender's stored zone ("" when
// unknown); targets are zone ids in any form tzdir.Directory.Resolve accepts.
func (r *Resolver) Resolve(res parser.Result, senderZone string, targets []string) Resolution {
	if res.Empty() {
		return Resolution{Outcome: NoMention}
	}

	var src tzdir.Zone
	switch {
	case res.Timezone != nil && res.Timezone.Resolved():
		src = res.Timezone.Zone
	case res.Timezone != nil:
		return Resolution{Outcome: UnknownTimezone, RawToken: res.Timezone.Raw}
	case senderZone != "":
		z, err := r.dir.Resolve(senderZone)
		if err != nil {
			// A stored zone that no longer loads is as good as none.
			return Resolution{Outcome: NeedsOnboarding}
		}
		src = z
	default:
		return Resolution{Outcome: NeedsOnboarding}
	}

	out := Resolution{
		Outcome:        Converted,
		SourceZone:     src,
		DateIsConcrete: res.Anchor != nil,
	}
	out.Targets, out.Skipped = r.targetZones(src, targets)

	today := r.now().In(src.Loc)
	date := today
	if res.Anchor != nil {
		date = AnchorDate(*res.Anchor, today)
	}

	starts := map[int]time.Time{}
	for _, m := range res.Mentions {
		at := wallClock(date, m.Hour, m.Minute, 0, src.Loc)
		if m.RangeEnd {
			if start, ok := starts[m.RangeID]; ok && !at.After(start) {
				at = wallClock(date, m.Hour, m.Minute, 1, src.Loc)
			}
		} else if m.RangeID != 0 {
			starts[m.RangeID] = at
		}

		c := Conversion{Mention: m, Source: at}
		for _, z := range out.Targets {
			c.Targets = append(c.Targets, Target{Zone: z, Time: at.In(z.Loc)})
		}
		out.Conversions = append(out.Conversions, c)
	}
	return out
}

// targetZones resolves, deduplicates and filters the target list.
func (r *Resolver) targetZones(src tzdir.Zone, ids []string) ([]tzdir.Zone, []string) {
	seen := map[string]bool{src.ID: true}
	var zones []tzdir.Zone
	var skipped []string
	for _, id := range ids {
		z, err := r.dir.Resolve(id)
		if err != nil {
			skipped = append(skipped, id)
			continue
		}
		if seen[z.ID] {
			continue
		}
		seen[z.ID] = true
		zones = append(zones, z)
	}
	return zones, skipped
}

func wallClock(date time.Time, hour, minute, addDays int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+addDays, hour, minute, 0, 0, loc)
}

// AnchorDate returns midnight of the anchored date in today's location.
//
//	today, tomorrow   today, +1 day
//	default_next      next occurrence strictly after today
//	next              default_next + 7 days
//	this              next occurrence, today included
//	last              most recent occurrence strictly before today
func AnchorDate(a parser.Anchor, today time.Time) time.Time {
	y, m, d := today.Date()
	loc := today.Location()

	delta := 0
	switch a.Kind {
	case parser.AnchorTomorrow:
		delta = 1
	case parser.AnchorWeekday:
		target := time.Weekday((a.Weekday + 1) % 7)
		forward := (int(target) - int(today.Weekday()) + 7) % 7
		switch a.Modifier {
		case parser.ModThis:
			delta = forward
		case parser.ModNext:
			if forward == 0 {
				forward = 7
			}
			delta = forward + 7
		case parser.ModLast:
			back := (int(today.Weekday()) - int(target) + 7) % 7
			if back == 0 {
				back = 7
			}
			delta = -back
		default:
			if forward == 0 {
				forward = 7
			}
			delta = forward
		}
	}
	return time.Date(y, m, d+delta, 0, 0, 0, 0, loc)
}

// DayDelta is the calendar-date difference between target and source,
// each read in its own zone.
func DayDelta(source, target time.Time) int {
	sy, sm, sd := source.Date()
	ty, tm, td := target.Date()
	a := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
