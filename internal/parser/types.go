package parser

import (
	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

// Style is how a time was written in the message. Output mirrors it.
type Style int

const (
	Style24h Style = iota
	Style12h
)

func (s Style) String() string {
	if s == Style12h {
		return "12h"
	}
	return "24h"
}

// Mention is one detected clock time. Start and End are byte offsets into
// the NFC-normalized message text.
type Mention struct {
	Hour   int
	Minute int
	Style  Style
	Raw    string
	Start  int
	End    int

	// RangeID links the two endpoints of a range; 0 means not a range.
	RangeID  int
	RangeEnd bool

	matcher string
	ru      bool
}

// IsRangeEndpoint reports whether m is one side of a range.
func (m Mention) IsRangeEndpoint() bool { return m.RangeID != 0 }

// Matcher names the grammar rule that produced m.
func (m Mention) Matcher() string { return m.matcher }

// AnchorKind is the kind of date anchor attached to a message.
type AnchorKind int

const (
	AnchorToday AnchorKind = iota
	AnchorTomorrow
	AnchorWeekday
)

func (k AnchorKind) String() string {
	switch k {
	case AnchorToday:
		return "today"
	case AnchorTomorrow:
		return "tomorrow"
	case AnchorWeekday:
		return "weekday"
	default:
		return "unknown"
	}
}

// Modifier qualifies a weekday anchor.
type Modifier int

const (
	ModDefaultNext Modifier = iota
	ModThis
	ModNext
	ModLast
)

func (m Modifier) String() string {
	switch m {
	case ModDefaultNext:
		return "default_next"
	case ModThis:
		return "this"
	case ModNext:
		return "next"
	case ModLast:
		return "last"
	default:
		return "unknown"
	}
}

// Anchor is the optional date qualifier of a message. Weekday uses
// 0=Monday .. 6=Sunday and is only meaningful for AnchorWeekday.
type Anchor struct {
	Kind     AnchorKind
	Weekday  int
	Modifier Modifier
	Raw      string
}

// TokenKind says how an explicit timezone token was recognized.
type TokenKind int

const (
	TokenUnresolved TokenKind = iota
	TokenCity
	TokenIANA
	TokenAbbreviation
	TokenOffset
)

func (k TokenKind) String() string {
	switch k {
	case TokenCity:
		return "city"
	case TokenIANA:
		return "iana"
	case TokenAbbreviation:
		return "abbreviation"
	case TokenOffset:
		return "offset"
	default:
		return "unresolved"
	}
}

// TimezoneToken is an explicit timezone reference found in a message. Zone
// is zero when Kind is TokenUnresolved; Raw keeps the offending text.
type TimezoneToken struct {
	Raw  string
	Kind TokenKind
	Zone tzdir.Zone
}

// Resolved reports whether the token maps to a known zone.
func (t TimezoneToken) Resolved() bool { return t.Kind != TokenUnresolved }

// Result is everything Parse found in one message.
type Result struct {
	Language lang.Tag
	Mentions []Mention
	Timezone *TimezoneToken
	Anchor   *Anchor
}

// Empty reports whether no time mention was found.
func (r Result) Empty() bool { return len(r.Mentions) == 0 }
