// Package parser finds time mentions in chat messages written in English
// or Russian.
//
// Parse runs, in order:
//  1. NFC normalization and code stripping (fenced blocks, inline `code`).
//  2. Every matcher and every ignore rule over the cleaned text.
//  3. Greedy span resolution: earliest start, then longest span. A span
//     claimed by an ignore rule (versions, dates, ratings, floats, money,
//     units, UTC offsets) is never reconsidered by a looser matcher.
//  4. Range linking of mentions joined by "-" or "–".
//  5. Explicit timezone extraction on a copy with mention spans blanked.
//  6. Date anchor extraction and the language tag.
//
// A bare hour ("10", "в 10") is never a mention.
package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxMentions caps how many mentions one message yields.
const DefaultMaxMentions = 10

// Options tune a Parser.
type Options struct {
	// MaxMentions caps the mentions kept per message; 0 means DefaultMaxMentions.
	MaxMentions int
}

// Parser is safe for concurrent use; it holds only read-only state.
type Parser struct {
	dir         *tzdir.Directory
	cityRe      *regexp.Regexp
	maxMentions int
}

// New builds a Parser over dir.
func New(dir *tzdir.Directory, opts Options) *Parser {
	p := &Parser{dir: dir, maxMentions: opts.MaxMentions}
	if p.maxMentions <= 0 {
		p.maxMentions = DefaultMaxMentions
	}

	names := dir.Cities()
	if len(names) > 0 {
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = regexp.QuoteMeta(n)
		}
		// Longest names first so "New York" wins over any shorter name.
		p.cityRe = regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	}
	return p
}

// Parse never fails. A message without mentions yields an empty Result with
// an unknown language, no anchor and no timezone.
func (p *Parser) Parse(text string) Result {
	cleaned := stripCode(norm.NFC.String(text))

	mentions := resolveSpans(cleaned, p.candidates(cleaned))
	if len(mentions) == 0 {
		return Result{Language: lang.Unknown}
	}
	linkRanges(cleaned, mentions)
	mentions = capMentions(mentions, p.maxMentions)

	return Result{
		Language: detectLanguage(cleaned, mentions),
		Mentions: mentions,
		Timezone: p.extractTimezone(mask(cleaned, mentions), mentions),
		Anchor:   extractAnchor(cleaned),
	}
}

func (p *Parser) candidates(text string) []candidate {
	var all []candidate
	for i, m := range matchers {
		all = append(all, m.find(text, i)...)
	}
	return append(all, blocked(text)...)
}

// resolveSpans accepts candidates greedily by earliest start, then longest
// span. Ignore rules win exact ties, then matcher priority decides.
func resolveSpans(text string, cands []candidate) []Mention {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		if a.blocked != b.blocked {
			return a.blocked
		}
		return a.order < b.order
	})

	var out []Mention
	claimed := 0
	for _, c := range cands {
		if c.start < claimed {
			continue
		}
		claimed = c.end
		if c.blocked {
			continue
		}
		out = append(out, Mention{
			Hour:    c.hour,
			Minute:  c.minute,
			Style:   c.style,
			Raw:     text[c.start:c.end],
			Start:   c.start,
			End:     c.end,
			matcher: c.matcher,
			ru:      c.ru,
		})
	}
	return out
}

// linkRanges pairs neighbouring mentions separated only by a dash, left to
// right, so "10:00-11:00-12:00" links the first two and leaves the third.
func linkRanges(text string, mentions []Mention) {
	id := 0
	for i := 0; i+1 < len(mentions); i++ {
		gap := strings.TrimSpace(text[mentions[i].End:mentions[i+1].Start])
		if gap != "-" && gap != "–" && gap != "—" {
			continue
		}
		id++
		mentions[i].RangeID = id
		mentions[i+1].RangeID = id
		mentions[i+1].RangeEnd = true
		i++
	}
}

// capMentions keeps the first limit mentions without splitting a range.
func capMentions(mentions []Mention, limit int) []Mention {
	if len(mentions) <= limit {
		return mentions
	}
	out := mentions[:limit]
	if last := out[len(out)-1]; last.RangeID != 0 && !last.RangeEnd {
		out = out[:len(out)-1]
	}
	return out
}

// detectLanguage tags a message Russian when a Russian-only rule fired or
// the text has any Cyrillic, English otherwise.
func detectLanguage(text string, mentions []Mention) lang.Tag {
	for _, m := range mentions {
		if m.ru {
			return lang.RU
		}
	}
	if hasCyrillic(text) {
		return lang.RU
	}
	return lang.EN
}
