package parser

import (
	"regexp"
	"strings"
)

// blocker is an ignore rule. A span it claims can't become a time mention,
// and overlapping candidates that start later are dropped with it.
type blocker struct {
	name string
	re   *regexp.Regexp
	// group selects the submatch that forms the claimed span; 0 is the whole match.
	group int
	// applies filters raw matches by their span in text; nil accepts every match.
	applies func(text string, start, end int) bool
}

var blockers = []blocker{
	{
		// 10.3.0, 5.836, 10/11, 01/02/2026, 10/10, 10:30:45, 3,5
		name:    "numeric_cluster",
		re:      regexp.MustCompile(`\d+(?:[.,:/]\d+)+`),
		applies: func(text string, start, end int) bool { return notClockShaped(text[start:end]) },
	},
	{
		name: "version",
		re:   regexp.MustCompile(`(?i)(?:v|ver\.?\s*|version\s+|версия\s+|версии\s+)\d+(?:[.:]\d+)*`),
	},
	{
		name: "currency",
		re:   regexp.MustCompile(`(?i)[$€£₽¥]\s?\d+(?:[.,:]\d+)?|\d+(?:[.,:]\d+)?\s?(?:[$€£₽¥%]|руб|(?:usd|eur)\b)`),
	},
	{
		name: "unit",
		re:   regexp.MustCompile(`(?i)\d+(?:km|kg|cm|mm|mi|ft|gb|mb|kb|tb|ms|px|k|x|m|s|g|кг|км|м|с|р)`),
	},
	{
		name: "utc_offset",
		re:   regexp.MustCompile(`(?i)(?:utc|gmt)\s?[+\-−]\d{1,2}(?::?\d{2})?`),
	},
	{
		// A glued sign after a space or at the start reads as an offset.
		// 10:00-11:00 keeps its hyphen because a digit precedes it, and
		// 10:00 -11:00 because the sign follows a clock time.
		name:    "bare_offset",
		re:      regexp.MustCompile(`(?:^|[\s(])([+\-−]\d{2}:\d{2})`),
		group:   1,
		applies: func(text string, start, _ int) bool { return !rangeDash(text, start) },
	},
}

var reTrailingClock = regexp.MustCompile(`(?i)(?:^|[^\d:])\d{1,2}(?:[:hH]\d{2}(?:\s?[ap]\.?m\.?)?|\s?[ap]\.?m\.?)$`)

// rangeDash reports whether the minus sign at text[i] joins a range: it
// follows a clock time such as 10:00, 10h30 or 10am, spaces aside.
func rangeDash(text string, i int) bool {
	if text[i] == '+' {
		return false
	}
	return reTrailingClock.MatchString(strings.TrimRight(text[:i], " \t"))
}

// notClockShaped accepts every numeric cluster except a plain H:MM or HH:MM.
func notClockShaped(s string) bool {
	if strings.ContainsAny(s, "./,") {
		return true
	}
	return strings.Count(s, ":") > 1
}

// blocked returns the spans claimed by ignore rules.
func blocked(text string) []candidate {
	var out []candidate
	for _, b := range blockers {
		for _, loc := range b.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*b.group], loc[2*b.group+1]
			if start < 0 {
				continue
			}
			// A blocker starting mid-word (e.g. the "v" of "dev10") is not
			// what it looks like.
			if isWordRune(runeAt(text, start)) && isWordRune(runeBefore(text, start)) {
				continue
			}
			if b.applies != nil && !b.applies(text, start, end) {
				continue
			}
			out = append(out, candidate{start: start, end: end, matcher: b.name, blocked: true})
		}
	}
	return out
}
