package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	reToday    = regexp.MustCompile(`(?i)today|tonight|сегодня`)
	reTomorrow = regexp.MustCompile(`(?i)tomorrow|завтра`)
	reDayAfter = regexp.MustCompile(`(?i)after\s*$`)

	reWeekdayEN = regexp.MustCompile(`(?i)(?:(next|this|last|previous|past)\s+)?` +
		`(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|thurs|thur|mon|tue|wed|thu|fri|sat|sun)`)

	reWeekdayRU = regexp.MustCompile(`(?i)(?:(?:в|во)\s+)?` +
		`(?:(следующ\p{L}*|эт\p{L}*|прошл\p{L}*|тот|той)\s+)?` +
		`(понедельник\p{L}*|вторник\p{L}*|сред[аеуы]|четверг\p{L}*|пятниц[аеуы]|суббот[аеуы]|воскресень[еяю]|пн|вт|ср|чт|пт|сб|вс)` +
		`(\s+на\s+той\s+неделе)?`)
)

var weekdaysEN = map[string]int{
	"mon": 0, "monday": 0,
	"tue": 1, "tues": 1, "tuesday": 1,
	"wed": 2, "wednesday": 2,
	"thu": 3, "thur": 3, "thurs": 3, "thursday": 3,
	"fri": 4, "friday": 4,
	"sat": 5, "saturday": 5,
	"sun": 6, "sunday": 6,
}

// Russian weekday stems; inflected forms are matched by prefix.
var weekdaysRU = []struct {
	stem  string
	index int
}{
	{"понедельник", 0}, {"пн", 0},
	{"вторник", 1}, {"вт", 1},
	{"сред", 2}, {"ср", 2},
	{"четверг", 3}, {"чт", 3},
	{"пятниц", 4}, {"пт", 4},
	{"суббот", 5}, {"сб", 5},
	{"воскресень", 6}, {"вс", 6},
}

// extractAnchor finds the message's date anchor. Today beats tomorrow,
// which beats any weekday; among weekdays the earliest one wins.
func extractAnchor(text string) *Anchor {
	if loc := firstBounded(reToday, text); loc != nil {
		return &Anchor{Kind: AnchorToday, Raw: text[loc[0]:loc[1]]}
	}
	for _, loc := range reTomorrow.FindAllStringIndex(text, -1) {
		if !bounded(text, loc[0], loc[1]) {
			continue
		}
		// "day after tomorrow" is not tomorrow.
		if reDayAfter.MatchString(text[:loc[0]]) {
			continue
		}
		return &Anchor{Kind: AnchorTomorrow, Raw: text[loc[0]:loc[1]]}
	}

	en, enStart := weekdayEN(text)
	ru, ruStart := weekdayRU(text)
	switch {
	case en != nil && (ru == nil || enStart <= ruStart):
		return en
	case ru != nil:
		return ru
	}
	return nil
}

func firstBounded(re *regexp.Regexp, text string) []int {
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if bounded(text, loc[0], loc[1]) {
			return loc
		}
	}
	return nil
}

func weekdayEN(text string) (*Anchor, int) {
	for _, loc := range reWeekdayEN.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, loc[0], loc[1]) {
			continue
		}
		day := text[loc[4]:loc[5]]
		// Short forms collide with ordinary words ("sun", "wed", "sat"),
		// so they only count when capitalized.
		full := strings.HasSuffix(strings.ToLower(day), "day")
		if r, _ := utf8.DecodeRuneInString(day); !full && !unicode.IsUpper(r) {
			continue
		}
		a := &Anchor{
			Kind:     AnchorWeekday,
			Weekday:  weekdaysEN[strings.ToLower(day)],
			Modifier: ModDefaultNext,
			Raw:      text[loc[0]:loc[1]],
		}
		if loc[2] >= 0 {
			switch strings.ToLower(text[loc[2]:loc[3]]) {
			case "next":
				a.Modifier = ModNext
			case "this":
				a.Modifier = ModThis
			default:
				a.Modifier = ModLast
			}
		}
		return a, loc[0]
	}
	return nil, -1
}

func weekdayRU(text string) (*Anchor, int) {
	for _, loc := range reWeekdayRU.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, loc[0], loc[1]) {
			continue
		}
		day := strings.ToLower(text[loc[4]:loc[5]])
		idx := -1
		for _, w := range weekdaysRU {
			if strings.HasPrefix(day, w.stem) {
				idx = w.index
				break
			}
		}
		if idx < 0 {
			continue
		}
		a := &Anchor{
			Kind:     AnchorWeekday,
			Weekday:  idx,
			Modifier: ModDefaultNext,
			Raw:      text[loc[0]:loc[1]],
		}
		if loc[6] >= 0 {
			// "в пятницу на той неделе"
			a.Modifier = ModLast
			return a, loc[0]
		}
		if loc[2] >= 0 {
			mod := strings.ToLower(text[loc[2]:loc[3]])
			switch {
			case strings.HasPrefix(mod, "следующ"):
				a.Modifier = ModNext
			case strings.HasPrefix(mod, "эт"):
				a.Modifier = ModThis
			case strings.HasPrefix(mod, "прошл"), mod == "тот", mod == "той":
				a.Modifier = ModLast
			}
		}
		return a, loc[0]
	}
	return nil, -1
}
