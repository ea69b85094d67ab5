package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// candidate is one span proposed by a matcher or claimed by an ignore rule.
type candidate struct {
	start, end   int
	hour, minute int
	style        Style
	matcher      string
	ru           bool
	order        int
	blocked      bool
}

// matcher is one grammar rule. toTime turns the submatches into a clock
// time; it returns ok=false when the words don't name a valid hour.
type matcher struct {
	name   string
	ru     bool
	re     *regexp.Regexp
	toTime func(g []string) (hour, minute int, style Style, ok bool)
}

const (
	reAmPm     = `([ap])\.?\s?m\.?`
	reHour12   = `(1[0-2]|0?[1-9])`
	reHour24   = `([01]?\d|2[0-3])`
	reMinute   = `([0-5]\d)`
	reRuQual   = `(утра|дня|вечера|ночи)`
	reEnHourW  = `(\d{1,2}|eleven|twelve|one|two|three|four|five|six|seven|eight|nine|ten)`
	reRuHourW  = `(одиннадцать|двенадцать|один|два|три|четыре|пять|шесть|семь|восемь|девять|десять|час)`
	reRuHourGn = `(одиннадцатого|двенадцатого|первого|второго|третьего|четв[её]ртого|пятого|шестого|седьмого|восьмого|девятого|десятого)`
)

var enHourWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

var ruHourWords = map[string]int{
	"час": 1, "один": 1, "два": 2, "три": 3, "четыре": 4, "пять": 5, "шесть": 6,
	"семь": 7, "восемь": 8, "девять": 9, "десять": 10, "одиннадцать": 11, "двенадцать": 12,

	"первого": 1, "второго": 2, "третьего": 3, "четвертого": 4, "четвёртого": 4,
	"пятого": 5, "шестого": 6, "седьмого": 7, "восьмого": 8, "девятого": 9,
	"десятого": 10, "одиннадцатого": 11, "двенадцатого": 12,
}

var ruMinuteWords = map[string]int{
	"пяти": 5, "десяти": 10, "четверти": 15, "двадцати": 20,
}

// matchers in priority order. When two candidates start at the same byte
// and have the same length, the earlier matcher wins.
var matchers = []matcher{
	{
		name: "hhmm_ampm",
		re:   regexp.MustCompile(`(?i)` + reHour12 + `[:.]` + reMinute + `\s*` + reAmPm),
		toTime: func(g []string) (int, int, Style, bool) {
			return to24(atoi(g[1]), g[3]), atoi(g[2]), Style12h, true
		},
	},
	{
		name: "ru_qualifier",
		ru:   true,
		re:   regexp.MustCompile(`(?i)(?:(?:в|во|к)\s+)?` + reHour12 + `(?::` + reMinute + `)?\s+` + reRuQual),
		toTime: func(g []string) (int, int, Style, bool) {
			return ruQualify(atoi(g[1]), g[3]), atoi(g[2]), Style12h, true
		},
	},
	{
		name: "ru_v_hhmm",
		ru:   true,
		re:   regexp.MustCompile(`(?i)(?:в|во|к)\s+` + reHour24 + `:` + reMinute),
		toTime: func(g []string) (int, int, Style, bool) {
			return atoi(g[1]), atoi(g[2]), Style24h, true
		},
	},
	{
		name: "hhmm",
		re:   regexp.MustCompile(reHour24 + `:` + reMinute),
		toTime: func(g []string) (int, int, Style, bool) {
			return atoi(g[1]), atoi(g[2]), Style24h, true
		},
	},
	{
		name: "hhhmm",
		re:   regexp.MustCompile(reHour24 + `[hH]` + reMinute),
		toTime: func(g []string) (int, int, Style, bool) {
			return atoi(g[1]), atoi(g[2]), Style24h, true
		},
	},
	{
		name: "ampm",
		re:   regexp.MustCompile(`(?i)` + reHour12 + `\s*` + reAmPm),
		toTime: func(g []string) (int, int, Style, bool) {
			return to24(atoi(g[1]), g[2]), 0, Style12h, true
		},
	},
	{
		name: "noon",
		re:   regexp.MustCompile(`(?i)noon`),
		toTime: func([]string) (int, int, Style, bool) {
			return 12, 0, Style12h, true
		},
	},
	{
		name: "midnight",
		re:   regexp.MustCompile(`(?i)midnight`),
		toTime: func([]string) (int, int, Style, bool) {
			return 0, 0, Style12h, true
		},
	},
	{
		name: "half_past",
		re:   regexp.MustCompile(`(?i)half\s+past\s+` + reEnHourW),
		toTime: func(g []string) (int, int, Style, bool) {
			h, ok := enHour(g[1])
			return h, 30, Style24h, ok
		},
	},
	{
		name: "quarter_past",
		re:   regexp.MustCompile(`(?i)(?:a\s+)?quarter\s+past\s+` + reEnHourW),
		toTime: func(g []string) (int, int, Style, bool) {
			h, ok := enHour(g[1])
			return h, 15, Style24h, ok
		},
	},
	{
		name: "quarter_to",
		re:   regexp.MustCompile(`(?i)(?:a\s+)?quarter\s+to\s+` + reEnHourW),
		toTime: func(g []string) (int, int, Style, bool) {
			h, ok := enHour(g[1])
			return hourBefore(h), 45, Style24h, ok
		},
	},
	{
		name: "ru_word_hour",
		ru:   true,
		re:   regexp.MustCompile(`(?i)(?:в|во|к)\s+` + reRuHourW + `(?:\s+(часов|часа|час))?(?:\s+` + reRuQual + `)?`),
		toTime: func(g []string) (int, int, Style, bool) {
			word := strings.ToLower(g[1])
			h := ruHourWords[word]
			switch {
			case g[3] != "":
				return ruQualify(h, g[3]), 0, Style12h, true
			case g[2] != "" || word == "час":
				return h, 0, Style24h, true
			}
			// "в три" on its own is a bare hour.
			return 0, 0, Style24h, false
		},
	},
	{
		name: "ru_noon_midnight",
		ru:   true,
		re:   regexp.MustCompile(`(?i)(?:(?:в|во|к)\s+)?(полдень|полночь|полуночь)`),
		toTime: func(g []string) (int, int, Style, bool) {
			if strings.EqualFold(g[1], "полдень") {
				return 12, 0, Style24h, true
			}
			return 0, 0, Style24h, true
		},
	},
	{
		name: "ru_half",
		ru:   true,
		re:   regexp.MustCompile(`(?i)(?:(?:в|к)\s+)?(?:пол|половин[аеуы]\s+)` + reRuHourGn),
		toTime: func(g []string) (int, int, Style, bool) {
			h, ok := ruHourWords[strings.ToLower(g[1])]
			return hourBefore(h), 30, Style24h, ok
		},
	},
	{
		name: "ru_bez",
		ru:   true,
		re:   regexp.MustCompile(`(?i)без\s+(четверти|двадцати|десяти|пяти|\d{1,2})\s+` + `(одиннадцать|двенадцать|один|два|три|четыре|пять|шесть|семь|восемь|девять|десять|час|\d{1,2})`),
		toTime: func(g []string) (int, int, Style, bool) {
			delta, ok := ruMinuteWords[strings.ToLower(g[1])]
			if !ok {
				delta = atoi(g[1])
			}
			h, ok := ruHourWords[strings.ToLower(g[2])]
			if !ok {
				h = atoi(g[2])
			}
			if delta < 1 || delta > 59 || h < 1 || h > 12 {
				return 0, 0, Style24h, false
			}
			return hourBefore(h), 60 - delta, Style24h, true
		},
	},
}

// find runs the matcher over text and returns its bounded candidates.
func (m matcher) find(text string, order int) []candidate {
	var out []candidate
	for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
		if !bounded(text, loc[0], loc[1]) {
			continue
		}
		g := make([]string, len(loc)/2)
		for i := range g {
			if loc[2*i] >= 0 {
				g[i] = text[loc[2*i]:loc[2*i+1]]
			}
		}
		h, min, style, ok := m.toTime(g)
		if !ok || h < 0 || h > 23 || min < 0 || min > 59 {
			continue
		}
		out = append(out, candidate{
			start: loc[0], end: loc[1],
			hour: h, minute: min, style: style,
			matcher: m.name, ru: m.ru, order: order,
		})
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// to24 applies an am/pm marker ("a" or "p") to a 1..12 hour.
func to24(h int, marker string) int {
	pm := strings.EqualFold(marker, "p")
	switch {
	case h == 12 && !pm:
		return 0
	case h != 12 && pm:
		return h + 12
	}
	return h
}

// ruQualify maps a 1..12 hour and a Russian part-of-day word to 0..23.
// "ночи" covers late evening too, so 9..11 ночи lands after 21:00.
func ruQualify(h int, q string) int {
	switch strings.ToLower(q) {
	case "утра":
		if h == 12 {
			return 0
		}
		return h
	case "ночи":
		switch {
		case h == 12:
			return 0
		case h >= 9:
			return h + 12
		}
		return h
	default: // дня, вечера
		if h == 12 {
			return 12
		}
		return h + 12
	}
}

func enHour(tok string) (int, bool) {
	if h, ok := enHourWords[strings.ToLower(tok)]; ok {
		return h, true
	}
	h, err := strconv.Atoi(tok)
	if err != nil || h < 1 || h > 12 {
		return 0, false
	}
	return h, true
}

// hourBefore gives the hour preceding h on a 12-hour dial.
func hourBefore(h int) int {
	if h <= 1 {
		return 12
	}
	return h - 1
}
