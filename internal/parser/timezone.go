package parser

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hseinmoussa/tzbuddy/internal/tzdir"
)

var (
	reIANA = regexp.MustCompile(`(?:Africa|America|Antarctica|Arctic|Asia|Atlantic|Australia|Europe|Indian|Pacific|Etc|US|Canada|Brazil|Mexico|Chile)(?:/[A-Z][A-Za-z0-9_+\-]*)+`)

	reAbbrShape = regexp.MustCompile(`[A-Z]{2,5}`)

	rePrefixedOffset = regexp.MustCompile(`(?i)(?:utc|gmt)\s?[+\-−]\d{1,2}(?::?\d{2})?`)
	reBareOffset     = regexp.MustCompile(`(?:^|[\s(])([+\-−]\d{2}:\d{2})`)

	reCyrillicWord = regexp.MustCompile(`\p{Cyrillic}[\p{Cyrillic}\-]*`)
	reNextWord     = regexp.MustCompile(`^[\p{L}][\p{L}_\-]*`)
	reZoneLikeAbbr = regexp.MustCompile(`^(?:[A-Z][SDM]T|[A-Z]{2}T|A[A-Z][SD]T|NZ[SD]T)$`)
)

// connectors may sit between a time and the place it refers to.
var connectors = map[string]bool{"in": true, "по": true}

// placeTails may follow a place name that closes a time phrase.
var placeTails = toSet("time", "please", "ok", "okay", "thanks", "sharp", "время", "пожалуйста")

// commonWords are capitalized words that never name a place.
var commonWords = toSet(
	"a", "an", "the", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with",
	"by", "from", "as", "is", "was", "are", "were", "be", "been", "have", "has", "had",
	"do", "does", "did", "will", "would", "could", "should", "may", "might", "can",
	"about", "into", "after", "before", "during", "since", "until", "while", "then",
	"i", "we", "you", "he", "she", "they", "it", "me", "us", "them", "my", "our", "your",
	"ok", "okay", "yes", "no", "please", "thanks", "see", "let", "lets", "meet", "call",
	"today", "tomorrow", "tonight", "yesterday", "next", "this", "last", "previous", "past",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"mon", "tue", "tues", "wed", "thu", "thur", "thurs", "fri", "sat", "sun",
	"january", "february", "march", "april", "june", "july", "august",
	"september", "october", "november", "december", "jan", "feb", "mar", "apr",
	"jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
	"morning", "afternoon", "evening", "night", "time", "sharp", "ish",
	"hi", "hey", "hello", "sure", "sorry", "great", "cool", "fine", "works", "sounds",
	"everyone", "everybody", "all", "team", "guys", "folks", "standup", "sync", "lunch",

	"и", "или", "а", "но", "в", "во", "на", "по", "с", "со", "к", "до", "после",
	"я", "мы", "ты", "вы", "он", "она", "они", "это", "да", "нет", "давайте", "давай",
	"сегодня", "завтра", "вчера", "послезавтра", "следующий", "этот", "прошлый",
	"понедельник", "вторник", "среда", "среду", "четверг", "пятница", "пятницу",
	"суббота", "субботу", "воскресенье", "утром", "днем", "днём", "вечером", "ночью",
	"созвон", "встреча", "время", "часов", "часа", "привет", "всем", "ок", "хорошо",
)

func toSet(items ...string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// Timezone extracts the explicit timezone token from text that has no time
// mentions to mask. Parse calls the same extractor on the masked text.
func (p *Parser) Timezone(text string) *TimezoneToken {
	return p.extractTimezone(stripCode(text), nil)
}

// extractTimezone tries curated cities, IANA ids, curated abbreviations and
// UTC offsets in that order. A resolved hit from any of them beats an
// unresolved one. With nothing resolved, a zone-shaped or capitalized word
// right after a time mention becomes an unresolved token.
func (p *Parser) extractTimezone(masked string, mentions []Mention) *TimezoneToken {
	if tok := p.findCity(masked); tok != nil {
		return tok
	}

	var unresolved *TimezoneToken
	if tok := p.findIANA(masked); tok != nil {
		if tok.Resolved() {
			return tok
		}
		unresolved = tok
	}
	if tok := p.findAbbreviation(masked); tok != nil {
		return tok
	}
	if tok := findOffset(masked); tok != nil {
		if tok.Resolved() {
			return tok
		}
		if unresolved == nil {
			unresolved = tok
		}
	}
	if unresolved != nil {
		return unresolved
	}
	return p.findUnknownNearTime(masked, mentions)
}

func (p *Parser) findCity(text string) *TimezoneToken {
	if p.cityRe != nil {
		for _, loc := range p.cityRe.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if !bounded(text, start, end) || runeBefore(text, start) == '/' || runeAt(text, end) == '/' {
				continue
			}
			raw := text[start:end]
			if name, z, ok := p.dir.City(raw); ok {
				return &TimezoneToken{Raw: name, Kind: TokenCity, Zone: z}
			}
		}
	}

	// Russian names after prepositions are usually inflected: "по Москве".
	for _, loc := range reCyrillicWord.FindAllStringIndex(text, -1) {
		if !bounded(text, loc[0], loc[1]) {
			continue
		}
		word := text[loc[0]:loc[1]]
		if utf8.RuneCountInString(word) < 5 {
			continue
		}
		if name, z, ok := p.dir.City(word); ok {
			return &TimezoneToken{Raw: name, Kind: TokenCity, Zone: z}
		}
	}
	return nil
}

func (p *Parser) findIANA(text string) *TimezoneToken {
	for _, loc := range reIANA.FindAllStringIndex(text, -1) {
		if !bounded(text, loc[0], loc[1]) {
			continue
		}
		raw := text[loc[0]:loc[1]]
		z, err := p.dir.IANA(raw)
		if err != nil {
			return &TimezoneToken{Raw: raw, Kind: TokenUnresolved}
		}
		return &TimezoneToken{Raw: raw, Kind: TokenIANA, Zone: z}
	}
	return nil
}

func (p *Parser) findAbbreviation(text string) *TimezoneToken {
	for _, loc := range reAbbrShape.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if !bounded(text, start, end) {
			continue
		}
		raw := text[start:end]
		if (raw == "UTC" || raw == "GMT") && followedBySignedDigit(text, end) {
			continue
		}
		if z, ok := p.dir.Abbreviation(raw); ok {
			return &TimezoneToken{Raw: raw, Kind: TokenAbbreviation, Zone: z}
		}
	}
	return nil
}

func followedBySignedDigit(text string, i int) bool {
	rest := strings.TrimLeft(text[i:], " ")
	for _, sign := range []string{"+", "-", "−"} {
		if strings.HasPrefix(rest, sign) {
			r := runeAt(rest, len(sign))
			return r >= '0' && r <= '9'
		}
	}
	return false
}

func findOffset(text string) *TimezoneToken {
	type hit struct{ start, end int }
	var hits []hit
	for _, loc := range rePrefixedOffset.FindAllStringIndex(text, -1) {
		hits = append(hits, hit{loc[0], loc[1]})
	}
	for _, loc := range reBareOffset.FindAllStringSubmatchIndex(text, -1) {
		if rangeDash(text, loc[2]) {
			continue
		}
		hits = append(hits, hit{loc[2], loc[3]})
	}

	var first *hit
	for i := range hits {
		h := &hits[i]
		if r := runeAt(text, h.end); r >= '0' && r <= '9' {
			continue
		}
		if isWordRune(runeAt(text, h.start)) && isWordRune(runeBefore(text, h.start)) {
			continue
		}
		if first == nil || h.start < first.start {
			first = h
		}
	}
	if first == nil {
		return nil
	}

	raw := text[first.start:first.end]
	z, err := tzdir.ParseOffset(raw)
	switch {
	case err == nil:
		return &TimezoneToken{Raw: raw, Kind: TokenOffset, Zone: z}
	case errors.Is(err, tzdir.ErrOffsetRange):
		return &TimezoneToken{Raw: raw, Kind: TokenUnresolved}
	}
	return nil
}

// findUnknownNearTime looks at the word right after each time mention,
// optionally past "in"/"по". An uncurated zone-like abbreviation (IST) or a
// capitalized word that isn't a common one and ends the phrase (Eindhoven) is
// returned as unresolved so the caller can ask for an IANA id instead.
func (p *Parser) findUnknownNearTime(text string, mentions []Mention) *TimezoneToken {
	for _, m := range mentions {
		word, next := wordAfter(text, m.End)
		if connectors[strings.ToLower(word)] {
			word, next = wordAfter(text, next)
		}
		if word == "" {
			continue
		}
		if reZoneLikeAbbr.MatchString(word) && !p.dir.IsAbbreviation(word) {
			return &TimezoneToken{Raw: word, Kind: TokenUnresolved}
		}
		first, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsUpper(first) || commonWords[strings.ToLower(word)] {
			continue
		}
		if isAllUpper(word) {
			continue
		}
		// "10:00 Eindhoven" or "10:00 Eindhoven time", not "10:00 Bob will join".
		if follower, _ := wordAfter(text, next); follower != "" && !placeTails[strings.ToLower(follower)] {
			continue
		}
		return &TimezoneToken{Raw: word, Kind: TokenUnresolved}
	}
	return nil
}

// wordAfter skips spaces and tabs from i and returns the letter run there
// and the offset just past it. It stops at punctuation and newlines.
func wordAfter(text string, i int) (string, int) {
	j := i
	for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
		j++
	}
	loc := reNextWord.FindStringIndex(text[j:])
	if loc == nil {
		return "", j
	}
	return text[j : j+loc[1]], j + loc[1]
}

func isAllUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
