package parser

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

var (
	reFenced = []*regexp.Regexp{
		regexp.MustCompile("(?s)```.*?```"),
		regexp.MustCompile(`(?s)'''.*?'''`),
		regexp.MustCompile(`(?s)""".*?"""`),
	}
	reInlineCode = regexp.MustCompile("`[^`]*`")
)

// stripCode blanks fenced blocks and then inline code spans. Blanked bytes
// become spaces so every offset still points at the same place in the
// original text.
func stripCode(text string) string {
	b := []byte(text)
	for _, re := range reFenced {
		for _, loc := range re.FindAllIndex(b, -1) {
			blank(b, loc[0], loc[1])
		}
	}
	for _, loc := range reInlineCode.FindAllIndex(b, -1) {
		blank(b, loc[0], loc[1])
	}
	return string(b)
}

// mask blanks the given spans.
func mask(text string, mentions []Mention) string {
	b := []byte(text)
	for _, m := range mentions {
		blank(b, m.Start, m.End)
	}
	return string(b)
}

func blank(b []byte, start, end int) {
	for i := start; i < end; i++ {
		b[i] = ' '
	}
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// runeBefore returns the rune ending at byte offset i, or -1 at the start.
func runeBefore(s string, i int) rune {
	if i <= 0 {
		return -1
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r
}

// runeAt returns the rune starting at byte offset i, or -1 at the end.
func runeAt(s string, i int) rune {
	if i >= len(s) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r
}

// bounded reports whether s[start:end] is not glued to surrounding word
// characters. It stands in for \b, which Go's regexp only defines for ASCII.
func bounded(s string, start, end int) bool {
	if start < end {
		if first := runeAt(s, start); isWordRune(first) && isWordRune(runeBefore(s, start)) {
			return false
		}
		if last := runeBefore(s, end); isWordRune(last) && isWordRune(runeAt(s, end)) {
			return false
		}
	}
	return true
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
