// Package lang holds the language tags shared by the parser and the
// formatter.
package lang

import "strings"

// Tag identifies the language of a message or a reply.
type Tag string

const (
	Unknown Tag = ""
	EN      Tag = "en"
	RU      Tag = "ru"
)

// Parse maps a user supplied language code to a Tag. Anything that is not
// Russian falls back to English.
func Parse(s string) Tag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ru", "rus", "russian":
		return RU
	case "":
		return Unknown
	default:
		return EN
	}
}

// Or returns t, or fallback when t is Unknown.
func (t Tag) Or(fallback Tag) Tag {
	if t == Unknown {
		return fallback
	}
	return t
}

func (t Tag) String() string {
	if t == Unknown {
		return "unknown"
	}
	return string(t)
}
