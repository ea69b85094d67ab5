package format

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/valyala/fasttemplate"
	"gopkg.in/yaml.v3"

	"github.com/hseinmoussa/tzbuddy/internal/lang"
)

//go:embed messages.yaml
var defaultMessagesYAML []byte

// Key names one localized template.
type Key string

const (
	KeyLinePair         Key = "line_pair"
	KeyDated            Key = "dated"
	KeyPlain            Key = "plain"
	KeySharedDate       Key = "shared_date"
	KeyNextDay          Key = "next_day"
	KeyPreviousDay      Key = "previous_day"
	KeyDaysLater        Key = "days_later"
	KeyDaysEarlier      Key = "days_earlier"
	KeyOnboarding       Key = "onboarding"
	KeyUnknownTimezone  Key = "unknown_timezone"
	KeyDiscordPrompt    Key = "discord_prompt"
	KeyConversionFailed Key = "conversion_failed"
)

var allKeys = []Key{
	KeyLinePair, KeyDated, KeyPlain, KeySharedDate,
	KeyNextDay, KeyPreviousDay, KeyDaysLater, KeyDaysEarlier,
	KeyOnboarding, KeyUnknownTimezone, KeyDiscordPrompt, KeyConversionFailed,
}

// Messages is the compiled (language, key) template table.
type Messages struct {
	tpl map[lang.Tag]map[Key]*fasttemplate.Template
}

// DefaultMessages returns the embedded English and Russian templates.
func DefaultMessages() (*Messages, error) {
	return ParseMessages(defaultMessagesYAML)
}

// ParseMessages compiles a YAML document of the form
// {lang: {key: template}}. Every key must exist for both EN and RU.
func ParseMessages(data []byte) (*Messages, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	m := &Messages{tpl: make(map[lang.Tag]map[Key]*fasttemplate.Template)}
	for _, tag := range []lang.Tag{lang.EN, lang.RU} {
		set, ok := raw[string(tag)]
		if !ok {
			return nil, fmt.Errorf("messages: missing language %q", tag)
		}
		compiled := make(map[Key]*fasttemplate.Template, len(allKeys))
		for _, k := range allKeys {
			s, ok := set[string(k)]
			if !ok {
				return nil, fmt.Errorf("messages: %s: missing key %q", tag, k)
			}
			t, err := fasttemplate.NewTemplate(s, "{", "}")
			if err != nil {
				return nil, fmt.Errorf("messages: %s.%s: %w", tag, k, err)
			}
			compiled[k] = t
		}
		m.tpl[tag] = compiled
	}
	return m, nil
}

// Render fills template k for tag. Unknown tags fall back to English.
func (m *Messages) Render(tag lang.Tag, k Key, args map[string]string) string {
	set, ok := m.tpl[tag]
	if !ok {
		set = m.tpl[lang.EN]
	}
	t, ok := set[k]
	if !ok {
		return ""
	}
	vals := make(map[string]interface{}, len(args))
	for name, v := range args {
		vals[name] = v
	}
	return t.ExecuteString(vals)
}

// dayMarker returns the relative marker for a calendar-date difference, or
// "" when delta is zero.
func (m *Messages) dayMarker(tag lang.Tag, delta int) string {
	switch {
	case delta == 0:
		return ""
	case delta == 1:
		return m.Render(tag, KeyNextDay, nil)
	case delta == -1:
		return m.Render(tag, KeyPreviousDay, nil)
	case delta > 1:
		return m.Render(tag, KeyDaysLater, map[string]string{"n": strconv.Itoa(delta)})
	default:
		return m.Render(tag, KeyDaysEarlier, map[string]string{"n": strconv.Itoa(-delta)})
	}
}
