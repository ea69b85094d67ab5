// Package tzdir is the static timezone directory: curated city names and
// abbreviations mapped to IANA zones, display labels per language, and
// UTC offset parsing.
//
// Defaults are embedded from directory.default.yaml. An optional user file
// (usually ~/.tzbuddy/directory.yaml) extends the tables or removes default
// rows. A Directory is built once at startup and is read-only afterwards,
// so it is safe to share between goroutines.
package tzdir

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode"
	"unicode/utf8"

	"github.com/hseinmoussa/tzbuddy/internal/lang"
	"gopkg.in/yaml.v3"
)

//go:embed directory.default.yaml
var defaultDirectoryYAML []byte

var (
	// ErrNotOffset means the input is not shaped like a UTC offset.
	ErrNotOffset = errors.New("not a utc offset")
	// ErrOffsetRange means the input is an offset outside -12:00..+14:00.
	ErrOffsetRange = errors.New("utc offset out of range")
	// ErrUnknownZone means no directory table or the IANA database knows the input.
	ErrUnknownZone = errors.New("unknown timezone")
)

// CityRow maps a city name (any language) to an IANA zone.
type CityRow struct {
	Name string `yaml:"name"`
	Zone string `yaml:"zone"`
}

// AbbrRow maps an abbreviation such as CET to an IANA zone.
type AbbrRow struct {
	Abbr string `yaml:"abbr"`
	Zone string `yaml:"zone"`
}

// LabelRow holds the preferred display label of a zone per language.
type LabelRow struct {
	Zone string `yaml:"zone"`
	EN   string `yaml:"en"`
	RU   string `yaml:"ru,omitempty"`
}

// File is the YAML layout shared by the embedded defaults and the user file.
type File struct {
	Cities        []CityRow  `yaml:"cities"`
	Abbreviations []AbbrRow  `yaml:"abbreviations"`
	Labels        []LabelRow `yaml:"labels"`

	// Exclude lists let a user file remove default rows.
	ExcludeCities        []string `yaml:"exclude_cities,omitempty"`
	ExcludeAbbreviations []string `yaml:"exclude_abbreviations,omitempty"`
}

// Zone is a resolved timezone. ID is an IANA identifier, "UTC", or a fixed
// offset written as UTC+HH:MM.
type Zone struct {
	ID  string
	Loc *time.Location
}

// IsZero reports whether z was never resolved.
func (z Zone) IsZero() bool { return z.Loc == nil }

// Fixed reports whether z is a fixed UTC offset rather than a named zone.
func (z Zone) Fixed() bool {
	return strings.HasPrefix(z.ID, "UTC+") || strings.HasPrefix(z.ID, "UTC-")
}

// Directory answers city, abbreviation, IANA and label lookups.
type Directory struct {
	cities map[string]string // folded name -> zone id
	canon  map[string]string // folded name -> name as written in the table
	names  []string          // canonical names, longest first
	abbrs  map[string]string
	labels map[string]LabelRow
	locs   map[string]*time.Location
}

// Default builds a Directory from the embedded tables only.
func Default() (*Directory, error) {
	base, err := parseFile(defaultDirectoryYAML)
	if err != nil {
		return nil, fmt.Errorf("parse default directory: %w", err)
	}
	return build(base)
}

// MustDefault is Default for tests and package-level fixtures.
func MustDefault() *Directory {
	d, err := Default()
	if err != nil {
		panic(err)
	}
	return d
}

// Load builds a Directory from the embedded defaults merged with the user
// file at userPath. A missing user file is not an error. Any row pointing at
// a zone the IANA database does not know is.
func Load(userPath string) (*Directory, error) {
	base, err := parseFile(defaultDirectoryYAML)
	if err != nil {
		return nil, fmt.Errorf("parse default directory: %w", err)
	}
	if userPath == "" {
		return build(base)
	}

	data, err := os.ReadFile(userPath)
	if err != nil {
		if os.IsNotExist(err) {
			return build(base)
		}
		return nil, fmt.Errorf("read user directory file: %w", err)
	}
	user, err := parseFile(data)
	if err != nil {
		return nil, fmt.Errorf("parse user directory %s: %w", userPath, err)
	}
	return build(merge(base, user))
}

func parseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, err
	}
	return f, nil
}

// merge drops excluded defaults, then lets user rows override or extend
// the remaining ones.
func merge(base, user File) File {
	exCity := make(map[string]bool, len(user.ExcludeCities))
	for _, c := range user.ExcludeCities {
		exCity[fold(c)] = true
	}
	exAbbr := make(map[string]bool, len(user.ExcludeAbbreviations))
	for _, a := range user.ExcludeAbbreviations {
		exAbbr[strings.ToUpper(a)] = true
	}

	var out File
	for _, c := range base.Cities {
		if !exCity[fold(c.Name)] {
			out.Cities = append(out.Cities, c)
		}
	}
	for _, a := range base.Abbreviations {
		if !exAbbr[strings.ToUpper(a.Abbr)] {
			out.Abbreviations = append(out.Abbreviations, a)
		}
	}
	out.Labels = append(out.Labels, base.Labels...)

	// Later rows win in build, so appending is enough to override.
	out.Cities = append(out.Cities, user.Cities...)
	out.Abbreviations = append(out.Abbreviations, user.Abbreviations...)
	out.Labels = append(out.Labels, user.Labels...)
	return out
}

func build(f File) (*Directory, error) {
	d := &Directory{
		cities: make(map[string]string, len(f.Cities)),
		canon:  make(map[string]string, len(f.Cities)),
		abbrs:  make(map[string]string, len(f.Abbreviations)),
		labels: make(map[string]LabelRow, len(f.Labels)),
		locs:   make(map[string]*time.Location),
	}

	load := func(id, what string) error {
		if _, ok := d.locs[id]; ok {
			return nil
		}
		loc, err := time.LoadLocation(id)
		if err != nil {
			return fmt.Errorf("%s: zone %q: %w", what, id, err)
		}
		d.locs[id] = loc
		return nil
	}

	for _, c := range f.Cities {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("city row with empty name (zone %q)", c.Zone)
		}
		if err := load(c.Zone, "city "+name); err != nil {
			return nil, err
		}
		d.cities[fold(name)] = c.Zone
		d.canon[fold(name)] = name
	}
	for _, a := range f.Abbreviations {
		if err := load(a.Zone, "abbreviation "+a.Abbr); err != nil {
			return nil, err
		}
		d.abbrs[strings.ToUpper(a.Abbr)] = a.Zone
	}
	for _, l := range f.Labels {
		if err := load(l.Zone, "label"); err != nil {
			return nil, err
		}
		d.labels[l.Zone] = l
	}

	d.names = make([]string, 0, len(d.canon))
	for _, n := range d.canon {
		d.names = append(d.names, n)
	}
	sort.Slice(d.names, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(d.names[i]), utf8.RuneCountInString(d.names[j])
		if li != lj {
			return li > lj
		}
		return d.names[i] < d.names[j]
	})
	return d, nil
}

// Cities returns every curated city name, longest first, so that a scan
// tries "New York" before "York".
func (d *Directory) Cities() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// City looks up a city name case-insensitively. Russian names are also
// matched in inflected form ("по Москве", "Амстердаму"). The canonical
// table name is returned alongside the zone.
func (d *Directory) City(word string) (string, Zone, bool) {
	key := fold(strings.TrimSpace(word))
	if id, ok := d.cities[key]; ok {
		return d.canon[key], d.zone(id), true
	}
	if !hasCyrillic(key) {
		return "", Zone{}, false
	}
	if name, ok := d.normalizeRussian(key); ok {
		k := fold(name)
		return name, d.zone(d.cities[k]), true
	}
	return "", Zone{}, false
}

// Russian case endings, longest first.
var ruEndings = []string{"ами", "ом", "ою", "ой", "ам", "ах", "у", "е", "ю"}

func (d *Directory) normalizeRussian(word string) (string, bool) {
	n := utf8.RuneCountInString(word)
	for _, end := range ruEndings {
		if !strings.HasSuffix(word, end) || n < utf8.RuneCountInString(end)+4 {
			continue
		}
		stem := strings.TrimSuffix(word, end)
		for _, name := range d.names {
			if strings.HasPrefix(fold(name), stem) && hasCyrillic(name) {
				return name, true
			}
		}
	}
	return "", false
}

// Abbreviation looks up a curated abbreviation such as CET or MSK.
func (d *Directory) Abbreviation(tok string) (Zone, bool) {
	id, ok := d.abbrs[strings.ToUpper(tok)]
	if !ok {
		return Zone{}, false
	}
	return d.zone(id), true
}

// IsAbbreviation reports whether tok is a curated abbreviation.
func (d *Directory) IsAbbreviation(tok string) bool {
	_, ok := d.abbrs[strings.ToUpper(tok)]
	return ok
}

// IANA loads an Area/Location identifier, or "UTC".
func (d *Directory) IANA(id string) (Zone, error) {
	if loc, ok := d.locs[id]; ok {
		return Zone{ID: id, Loc: loc}, nil
	}
	// LoadLocation maps "" to UTC and "Local" to the host zone; neither is a
	// user-meaningful identifier.
	if id != "UTC" && !strings.Contains(id, "/") {
		return Zone{}, fmt.Errorf("%w: %q", ErrUnknownZone, id)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: %q", ErrUnknownZone, id)
	}
	return Zone{ID: id, Loc: loc}, nil
}

// Resolve turns any user supplied zone string into a Zone: a UTC offset,
// an IANA id, a curated city or a curated abbreviation, tried in that order.
func (d *Directory) Resolve(s string) (Zone, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zone{}, fmt.Errorf("%w: empty", ErrUnknownZone)
	}
	z, err := ParseOffset(s)
	switch {
	case err == nil:
		return z, nil
	case errors.Is(err, ErrOffsetRange):
		return Zone{}, err
	}
	if z, err := d.IANA(s); err == nil {
		return z, nil
	}
	if _, z, ok := d.City(s); ok {
		return z, nil
	}
	if z, ok := d.Abbreviation(s); ok {
		return z, nil
	}
	return Zone{}, fmt.Errorf("%w: %q", ErrUnknownZone, s)
}

// Label returns the display label for z in the given language: the curated
// city name when there is one, "UTC+4" style for fixed offsets, otherwise
// the last segment of the IANA id with underscores as spaces.
func (d *Directory) Label(z Zone, tag lang.Tag) string {
	if l, ok := d.labels[z.ID]; ok {
		if tag == lang.RU && l.RU != "" {
			return l.RU
		}
		return l.EN
	}
	if z.Fixed() {
		return offsetLabel(z.ID)
	}
	id := z.ID
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return strings.ReplaceAll(id, "_", " ")
}

func (d *Directory) zone(id string) Zone {
	return Zone{ID: id, Loc: d.locs[id]}
}

// ParseOffset parses UTC+4, UTC-05:30, GMT+3, UTC+0530 and bare +04:00.
// A bare offset needs the two-digit hour and the colon. "UTC" and "GMT"
// on their own resolve to UTC.
func ParseOffset(s string) (Zone, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	prefixed := false
	for _, p := range []string{"UTC", "GMT"} {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			prefixed = true
			break
		}
	}
	if prefixed && s == "" {
		return Zone{ID: "UTC", Loc: time.UTC}, nil
	}
	if s == "" || (s[0] != '+' && s[0] != '-' && !strings.HasPrefix(s, "−")) {
		return Zone{}, ErrNotOffset
	}

	sign := 1
	if s[0] == '+' {
		s = s[1:]
	} else if s[0] == '-' {
		sign = -1
		s = s[1:]
	} else {
		sign = -1
		s = strings.TrimPrefix(s, "−")
	}

	hh, mm, ok := splitOffset(s, prefixed)
	if !ok {
		return Zone{}, ErrNotOffset
	}
	if mm > 59 {
		return Zone{}, ErrOffsetRange
	}
	total := sign * (hh*60 + mm)
	if total < -12*60 || total > 14*60 {
		return Zone{}, ErrOffsetRange
	}
	return FixedOffset(total), nil
}

// splitOffset reads H, HH, H:MM, HH:MM or HHMM. Without a UTC/GMT prefix
// only HH:MM is accepted.
func splitOffset(s string, prefixed bool) (int, int, bool) {
	digits := func(p string) (int, bool) {
		if p == "" {
			return 0, false
		}
		n := 0
		for _, r := range p {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		return n, true
	}

	if i := strings.IndexByte(s, ':'); i >= 0 {
		h, m := s[:i], s[i+1:]
		if len(h) < 1 || len(h) > 2 || len(m) != 2 || (!prefixed && len(h) != 2) {
			return 0, 0, false
		}
		hh, ok1 := digits(h)
		mm, ok2 := digits(m)
		return hh, mm, ok1 && ok2
	}
	if !prefixed {
		return 0, 0, false
	}
	switch len(s) {
	case 1, 2:
		hh, ok := digits(s)
		return hh, 0, ok
	case 4:
		hh, ok1 := digits(s[:2])
		mm, ok2 := digits(s[2:])
		return hh, mm, ok1 && ok2
	}
	return 0, 0, false
}

// FixedOffset returns the fixed zone for an offset in minutes east of UTC.
func FixedOffset(minutes int) Zone {
	if minutes == 0 {
		return Zone{ID: "UTC", Loc: time.UTC}
	}
	sign := '+'
	abs := minutes
	if minutes < 0 {
		sign = '-'
		abs = -minutes
	}
	id := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/60, abs%60)
	return Zone{ID: id, Loc: time.FixedZone(id, minutes*60)}
}

// offsetLabel shortens UTC+04:00 to UTC+4 and UTC+05:30 to UTC+5:30.
func offsetLabel(id string) string {
	if len(id) != len("UTC+00:00") {
		return id
	}
	h := strings.TrimPrefix(id[4:6], "0")
	if h == "" {
		h = "0"
	}
	if id[7:] == "00" {
		return id[:4] + h
	}
	return id[:4] + h + ":" + id[7:]
}

func fold(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "ё", "е")
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
