package language

import (
	"strings"

	"golang.org/x/text/language"
)

type entry struct {
	code2   string // ISO 639-1
	code3   string // ISO 639-2/T
	alt3    string // ISO 639-2/B, when it differs
	display string
}

var languages = []entry{
	{"en", "eng", "", "English"},
	{"es", "spa", "", "Spanish"},
	{"fr", "fra", "fre", "French"},
	{"de", "deu", "ger", "German"},
	{"it", "ita", "", "Italian"},
	{"pt", "por", "", "Portuguese"},
	{"ja", "jpn", "", "Japanese"},
	{"ko", "kor", "", "Korean"},
	{"zh", "zho", "chi", "Chinese"},
	{"ru", "rus", "", "Russian"},
	{"ar", "ara", "", "Arabic"},
	{"he", "heb", "", "Hebrew"},
	{"la", "lat", "", "Latin"},
	{"el", "ell", "gre", "Greek"},
	{"nl", "nld", "dut", "Dutch"},
	{"pl", "pol", "", "Polish"},
	{"sv", "swe", "", "Swedish"},
	{"da", "dan", "", "Danish"},
	{"no", "nor", "", "Norwegian"},
	{"fi", "fin", "", "Finnish"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[e.code3] = e
		if e.alt3 != "" {
			m[e.alt3] = e
		}
		m[strings.ToLower(e.display)] = e
	}
	return m
}()

func lookup(code string) *entry {
	return index[strings.ToLower(strings.TrimSpace(code))]
}

// Normalize returns the tag to store for a language value. Known codes and
// English names collapse to ISO 639-1; other well-formed BCP 47 tags are
// canonicalized. Unparseable input yields "".
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	tag, err := language.Parse(code)
	if err != nil || tag == language.Und {
		return ""
	}
	return tag.String()
}

// DisplayName returns a human-readable name for code, falling back to the
// canonical tag and then to "Unknown".
func DisplayName(code string) string {
	if e := lookup(code); e != nil {
		return e.display
	}
	if tag := Normalize(code); tag != "" {
		if e := lookup(strings.SplitN(tag, "-", 2)[0]); e != nil {
			return e.display
		}
		return tag
	}
	return "Unknown"
}
