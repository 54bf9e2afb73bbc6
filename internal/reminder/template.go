package reminder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// LocalizedText is the template of one language
type LocalizedText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type localizedEntry struct {
	Lang string
	Text LocalizedText
}

var errNotAnObject = errors.New("template document is not a JSON object")

// parseTemplates decodes a {"lang": {"title", "body"}} document keeping the
// key order, which decides the fallback language. Entries that are not
// objects or whose body is blank are dropped.
func parseTemplates(raw []byte) ([]localizedEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotAnObject
	}

	var entries []localizedEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode templates: %w", err)
		}
		lang, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode template %q: %w", lang, err)
		}

		var text LocalizedText
		if err := json.Unmarshal(value, &text); err != nil {
			continue
		}
		if isBlank(text.Body) {
			continue
		}
		entries = append(entries, localizedEntry{Lang: lang, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	return entries, nil
}

// selectTemplate picks the only entry, else the user's language, else the first entry
func selectTemplate(entries []localizedEntry, lang string) (LocalizedText, bool) {
	switch len(entries) {
	case 0:
		return LocalizedText{}, false
	case 1:
		return entries[0].Text, true
	}
	for _, e := range entries {
		if e.Lang == lang {
			return e.Text, true
		}
	}
	return entries[0].Text, true
}

// Placeholders are the values substituted into a template
type Placeholders struct {
	List       string
	User       string
	CourseLink string
	Course     string
}

// renderBody substitutes =LIST=, =USER=, =LINK= and =COURSE=, in that order
func renderBody(body string, p Placeholders) string {
	body = strings.ReplaceAll(body, "=LIST=", p.List)
	body = strings.ReplaceAll(body, "=USER=", p.User)
	body = strings.ReplaceAll(body, "=LINK=", p.CourseLink)
	body = strings.ReplaceAll(body, "=COURSE=", p.Course)
	return body
}

// renderTitle substitutes =COURSE= only and falls back to the default subject
func renderTitle(title string, p Placeholders, prefix string) string {
	title = strings.ReplaceAll(title, "=COURSE=", p.Course)
	if strings.TrimSpace(title) == "" {
		if prefix == "" {
			prefix = defaultTitlePrefix
		}
		title = fmt.Sprintf("[%s] local_advancedreminders", prefix)
	}
	return title
}

// unescape decodes every valid %XX escape in stored template text. A '%'
// that does not start a valid escape is kept as is.
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
