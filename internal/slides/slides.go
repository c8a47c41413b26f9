// Package slides turns verses into projector slide strings and the payload
// for adding a passage to a service order.
package slides

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// Mode selects how a verse is rendered.
type Mode string

const (
	// ModePlain renders the verse text only.
	ModePlain Mode = "plain"
	// ModeAnnotated prefixes the verse number and appends a citation.
	ModeAnnotated Mode = "annotated"
)

// ParseMode maps a configuration value to a Mode. Empty selects plain.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeAnnotated:
		return ModeAnnotated, nil
	}
	return "", fmt.Errorf("unknown slide mode %q (want plain or annotated)", s)
}

// Renderer renders one slide per verse.
type Renderer struct {
	Mode Mode
}

// Render returns one string per verse, in order. versionCode is shown in
// annotated citations; when empty the verse's version id is uppercased.
func (r Renderer) Render(verses []store.Verse, versionCode string) []string {
	out := make([]string, 0, len(verses))
	for _, v := range verses {
		if r.Mode != ModeAnnotated {
			out = append(out, v.Text)
			continue
		}
		code := versionCode
		if code == "" {
			code = strings.ToUpper(v.Version)
		}
		out = append(out, fmt.Sprintf("%d. %s\n\n[%s %d:%d (%s)]", v.Verse, v.Text, v.BookName, v.Chapter, v.Verse, code))
	}
	return out
}

// ServiceEntry builds the reference and text for a passage added to a
// service. verses must share book and chapter and be sorted. The reference
// is "Book C:V", with "-E" appended when the passage spans several verses.
func ServiceEntry(verses []store.Verse) (ref, text string) {
	if len(verses) == 0 {
		return "", ""
	}
	if len(verses) == 1 {
		return VerseEntry(verses[0])
	}
	first, last := verses[0], verses[len(verses)-1]
	ref = first.BookName + " " + strconv.Itoa(first.Chapter) + ":" + strconv.Itoa(first.Verse) + "-" + strconv.Itoa(last.Verse)

	texts := make([]string, len(verses))
	for i, v := range verses {
		texts[i] = v.Text
	}
	return ref, strings.Join(texts, " ")
}

// VerseEntry is ServiceEntry for a single verse.
func VerseEntry(v store.Verse) (ref, text string) {
	return v.BookName + " " + strconv.Itoa(v.Chapter) + ":" + strconv.Itoa(v.Verse), v.Text
}
