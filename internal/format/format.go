// Package format parses Bible files into the normalized shape the store
// persists. JSON and XML inputs go through the same Normalize step, so
// equivalent content yields identical Book and Verse rows whichever format it
// arrived in.
package format

import (
	"path"
	"strings"
	"unicode"

	"github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// Format identifies an input file format.
type Format string

const (
	JSON Format = "json"
	XML  Format = "xml"
)

// bookIDLength caps derived book ids.
const bookIDLength = 8

// Bible is one parsed version with its books and verses.
type Bible struct {
	Version store.Version
	Books   []store.Book
	Verses  []store.Verse
	Stats   Stats
}

// ProgressFunc receives a parsing percentage in [0, 100].
type ProgressFunc func(percent int)

// Detect guesses the format from a filename extension, falling back to the
// content: anything starting with '{' is JSON, everything else XML.
func Detect(filename string, content []byte) Format {
	switch strings.ToLower(path.Ext(filename)) {
	case ".json":
		return JSON
	case ".xml":
		return XML
	}
	trimmed := strings.TrimLeftFunc(strings.TrimPrefix(string(content[:min(len(content), 512)]), "\ufeff"), unicode.IsSpace)
	if strings.HasPrefix(trimmed, "{") {
		return JSON
	}
	return XML
}

// Parse dispatches to ParseJSON or ParseXML.
func Parse(f Format, data []byte, filename string, progress ProgressFunc) (*Bible, error) {
	if f == JSON {
		return ParseJSON(data, filename, progress)
	}
	return ParseXML(data, filename, progress)
}

// fileBase returns the filename without directories and everything from the
// first dot, e.g. "kjv.bible.xml" -> "kjv".
func fileBase(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return "bible"
	}
	return base
}

// NameFromFile turns a filename base into a display name.
func NameFromFile(filename string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(fileBase(filename))
}

// VersionID derives a version id from its name: lower-cased with whitespace
// runs replaced by a hyphen.
func VersionID(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// VersionCode picks the display code: the explicit code if present, else the
// filename base when it is 2 to 5 characters, else the first three characters
// of the name. The result is upper-cased.
func VersionCode(code, filename, name string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		base := fileBase(filename)
		if n := len([]rune(base)); n >= 2 && n <= 5 {
			code = base
		} else {
			code = truncate(name, 3)
		}
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// BookID derives a book id from its name: lower-cased, whitespace removed,
// at most 8 characters.
func BookID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return truncate(b.String(), bookIDLength)
}

// percent rounds done/total to the nearest whole percent.
func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return (done*200 + total) / (2 * total)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// versionMeta fills name, id and code the same way for both formats.
func versionMeta(id, name, code, filename string) store.Version {
	name = strings.TrimSpace(name)
	if name == "" {
		name = NameFromFile(filename)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = VersionID(name)
	}
	return store.Version{
		ID:   id,
		Name: name,
		Code: VersionCode(code, filename, name),
	}
}

// finish normalizes b and rejects a parse that produced nothing.
func finish(b *Bible, f Format, filename string) (*Bible, error) {
	b.Stats = Normalize(b)
	if len(b.Verses) == 0 {
		return nil, errors.NewParse(string(f), filename, "no verses found")
	}
	return b, nil
}
