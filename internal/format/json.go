package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

type jsonBible struct {
	Version *jsonVersion `json:"version"`
	Books   []jsonBook   `json:"books"`
	Verses  *[]jsonVerse `json:"verses"`
}

type jsonVersion struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type jsonBook struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Abbreviation string  `json:"abbreviation"`
	Chapters     flexInt `json:"chapters"`
}

type jsonVerse struct {
	BookID   string  `json:"bookId"`
	BookName string  `json:"bookName"`
	Chapter  flexInt `json:"chapter"`
	Verse    flexInt `json:"verse"`
	Text     string  `json:"text"`
}

// flexInt accepts 3 as well as "3"; both occur in published exports.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("expected integer, got %s", data)
	}
	*n = flexInt(i)
	return nil
}

// ParseJSON parses the JSON Bible layout:
//
//	{"version": {"id", "name", "code"},
//	 "books": [{"id", "name", "abbreviation", "chapters"}],
//	 "verses": [{"bookId", "bookName", "chapter", "verse", "text"}]}
//
// Only "verses" is required. filename supplies the version name when the
// document has none.
func ParseJSON(data []byte, filename string, progress ProgressFunc) (*Bible, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var doc jsonBible
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &errors.ParseError{Format: string(JSON), Path: filename, Message: "malformed JSON", Err: err}
	}
	if doc.Verses == nil {
		return nil, errors.NewParse(string(JSON), filename, `missing "verses" array`)
	}

	var meta jsonVersion
	if doc.Version != nil {
		meta = *doc.Version
	}
	b := &Bible{Version: versionMeta(meta.ID, meta.Name, meta.Code, filename)}
	b.Version.SizeBytes = int64(len(data))

	for _, bk := range doc.Books {
		b.Books = append(b.Books, store.Book{
			ID:           bk.ID,
			Name:         bk.Name,
			Abbreviation: bk.Abbreviation,
			Chapters:     int(bk.Chapters),
		})
	}
	for _, vs := range *doc.Verses {
		b.Verses = append(b.Verses, store.Verse{
			BookID:   vs.BookID,
			BookName: vs.BookName,
			Chapter:  int(vs.Chapter),
			Verse:    int(vs.Verse),
			Text:     vs.Text,
		})
	}
	if progress != nil {
		progress(100)
	}
	return finish(b, JSON, filename)
}
