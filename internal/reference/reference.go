// Package reference parses free-text scripture references such as
// "1 John 2:5-7 NKJV" against the installed books.
//
// Parse never fails. Every problem is appended to Reference.Errors so a
// caller running it on each keystroke can gate actions on len(Errors) == 0.
package reference

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// Error messages shown to the user.
const (
	ErrInvalidFormat = "Invalid format. Expected: Book Chapter:Verse"
	ErrVerseOrder    = "End verse must be greater than start verse."
)

// Reference is a parsed reference. Numeric fields are zero when absent.
type Reference struct {
	Book        *store.Book `json:"book,omitempty"`
	BookToken   string      `json:"book_token,omitempty"`
	Chapter     int         `json:"chapter,omitempty"`
	VerseStart  int         `json:"verse_start,omitempty"`
	VerseEnd    int         `json:"verse_end,omitempty"`
	VersionCode string      `json:"version_code,omitempty"`
	Errors      []string    `json:"errors"`
}

// grammar: [1-3] <word>+ <chapter> [":" <verse> ["-" <verse>]] [<version>]
//
// Numbers are captured as strings so an out-of-range chapter still parses
// and is reported against the book's chapter count.
type refGrammar struct {
	Prefix  *string      `parser:"@Int?"`
	Words   []string     `parser:"@Word+"`
	Chapter string       `parser:"@Int"`
	Verses  *versePart   `parser:"( \":\" @@ )?"`
	Version *versionPart `parser:"@@?"`
}

type versePart struct {
	Start string  `parser:"@Int"`
	End   *string `parser:"( \"-\" @Int )?"`
}

type versionPart struct {
	Pos  lexer.Position
	Code string `parser:"@Word | @Int"`
}

var refLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Word", Pattern: `[A-Za-z][A-Za-z0-9]*`},
	{Name: "Punct", Pattern: `[:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var refParser = participle.MustBuild[refGrammar](
	participle.Lexer(refLexer),
	participle.Elide("Whitespace"),
)

// Parse parses text against books. Book matching is a case-insensitive exact
// match on name, id or abbreviation; fuzzy matching is left to autocomplete.
// The first matching book wins when several versions share a name.
func Parse(text string, books []store.Book) Reference {
	ref := Reference{Errors: []string{}}
	text = strings.TrimSpace(text)
	if text == "" {
		return ref
	}

	parsed, err := parseRef(text)
	if err != nil {
		ref.Errors = append(ref.Errors, ErrInvalidFormat)
		return ref
	}

	prefix := ""
	if parsed.Prefix != nil {
		prefix = strconv.Itoa(number(*parsed.Prefix))
	}
	ref.BookToken = strings.Join(parsed.Words, " ")
	if prefix != "" {
		ref.BookToken = prefix + " " + ref.BookToken
	}
	ref.Chapter = number(parsed.Chapter)
	if parsed.Verses != nil {
		ref.VerseStart = number(parsed.Verses.Start)
		if parsed.Verses.End != nil {
			ref.VerseEnd = number(*parsed.Verses.End)
		}
	}
	if parsed.Version != nil {
		ref.VersionCode = strings.ToUpper(parsed.Version.Code)
	}

	book := FindBook(ref.BookToken, books)
	if book == nil && prefix != "" {
		// "1jn" lexes as 1 + jn; abbreviations are stored unspaced.
		book = FindBook(prefix+strings.Join(parsed.Words, " "), books)
	}
	if book != nil {
		ref.Book = book
		if ref.Chapter < 1 || ref.Chapter > book.Chapters {
			ref.Errors = append(ref.Errors,
				fmt.Sprintf("Invalid chapter: %d. %s has %d chapters.", ref.Chapter, book.Name, book.Chapters))
		}
	} else {
		ref.Errors = append(ref.Errors, fmt.Sprintf("Unknown book: %q", ref.BookToken))
	}

	if ref.VerseStart > 0 && ref.VerseEnd > 0 && ref.VerseEnd <= ref.VerseStart {
		ref.Errors = append(ref.Errors, ErrVerseOrder)
	}
	return ref
}

// parseRef runs the grammar and applies the checks it cannot express: the
// book prefix is 1-3 and the version token is separated by whitespace, so
// "3:16a" is rejected rather than read as version "A".
func parseRef(text string) (*refGrammar, error) {
	parsed, err := refParser.ParseString("", text)
	if err != nil {
		return nil, err
	}
	if parsed.Prefix != nil {
		if p := number(*parsed.Prefix); p < 1 || p > 3 {
			return nil, fmt.Errorf("book prefix %d out of range", p)
		}
	}
	if v := parsed.Version; v != nil {
		if off := v.Pos.Offset; off == 0 || off > len(text) || !unicode.IsSpace(rune(text[off-1])) {
			return nil, fmt.Errorf("version %q not separated by whitespace", v.Code)
		}
	}
	return parsed, nil
}

// number converts a lexed integer, clamping values too large for int.
func number(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return math.MaxInt
	}
	return n
}

// FindBook returns the first book whose name, id or abbreviation equals token
// ignoring case, or nil.
func FindBook(token string, books []store.Book) *store.Book {
	token = normalizeSpace(token)
	if token == "" {
		return nil
	}
	for i := range books {
		b := &books[i]
		if strings.EqualFold(b.Name, token) || strings.EqualFold(b.ID, token) ||
			(b.Abbreviation != "" && strings.EqualFold(b.Abbreviation, token)) {
			found := *b
			return &found
		}
	}
	return nil
}

// Valid reports whether the reference resolved to a book without errors.
func (r Reference) Valid() bool {
	return len(r.Errors) == 0 && r.Book != nil && r.Chapter > 0
}

// String renders the reference in canonical form, e.g. "John 3:16-18 (NKJV)".
func (r Reference) String() string {
	name := r.BookToken
	if r.Book != nil {
		name = r.Book.Name
	}
	if name == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(name)
	if r.Chapter > 0 {
		sb.WriteString(" ")
		sb.WriteString(strconv.Itoa(r.Chapter))
		if r.VerseStart > 0 {
			sb.WriteString(":")
			sb.WriteString(strconv.Itoa(r.VerseStart))
			if r.VerseEnd > 0 {
				sb.WriteString("-")
				sb.WriteString(strconv.Itoa(r.VerseEnd))
			}
		}
	}
	if r.VersionCode != "" {
		sb.WriteString(" (")
		sb.WriteString(r.VersionCode)
		sb.WriteString(")")
	}
	return sb.String()
}

// SmartTransform turns a completed "Book Chapter " into "Book Chapter:" so
// the user can type the verse straight away. Other input is returned as is.
func SmartTransform(input string) string {
	if !strings.HasSuffix(input, " ") {
		return input
	}
	parsed, err := parseRef(strings.TrimSpace(input))
	if err != nil || parsed.Verses != nil || parsed.Version != nil {
		return input
	}
	fields := strings.Fields(input)
	if len(fields) < 2 || hasDoubleTrailingSpace(input) {
		return input
	}
	book := strings.Join(fields[:len(fields)-1], " ")
	return book + " " + fields[len(fields)-1] + ":"
}

func hasDoubleTrailingSpace(s string) bool {
	return len(s) >= 2 && unicode.IsSpace(rune(s[len(s)-2]))
}

// IsValidCharacter reports whether r may appear in a reference.
func IsValidCharacter(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == ':' || r == '.' || r == '-' || unicode.IsSpace(r):
		return true
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
