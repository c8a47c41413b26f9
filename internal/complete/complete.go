// Package complete suggests completions for a reference while it is typed.
//
// Input is classified by a small token-position state machine:
//
//	TypingBook -> BookResolved -> TypingChapterVerse -> TypingVersion
//
// The book token is every leading word up to the first one starting with a
// digit, so "Song of Solomon 2" splits where the reference parser splits it.
// A leading "1", "2" or "3" belongs to the book. Whitespace after the book
// moves to BookResolved, a digit starts the chapter/verse token, and
// whitespace after it moves to TypingVersion.
package complete

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FocuswithJustin/JuniperScripture/internal/reference"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// MaxBookSuggestions caps the book list.
const MaxBookSuggestions = 5

// placeholderCount is the length of the fixed chapter and verse lists.
const placeholderCount = 5

// State is the position of the cursor within a reference.
type State int

const (
	Empty State = iota
	TypingBook
	BookResolved
	TypingChapterVerse
	TypingVersion
)

var stateNames = [...]string{"empty", "typing_book", "book_resolved", "typing_chapter_verse", "typing_version"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Cursor is the classified input.
type Cursor struct {
	State     State
	Book      string // book token as typed, e.g. "1 Jo"
	RefPart   string // chapter/verse token, e.g. "3:1"
	Version   string // partial version token
	Remaining int    // tokens after the book
}

// Classify runs the state machine over input.
func Classify(input string) Cursor {
	trimmed := strings.TrimLeftFunc(input, unicode.IsSpace)
	if trimmed == "" {
		return Cursor{State: Empty}
	}
	trailingSpace := strings.TrimRightFunc(trimmed, unicode.IsSpace) != trimmed
	parts := strings.Fields(trimmed)

	var c Cursor
	if len(parts) == 1 && isPrefix(parts[0]) {
		// A lone numeric prefix is still the start of a book name.
		c.Book = parts[0]
		c.State = TypingBook
		return c
	}
	n := 1
	for n < len(parts) && !startsWithDigit(parts[n]) {
		n++
	}
	c.Book = strings.Join(parts[:n], " ")
	rest := parts[n:]
	c.Remaining = len(rest)

	switch {
	case len(rest) == 0 && !trailingSpace:
		c.State = TypingBook
	case len(rest) == 0:
		c.State = BookResolved
	case len(rest) == 1 && !trailingSpace:
		c.State = TypingChapterVerse
		c.RefPart = rest[0]
	default:
		c.State = TypingVersion
		c.RefPart = rest[0]
		if len(rest) > 1 && !trailingSpace {
			c.Version = rest[len(rest)-1]
		}
	}
	return c
}

func isPrefix(s string) bool {
	return s == "1" || s == "2" || s == "3"
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// SuggestionType says what a suggestion completes.
type SuggestionType string

const (
	SuggestBook    SuggestionType = "book"
	SuggestChapter SuggestionType = "chapter"
	SuggestVerse   SuggestionType = "verse"
	SuggestVersion SuggestionType = "version"
)

// Suggestion is one dropdown entry.
type Suggestion struct {
	Text        string         `json:"text"`
	Type        SuggestionType `json:"type"`
	Description string         `json:"description,omitempty"`
}

// Engine answers suggestion queries against a snapshot of installed books
// and versions. It does no I/O.
type Engine struct {
	Books    []store.Book
	Versions []store.Version
}

// Suggest returns the suggestions for input. It never modifies input.
func (e *Engine) Suggest(input string) []Suggestion {
	c := Classify(input)
	switch c.State {
	case TypingBook:
		return e.bookSuggestions(c.Book)
	case BookResolved:
		if book := e.resolve(c.Book); book != nil {
			return []Suggestion{{Text: book.Name + " 1", Type: SuggestChapter}}
		}
	case TypingChapterVerse:
		if book := e.resolve(c.Book); book != nil {
			return chapterVerseSuggestions(book.Name, c.RefPart)
		}
	case TypingVersion:
		if e.resolve(c.Book) != nil {
			return e.versionSuggestions(c.Version)
		}
	}
	return nil
}

// InlineComplete returns the completed input when current extends previous,
// the book token is still being typed and every matching book shares one
// name. The completion is that name plus a space, and only applies when it is
// strictly longer than current, so a completed value never re-triggers.
func (e *Engine) InlineComplete(previous, current string) (string, bool) {
	if utf8.RuneCountInString(current) <= utf8.RuneCountInString(previous) {
		return "", false
	}
	c := Classify(current)
	if c.State != TypingBook {
		return "", false
	}
	names := e.matchingNames(c.Book)
	if len(names) != 1 {
		return "", false
	}
	completed := names[0] + " "
	if utf8.RuneCountInString(completed) <= utf8.RuneCountInString(current) {
		return "", false
	}
	return completed, true
}

// Accept applies a chosen suggestion to input. Version suggestions replace
// the version token; everything else replaces the whole input.
func (e *Engine) Accept(input string, s Suggestion) string {
	if s.Type != SuggestVersion {
		return s.Text
	}
	c := Classify(input)
	base := strings.TrimRightFunc(input, unicode.IsSpace)
	if c.Version != "" && c.Remaining > 1 && strings.HasSuffix(base, c.Version) {
		base = strings.TrimRightFunc(strings.TrimSuffix(base, c.Version), unicode.IsSpace)
	}
	return strings.TrimLeftFunc(base, unicode.IsSpace) + " " + s.Text
}

// resolve finds the book a completed token refers to: an exact match first,
// then the first prefix match.
func (e *Engine) resolve(token string) *store.Book {
	if b := reference.FindBook(token, e.Books); b != nil {
		return b
	}
	for _, b := range e.Books {
		if matchesPrefix(b, strings.ToLower(token)) {
			found := b
			return &found
		}
	}
	return nil
}

func matchesPrefix(b store.Book, lower string) bool {
	return strings.HasPrefix(strings.ToLower(b.Name), lower) ||
		strings.HasPrefix(strings.ToLower(b.ID), lower) ||
		(b.Abbreviation != "" && strings.HasPrefix(strings.ToLower(b.Abbreviation), lower))
}

// matchingNames returns the distinct names of books matching token.
func (e *Engine) matchingNames(token string) []string {
	lower := strings.ToLower(token)
	seen := make(map[string]bool)
	var names []string
	for _, b := range e.Books {
		if matchesPrefix(b, lower) && !seen[b.Name] {
			seen[b.Name] = true
			names = append(names, b.Name)
		}
	}
	return names
}

func (e *Engine) bookSuggestions(token string) []Suggestion {
	lower := strings.ToLower(token)
	names := e.matchingNames(token)
	sort.SliceStable(names, func(i, j int) bool {
		si := strings.HasPrefix(strings.ToLower(names[i]), lower)
		sj := strings.HasPrefix(strings.ToLower(names[j]), lower)
		if si != sj {
			return si
		}
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	if len(names) > MaxBookSuggestions {
		names = names[:MaxBookSuggestions]
	}
	out := make([]Suggestion, 0, len(names))
	for _, n := range names {
		out = append(out, Suggestion{Text: n, Type: SuggestBook})
	}
	return out
}

func chapterVerseSuggestions(book, refPart string) []Suggestion {
	if chapterStr, _, ok := strings.Cut(refPart, ":"); ok {
		chapter, err := strconv.Atoi(chapterStr)
		if err != nil {
			return nil
		}
		out := make([]Suggestion, 0, placeholderCount)
		for i := 1; i <= placeholderCount; i++ {
			out = append(out, Suggestion{Text: fmt.Sprintf("%s %d:%d", book, chapter, i), Type: SuggestVerse})
		}
		return out
	}

	chapter, err := strconv.Atoi(refPart)
	if err != nil {
		return nil
	}
	out := make([]Suggestion, 0, placeholderCount)
	out = append(out, Suggestion{Text: fmt.Sprintf("%s %d", book, chapter), Type: SuggestChapter})
	for i := 1; i < placeholderCount; i++ {
		out = append(out, Suggestion{Text: fmt.Sprintf("%s %d%d", book, chapter, i), Type: SuggestChapter})
	}
	return out
}

func (e *Engine) versionSuggestions(partial string) []Suggestion {
	lower := strings.ToLower(partial)
	out := make([]Suggestion, 0, len(e.Versions))
	for _, v := range e.Versions {
		if lower != "" && !strings.HasPrefix(strings.ToLower(v.Code), lower) {
			continue
		}
		out = append(out, Suggestion{Text: v.Code, Type: SuggestVersion, Description: v.Name})
	}
	return out
}
