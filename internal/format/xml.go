package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/core/xml"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// Dialect adapts one tag naming convention used by XML Bible exports. A
// dialect is selected once per document and then used for every level of
// the traversal.
type Dialect interface {
	// BookNodes returns the book containers of the document.
	BookNodes(doc *xml.Document) []*xml.Node
	// ChapterNodes returns the chapter containers of a book.
	ChapterNodes(book *xml.Node) []*xml.Node
	// VerseNodes returns the verse elements of a chapter.
	VerseNodes(chapter *xml.Node) []*xml.Node
	// Name returns a node's display name, or "".
	Name(n *xml.Node) string
	// Number returns a node's number, or 0 when missing or malformed.
	Number(n *xml.Node) int
	String() string
}

var (
	nameAttrs   = []string{"name", "title", "n"}
	numberAttrs = []string{"number", "n"}
)

// tagDialect matches book, chapter and verse containers by element name at
// any depth.
type tagDialect struct {
	label                string
	book, chapter, verse string
}

func (d tagDialect) BookNodes(doc *xml.Document) []*xml.Node { return doc.Descendants(d.book) }
func (d tagDialect) ChapterNodes(book *xml.Node) []*xml.Node { return book.Descendants(d.chapter) }
func (d tagDialect) VerseNodes(chapter *xml.Node) []*xml.Node { return chapter.Descendants(d.verse) }
func (d tagDialect) Name(n *xml.Node) string { return n.FirstAttr(nameAttrs...) }
func (d tagDialect) String() string { return d.label }

func (d tagDialect) Number(n *xml.Node) int {
	i, err := strconv.Atoi(n.FirstAttr(numberAttrs...))
	if err != nil {
		return 0
	}
	return i
}

var (
	// UpperDialect reads <BOOK>/<CHAPTER>/<VERSE>.
	UpperDialect Dialect = tagDialect{label: "upper", book: "BOOK", chapter: "CHAPTER", verse: "VERSE"}
	// ShortDialect reads <b>/<c>/<v>.
	ShortDialect Dialect = tagDialect{label: "short", book: "b", chapter: "c", verse: "v"}

	// Dialects are tried in order by SelectDialect.
	Dialects = []Dialect{UpperDialect, ShortDialect}
)

// SelectDialect returns the first dialect whose book query matches anything,
// together with the matched book nodes.
func SelectDialect(doc *xml.Document) (Dialect, []*xml.Node, bool) {
	for _, d := range Dialects {
		if books := d.BookNodes(doc); len(books) > 0 {
			return d, books, true
		}
	}
	return nil, nil, false
}

// ParseXML parses an XML Bible in any supported dialect. The root element's
// name/title/n attribute names the version and abbreviation/shortName/code
// gives its code; filename fills in whichever is missing. progress is called
// once per book.
func ParseXML(data []byte, filename string, progress ProgressFunc) (*Bible, error) {
	if err := xml.Validate(data); err != nil {
		return nil, &errors.ParseError{Format: string(XML), Path: filename, Message: "malformed XML", Err: err}
	}
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, &errors.ParseError{Format: string(XML), Path: filename, Message: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.NewParse(string(XML), filename, "document has no root element")
	}
	dialect, bookNodes, ok := SelectDialect(doc)
	if !ok {
		return nil, errors.NewParse(string(XML), filename, fmt.Sprintf("no BOOK or b elements under <%s>", root.Name()))
	}

	b := &Bible{Version: versionMeta(
		"",
		root.FirstAttr(nameAttrs...),
		root.FirstAttr("abbreviation", "shortName", "code"),
		filename,
	)}
	b.Version.SizeBytes = int64(len(data))

	if progress != nil {
		progress(0)
	}
	for i, bookNode := range bookNodes {
		name := dialect.Name(bookNode)
		if name == "" {
			n := dialect.Number(bookNode)
			if n <= 0 {
				n = i + 1
			}
			name = fmt.Sprintf("Book %d", n)
		}
		book := store.Book{
			ID:           BookID(name),
			Name:         name,
			Abbreviation: bookNode.FirstAttr("abbreviation", "shortName"),
		}

		for _, chapterNode := range dialect.ChapterNodes(bookNode) {
			chapter := dialect.Number(chapterNode)
			if chapter > book.Chapters {
				book.Chapters = chapter
			}
			for _, verseNode := range dialect.VerseNodes(chapterNode) {
				b.Verses = append(b.Verses, store.Verse{
					BookID:   book.ID,
					BookName: strings.TrimSpace(name),
					Chapter:  chapter,
					Verse:    dialect.Number(verseNode),
					Text:     verseNode.Text(),
				})
			}
		}
		b.Books = append(b.Books, book)

		if progress != nil {
			progress(percent(i+1, len(bookNodes)))
		}
	}
	return finish(b, XML, filename)
}
