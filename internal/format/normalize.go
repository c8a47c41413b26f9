package format

import (
	"strings"

	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// Stats counts what Normalize had to repair.
type Stats struct {
	Dropped     int // verses with a missing book or a non-positive chapter/verse
	Duplicates  int // repeated verse keys; the last occurrence wins
	Synthesized int // books created because verses referenced them
	Raised      int // books whose chapter count was raised to fit their verses
}

// Normalize finalizes a parsed Bible in place so it satisfies the store
// invariants:
//
//   - version code is upper-cased and the id is derived from the name if empty
//   - every book and verse carries the version id
//   - verse text is trimmed, invalid verses are dropped, duplicates collapse
//   - every verse has a book row whose chapter count covers it
//
// Books keep their input order and are numbered from 1; verses keep the order
// of their first occurrence.
func Normalize(b *Bible) Stats {
	var st Stats
	v := &b.Version
	v.Name = strings.TrimSpace(v.Name)
	if v.ID == "" {
		v.ID = VersionID(v.Name)
	}
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))

	books := make([]store.Book, 0, len(b.Books))
	bookIndex := make(map[string]int, len(b.Books))
	for _, bk := range b.Books {
		bk.Name = strings.TrimSpace(bk.Name)
		if bk.ID == "" {
			bk.ID = BookID(bk.Name)
		}
		if bk.ID == "" {
			continue
		}
		if bk.Name == "" {
			bk.Name = bk.ID
		}
		bk.Version = v.ID
		if i, ok := bookIndex[bk.ID]; ok {
			if bk.Chapters > books[i].Chapters {
				books[i].Chapters = bk.Chapters
			}
			continue
		}
		bookIndex[bk.ID] = len(books)
		books = append(books, bk)
	}

	verses := make([]store.Verse, 0, len(b.Verses))
	verseIndex := make(map[string]int, len(b.Verses))
	for _, vs := range b.Verses {
		vs.BookName = strings.TrimSpace(vs.BookName)
		if vs.BookID == "" {
			vs.BookID = BookID(vs.BookName)
		}
		if vs.BookID == "" || vs.Chapter <= 0 || vs.Verse <= 0 {
			st.Dropped++
			continue
		}
		vs.Version = v.ID
		vs.Text = strings.TrimSpace(vs.Text)

		i, ok := bookIndex[vs.BookID]
		if !ok {
			name := vs.BookName
			if name == "" {
				name = vs.BookID
			}
			i = len(books)
			bookIndex[vs.BookID] = i
			books = append(books, store.Book{Version: v.ID, ID: vs.BookID, Name: name})
			st.Synthesized++
		}
		if vs.BookName == "" {
			vs.BookName = books[i].Name
		}
		if vs.Chapter > books[i].Chapters {
			if books[i].Chapters > 0 {
				st.Raised++
			}
			books[i].Chapters = vs.Chapter
		}

		key := vs.PK()
		if j, ok := verseIndex[key]; ok {
			verses[j] = vs
			st.Duplicates++
			continue
		}
		verseIndex[key] = len(verses)
		verses = append(verses, vs)
	}

	for i := range books {
		books[i].Position = i + 1
	}
	b.Books = books
	b.Verses = verses
	return st
}
