package format

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	scerrors "github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/core/xml"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

const upperXML = `<?xml version="1.0" encoding="UTF-8"?>
<XMLBIBLE name="King James Version" abbreviation="kjv">
  <BOOK name="Genesis" abbreviation="Gen">
    <CHAPTER number="1">
      <VERSE number="1">In the beginning God created the heaven and the earth.</VERSE>
      <VERSE number="2">  And the earth was without form, and void.  </VERSE>
    </CHAPTER>
  </BOOK>
  <BOOK name="1 John" abbreviation="1Jn">
    <CHAPTER number="1">
      <VERSE number="1">That which was from the beginning</VERSE>
    </CHAPTER>
    <CHAPTER number="2">
      <VERSE number="5">But whoso keepeth his word</VERSE>
    </CHAPTER>
  </BOOK>
</XMLBIBLE>`

const shortXML = `<bible title="King James Version" code="KJV">
  <b n="Genesis" abbreviation="Gen">
    <c n="1">
      <v n="1">In the beginning God created the heaven and the earth.</v>
      <v n="2">And the earth was without form, and void.</v>
    </c>
  </b>
  <b title="1 John" shortName="1Jn">
    <c number="1"><v number="1">That which was from the beginning</v></c>
    <c number="2"><v number="5">But whoso keepeth his word</v></c>
  </b>
</bible>`

const equivalentJSON = `{
  "version": {"name": "King James Version", "code": "kjv"},
  "books": [
    {"id": "genesis", "name": "Genesis", "abbreviation": "Gen", "chapters": 1},
    {"id": "1john", "name": "1 John", "abbreviation": "1Jn", "chapters": 2}
  ],
  "verses": [
    {"bookId": "genesis", "bookName": "Genesis", "chapter": 1, "verse": 1, "text": "In the beginning God created the heaven and the earth."},
    {"bookId": "genesis", "bookName": "Genesis", "chapter": 1, "verse": 2, "text": "And the earth was without form, and void."},
    {"bookId": "1john", "bookName": "1 John", "chapter": "1", "verse": "1", "text": "That which was from the beginning"},
    {"bookId": "1john", "bookName": "1 John", "chapter": 2, "verse": 5, "text": "But whoso keepeth his word"}
  ]
}`

func TestDetect(t *testing.T) {
	tests := []struct {
		filename string
		content  string
		want     Format
	}{
		{"kjv.json", "<xml/>", JSON},
		{"kjv.XML", "{}", XML},
		{"", "  \n{\"verses\": []}", JSON},
		{"", "\ufeff{}", JSON},
		{"", "<bible/>", XML},
		{"download.bin", "", XML},
	}
	for _, tt := range tests {
		if got := Detect(tt.filename, []byte(tt.content)); got != tt.want {
			t.Errorf("Detect(%q, %q) = %s, want %s", tt.filename, tt.content, got, tt.want)
		}
	}
}

func TestDerivedNames(t *testing.T) {
	if got := BookID("Song of Solomon"); got != "songofso" {
		t.Errorf("BookID = %q, want songofso", got)
	}
	if got := BookID("1 John"); got != "1john" {
		t.Errorf("BookID = %q, want 1john", got)
	}
	if got := VersionID("New  King James\tVersion"); got != "new-king-james-version" {
		t.Errorf("VersionID = %q", got)
	}
	if got := NameFromFile("/tmp/world_english-bible.zip.xml"); got != "world english bible" {
		t.Errorf("NameFromFile = %q", got)
	}

	codes := []struct {
		code, filename, name, want string
	}{
		{"nkjv", "x.xml", "Whatever", "NKJV"},
		{"", "kjv.xml", "King James", "KJV"},
		{"", "esv2016.json", "English Standard", "ENG"},
		{"", "my_bible.json", "my bible", "MY"},
		{"", "", "World English", "BIBLE"},
	}
	for _, c := range codes {
		if got := VersionCode(c.code, c.filename, c.name); got != c.want {
			t.Errorf("VersionCode(%q, %q, %q) = %q, want %q", c.code, c.filename, c.name, got, c.want)
		}
	}
}

func TestXMLDialectsProduceIdenticalRows(t *testing.T) {
	upper, err := ParseXML([]byte(upperXML), "kjv.xml", nil)
	if err != nil {
		t.Fatalf("upper dialect: %v", err)
	}
	short, err := ParseXML([]byte(shortXML), "kjv.xml", nil)
	if err != nil {
		t.Fatalf("short dialect: %v", err)
	}

	if !reflect.DeepEqual(upper.Verses, short.Verses) {
		t.Errorf("verses differ:\nupper: %+v\nshort: %+v", upper.Verses, short.Verses)
	}
	if !reflect.DeepEqual(upper.Books, short.Books) {
		t.Errorf("books differ:\nupper: %+v\nshort: %+v", upper.Books, short.Books)
	}
	if upper.Version.ID != "king-james-version" || upper.Version.Code != "KJV" {
		t.Errorf("version = %+v", upper.Version)
	}
	if upper.Version.ID != short.Version.ID || upper.Version.Code != short.Version.Code {
		t.Errorf("version metadata differs: %+v vs %+v", upper.Version, short.Version)
	}
}

func TestJSONMatchesXML(t *testing.T) {
	fromXML, err := ParseXML([]byte(upperXML), "kjv.xml", nil)
	if err != nil {
		t.Fatal(err)
	}
	fromJSON, err := ParseJSON([]byte(equivalentJSON), "kjv.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fromXML.Verses, fromJSON.Verses) {
		t.Errorf("verses differ:\nxml:  %+v\njson: %+v", fromXML.Verses, fromJSON.Verses)
	}
	if !reflect.DeepEqual(fromXML.Books, fromJSON.Books) {
		t.Errorf("books differ:\nxml:  %+v\njson: %+v", fromXML.Books, fromJSON.Books)
	}
	if fromJSON.Version.ID != fromXML.Version.ID || fromJSON.Version.Code != fromXML.Version.Code {
		t.Errorf("version differs: %+v vs %+v", fromJSON.Version, fromXML.Version)
	}
}

func TestParseXMLShape(t *testing.T) {
	var progress []int
	b, err := ParseXML([]byte(upperXML), "kjv.xml", func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(progress, []int{0, 50, 100}) {
		t.Errorf("progress = %v, want [0 50 100]", progress)
	}
	if len(b.Books) != 2 || b.Books[1].ID != "1john" || b.Books[1].Chapters != 2 || b.Books[1].Position != 2 {
		t.Errorf("books = %+v", b.Books)
	}
	want := store.Verse{Version: "king-james-version", BookID: "genesis", BookName: "Genesis", Chapter: 1, Verse: 2, Text: "And the earth was without form, and void."}
	if b.Verses[1] != want {
		t.Errorf("verse = %+v, want %+v", b.Verses[1], want)
	}
	if b.Version.SizeBytes != int64(len(upperXML)) {
		t.Errorf("SizeBytes = %d", b.Version.SizeBytes)
	}
}

func TestParseXMLVersionFromFilename(t *testing.T) {
	doc := `<bible><b n="Ruth"><c n="1"><v n="1">Now it came to pass</v></c></b></bible>`
	b, err := ParseXML([]byte(doc), "world_english.xml", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Version.Name != "world english" || b.Version.ID != "world-english" || b.Version.Code != "WOR" {
		t.Errorf("version = %+v", b.Version)
	}
}

func TestParseJSONCodeFromFilename(t *testing.T) {
	doc := strings.Replace(equivalentJSON, `, "code": "kjv"`, "", 1)
	b, err := ParseJSON([]byte(doc), "kjv.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Version.ID != "king-james-version" || b.Version.Code != "KJV" {
		t.Errorf("version = %+v", b.Version)
	}
	b, err = ParseJSON([]byte(doc), "authorized.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Version.Code != "KIN" {
		t.Errorf("Code = %q, want KIN", b.Version.Code)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		f    Format
		data string
	}{
		{"malformed xml", XML, "<bible><b></bible>"},
		{"no book nodes", XML, "<bible><book/></bible>"},
		{"no verses in xml", XML, `<bible><b n="Ruth"><c n="1"/></b></bible>`},
		{"malformed json", JSON, `{"verses": [`},
		{"missing verses", JSON, `{"version": {"name": "X"}}`},
		{"empty verses", JSON, `{"verses": []}`},
		{"bad chapter", JSON, `{"verses": [{"bookId": "gen", "chapter": "one", "verse": 1, "text": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.f, []byte(tt.data), "x."+string(tt.f), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *scerrors.ParseError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ParseError, got %T: %v", err, err)
			}
			if !errors.Is(err, scerrors.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestParseXMLMalformedOffset(t *testing.T) {
	_, err := ParseXML([]byte("<bible>\n  <b n=\"John\"><c n=\"3\">\n</bible>"), "broken.xml", nil)
	var pe *scerrors.ParseError
	if !errors.As(err, &pe) || pe.Message != "malformed XML" {
		t.Fatalf("err = %v", err)
	}
	var ve *xml.ValidationError
	if !errors.As(err, &ve) || ve.Offset == 0 {
		t.Errorf("expected xml.ValidationError with an offset, got %v", err)
	}

	if _, err := ParseXML([]byte("   "), "empty.xml", nil); !errors.As(err, &ve) {
		t.Errorf("empty document: %v", err)
	}

	_, err = ParseXML([]byte("<osis><book/></osis>"), "osis.xml", nil)
	if !errors.As(err, &pe) || pe.Message != "no BOOK or b elements under <osis>" {
		t.Errorf("unknown dialect: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	b := &Bible{
		Version: store.Version{Name: " Test Bible ", Code: "tb"},
		Books: []store.Book{
			{ID: "gen", Name: "Genesis", Chapters: 1},
			{ID: "gen", Name: "Genesis", Chapters: 3},
		},
		Verses: []store.Verse{
			{BookID: "gen", Chapter: 1, Verse: 1, Text: " first "},
			{BookID: "gen", Chapter: 4, Verse: 1, Text: "raises chapters"},
			{BookID: "exo", BookName: "Exodus", Chapter: 1, Verse: 1, Text: "synthesized"},
			{BookID: "gen", Chapter: 1, Verse: 1, Text: "replacement"},
			{BookID: "gen", Chapter: 0, Verse: 1, Text: "dropped"},
			{BookName: "Leviticus", Chapter: 2, Verse: 3, Text: "id from name"},
		},
	}

	st := Normalize(b)
	want := Stats{Dropped: 1, Duplicates: 1, Synthesized: 2, Raised: 1}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
	if b.Version.ID != "test-bible" || b.Version.Code != "TB" {
		t.Errorf("version = %+v", b.Version)
	}

	if len(b.Books) != 3 {
		t.Fatalf("books = %+v", b.Books)
	}
	if b.Books[0].Chapters != 4 || b.Books[1].ID != "exo" || b.Books[2].ID != "leviticu" || b.Books[2].Chapters != 2 {
		t.Errorf("books = %+v", b.Books)
	}
	for i, bk := range b.Books {
		if bk.Position != i+1 || bk.Version != "test-bible" {
			t.Errorf("book %d = %+v", i, bk)
		}
	}

	if len(b.Verses) != 4 {
		t.Fatalf("verses = %+v", b.Verses)
	}
	if b.Verses[0].Text != "replacement" || b.Verses[0].BookName != "Genesis" {
		t.Errorf("duplicate should replace in place: %+v", b.Verses[0])
	}
	for _, v := range b.Verses {
		if v.Version != "test-bible" {
			t.Errorf("verse without version id: %+v", v)
		}
	}
}
