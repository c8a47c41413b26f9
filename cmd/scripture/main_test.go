package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

const kjvJSON = `{
  "version": {"name": "King James Version", "code": "KJV"},
  "books": [{"id": "john", "name": "John", "chapters": 21}],
  "verses": [
    {"bookId": "john", "bookName": "John", "chapter": 3, "verse": 16, "text": "For God so loved the world"},
    {"bookId": "john", "bookName": "John", "chapter": 3, "verse": 17, "text": "For God sent not his Son"}
  ]
}`

// scripture runs the CLI against db and returns stdout, stderr and the
// exit code.
func scripture(t *testing.T, db string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--db", db, "--log-level", "error"}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "kjv.json")
	if err := os.WriteFile(src, []byte(kjvJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(dir, "scripture.db")
	out, errOut, code := scripture(t, db, "import", src)
	if code != 0 {
		t.Fatalf("import exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Imported King James Version (KJV) as king-james-version") {
		t.Fatalf("import output = %q", out)
	}
	if !strings.Contains(errOut, "importing 100%") {
		t.Errorf("progress output = %q", errOut)
	}
	return db
}

func TestImportAndVersions(t *testing.T) {
	db := setup(t)

	out, _, code := scripture(t, db, "--json", "versions")
	if code != 0 {
		t.Fatalf("versions exit %d", code)
	}
	var versions []store.Version
	if err := json.Unmarshal([]byte(out), &versions); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(versions) != 1 || versions[0].Code != "KJV" || versions[0].SourceHash == "" {
		t.Errorf("versions = %+v", versions)
	}

	out, _, _ = scripture(t, db, "books")
	if !strings.Contains(out, "John") {
		t.Errorf("books = %q", out)
	}
}

func TestLookupAndSlides(t *testing.T) {
	db := setup(t)

	out, errOut, code := scripture(t, db, "lookup", "John", "3:16-17")
	if code != 0 {
		t.Fatalf("lookup exit %d: %s", code, errOut)
	}
	want := "John 3:16-17 (KJV)\n16 For God so loved the world\n17 For God sent not his Son\n"
	if out != want {
		t.Errorf("lookup = %q, want %q", out, want)
	}

	out, _, _ = scripture(t, db, "slides", "--mode", "annotated", "John 3:16")
	if strings.TrimSpace(out) != "16. For God so loved the world\n\n[John 3:16 (KJV)]" {
		t.Errorf("slides = %q", out)
	}

	out, _, _ = scripture(t, db, "slides", "-m", "plain", "John 3:16-17")
	if strings.TrimSpace(out) != "For God so loved the world\n---\nFor God sent not his Son" {
		t.Errorf("plain slides = %q", out)
	}
}

func TestParseAndSuggest(t *testing.T) {
	db := setup(t)

	out, _, code := scripture(t, db, "parse", "john 3:16 kjv")
	if code != 0 || strings.TrimSpace(out) != "John 3:16 (KJV)" {
		t.Errorf("parse = %q, exit %d", out, code)
	}

	_, errOut, code := scripture(t, db, "parse", "Hezekiah 1:1")
	if code != 1 || !strings.Contains(errOut, `Unknown book: "Hezekiah"`) {
		t.Errorf("parse unknown = %q, exit %d", errOut, code)
	}

	out, _, _ = scripture(t, db, "suggest", "--prev", "Jo", "Joh")
	if !strings.Contains(out, `complete: "John "`) || !strings.Contains(out, "book\tJohn") {
		t.Errorf("suggest = %q", out)
	}
}

func TestUninstall(t *testing.T) {
	db := setup(t)

	if _, errOut, code := scripture(t, db, "uninstall", "king-james-version"); code != 0 {
		t.Fatalf("uninstall exit %d: %s", code, errOut)
	}
	out, _, _ := scripture(t, db, "versions")
	if !strings.Contains(out, "No versions installed.") {
		t.Errorf("versions after uninstall = %q", out)
	}
	if _, errOut, code := scripture(t, db, "uninstall", "king-james-version"); code != 1 || !strings.Contains(errOut, "not found") {
		t.Errorf("second uninstall = %q, exit %d", errOut, code)
	}
}

func TestImportFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.xml")
	os.WriteFile(bad, []byte("<bible><b n=\"John\">"), 0o644)

	_, errOut, code := scripture(t, filepath.Join(dir, "s.db"), "import", "-q", bad)
	if code != 1 || !strings.Contains(errOut, "scripture:") {
		t.Errorf("import broken = %q, exit %d", errOut, code)
	}

	_, errOut, code = scripture(t, filepath.Join(dir, "s.db"), "import", "kjv\x01.json")
	if code != 1 || !strings.Contains(errOut, "invalid character in path") {
		t.Errorf("import control path = %q, exit %d", errOut, code)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, code := scripture(t, filepath.Join(t.TempDir(), "s.db"), "version")
	if code != 0 || !strings.HasPrefix(out, "scripture version "+version) {
		t.Errorf("version = %q, exit %d", out, code)
	}
}
