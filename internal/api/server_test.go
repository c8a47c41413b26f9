package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FocuswithJustin/JuniperScripture/internal/library"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

const webXML = `<bible name="World English Bible" code="web">
  <b n="John"><c n="3">
    <v n="16">For God so loved the world</v>
    <v n="17">For God did not send his Son</v>
  </c></b>
</bible>`

type testServer struct {
	*httptest.Server
	hub *Hub
	lib *library.Library
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st, err := store.OpenMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	hub := NewHub()
	go hub.Run(ctx)
	lib := library.New(st, library.Options{
		Notifier:   hub,
		Output:     hub.Output,
		Service:    hub.Service,
		OnProgress: hub.ImportProgress,
	})
	srv := httptest.NewServer(New(lib, hub, cfg).Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, lib: lib}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func do(t *testing.T, method, url, contentType string, body []byte) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode: %v", method, url, err)
	}
	return resp, env
}

func get(t *testing.T, url string) (*http.Response, envelope) {
	t.Helper()
	return do(t, http.MethodGet, url, "", nil)
}

func (ts *testServer) importWEB(t *testing.T) {
	t.Helper()
	resp, env := do(t, http.MethodPost, ts.URL+"/imports?filename=web.xml", "application/xml", []byte(webXML))
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("import: %d %+v", resp.StatusCode, env.Error)
	}
}

func TestHealthAndRoot(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp, env := get(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("health: %d %+v", resp.StatusCode, env)
	}
	var h HealthInfo
	json.Unmarshal(env.Data, &h)
	if h.Status != "healthy" || h.Versions != 0 {
		t.Errorf("health = %+v", h)
	}
	if env.Meta == nil || env.Meta.Timestamp == "" {
		t.Error("missing meta timestamp")
	}

	if resp, _ := get(t, ts.URL+"/"); resp.StatusCode != http.StatusOK {
		t.Errorf("root = %d", resp.StatusCode)
	}
	resp, env = get(t, ts.URL+"/nope")
	if resp.StatusCode != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("unknown path = %d %+v", resp.StatusCode, env.Error)
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, _ := get(t, ts.URL+"/health")
	for header, want := range map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Access-Control-Allow-Origin": "*",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestCORSRestricted(t *testing.T) {
	ts := newTestServer(t, Config{AllowedOrigins: []string{"http://console.local"}})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/versions", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("preflight from unknown origin = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/versions", nil)
	req.Header.Set("Origin", "http://console.local")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://console.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestImportAndQuery(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.importWEB(t)

	resp, env := get(t, ts.URL+"/versions")
	var versions []store.Version
	json.Unmarshal(env.Data, &versions)
	if resp.StatusCode != http.StatusOK || len(versions) != 1 || versions[0].Code != "WEB" || env.Meta.Total != 1 {
		t.Fatalf("versions = %d %+v", resp.StatusCode, versions)
	}

	_, env = get(t, ts.URL+"/books?version=world-english-bible")
	var books []store.Book
	json.Unmarshal(env.Data, &books)
	if len(books) != 1 || books[0].Name != "John" {
		t.Errorf("books = %+v", books)
	}

	_, env = get(t, ts.URL+"/reference?q=john+3:16-17+web")
	var ref ReferenceResult
	json.Unmarshal(env.Data, &ref)
	if !ref.Valid || ref.Canonical != "John 3:16-17 (WEB)" {
		t.Errorf("reference = %+v", ref)
	}

	_, env = get(t, ts.URL+"/reference?q=John+3+")
	json.Unmarshal(env.Data, &ref)
	if ref.Smart != "John 3:" {
		t.Errorf("smart = %q", ref.Smart)
	}

	_, env = get(t, ts.URL+"/lookup?q=John+3:16-17")
	var lookup LookupResult
	json.Unmarshal(env.Data, &lookup)
	if len(lookup.Verses) != 2 || lookup.Verses[0].Verse != 16 || lookup.Version.Code != "WEB" {
		t.Errorf("lookup = %+v", lookup)
	}

	_, env = get(t, ts.URL+"/lookup?q=Nowhere+1:1")
	json.Unmarshal(env.Data, &lookup)
	if len(lookup.Verses) != 0 || len(lookup.Reference.Errors) == 0 {
		t.Errorf("invalid lookup = %+v", lookup)
	}

	_, env = get(t, ts.URL+"/slides?q=John+3:16&mode=annotated")
	var sl SlidesResult
	json.Unmarshal(env.Data, &sl)
	if len(sl.Slides) != 1 || sl.Slides[0] != "16. For God so loved the world\n\n[John 3:16 (WEB)]" {
		t.Errorf("slides = %+v", sl)
	}
	if resp, _ := get(t, ts.URL+"/slides?q=John+3:16&mode=fancy"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad mode = %d", resp.StatusCode)
	}

	_, env = get(t, ts.URL+"/suggest?q=Jo&prev=J")
	var sug SuggestResult
	json.Unmarshal(env.Data, &sug)
	if sug.State != "typing_book" || len(sug.Suggestions) != 1 || sug.Completion != "John " {
		t.Errorf("suggest = %+v", sug)
	}
}

func TestImportErrors(t *testing.T) {
	ts := newTestServer(t, Config{MaxUploadBytes: 64})

	tests := []struct {
		name   string
		url    string
		ctype  string
		body   string
		status int
		code   string
	}{
		{"no url", "/imports", "application/json", `{}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad scheme", "/imports", "application/json", `{"url":"file:///etc/passwd"}`, http.StatusBadRequest, "INVALID_URL"},
		{"too large", "/imports?filename=web.xml", "application/xml", webXML, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"empty", "/imports?filename=web.xml", "application/xml", "", http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad filename", "/imports?filename=..", "application/xml", webXML, http.StatusBadRequest, "INVALID_FILENAME"},
		{"type mismatch", "/imports?filename=web.zip", "application/zip", `<bible/>`, http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE"},
		{"unparseable", "/imports?filename=x.json", "application/json", `{"verses":1}`, http.StatusUnprocessableEntity, "PARSE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, http.MethodPost, ts.URL+tt.url, tt.ctype, []byte(tt.body))
			if resp.StatusCode != tt.status || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("got %d %+v, want %d %s", resp.StatusCode, env.Error, tt.status, tt.code)
			}
		})
	}
}

func TestImportFromURL(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/web.xml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(webXML))
	}))
	defer origin.Close()
	ts := newTestServer(t, Config{})

	resp, env := do(t, http.MethodPost, ts.URL+"/imports", "application/json", []byte(`{"url":"`+origin.URL+`/web.xml"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("import = %d %+v", resp.StatusCode, env.Error)
	}

	resp, env = do(t, http.MethodPost, ts.URL+"/imports", "application/json", []byte(`{"url":"`+origin.URL+`/missing.xml"}`))
	if resp.StatusCode != http.StatusBadGateway || env.Error.Code != "DOWNLOAD_FAILED" {
		t.Errorf("missing = %d %+v", resp.StatusCode, env.Error)
	}
}

func TestActiveImportAndUninstall(t *testing.T) {
	ts := newTestServer(t, Config{})

	if resp, env := get(t, ts.URL+"/imports/active"); resp.StatusCode != http.StatusNotFound || env.Error.Code != "NO_ACTIVE_IMPORT" {
		t.Errorf("active = %d %+v", resp.StatusCode, env.Error)
	}

	ts.importWEB(t)
	resp, _ := do(t, http.MethodDelete, ts.URL+"/versions/world-english-bible", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("uninstall = %d", resp.StatusCode)
	}
	resp, env := do(t, http.MethodDelete, ts.URL+"/versions/world-english-bible", "", nil)
	if resp.StatusCode != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("second uninstall = %d %+v", resp.StatusCode, env.Error)
	}
}

func TestOutputAndService(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.importWEB(t)

	resp, env := do(t, http.MethodPost, ts.URL+"/service", "application/json", []byte(`{"q":"John 3:16-17"}`))
	var svc ServiceResult
	json.Unmarshal(env.Data, &svc)
	if resp.StatusCode != http.StatusOK || svc.Reference != "John 3:16-17" ||
		svc.Text != "For God so loved the world For God did not send his Son" {
		t.Errorf("service = %d %+v", resp.StatusCode, svc)
	}

	resp, _ = do(t, http.MethodPost, ts.URL+"/output", "application/json", []byte(`{"q":"John 3:16"}`))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("output = %d", resp.StatusCode)
	}

	resp, env = do(t, http.MethodPost, ts.URL+"/output", "application/json", []byte(`{"q":"John 3:16 KJV"}`))
	if resp.StatusCode != http.StatusNotFound || env.Error.Code != "NO_VERSES" {
		t.Errorf("missing version = %d %+v", resp.StatusCode, env.Error)
	}

	resp, env = do(t, http.MethodPost, ts.URL+"/output", "application/json", []byte(`{"q":"John 3:17-16"}`))
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(env.Error.Message, "End verse") {
		t.Errorf("bad range = %d %+v", resp.StatusCode, env.Error)
	}
}
