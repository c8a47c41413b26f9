// Package library ties the verse store, the import pipeline, lookups and
// slide rendering together behind one object that a CLI or HTTP server can
// drive.
package library

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/internal/cache"
	"github.com/FocuswithJustin/JuniperScripture/internal/complete"
	"github.com/FocuswithJustin/JuniperScripture/internal/ingest"
	"github.com/FocuswithJustin/JuniperScripture/internal/logging"
	"github.com/FocuswithJustin/JuniperScripture/internal/lookup"
	"github.com/FocuswithJustin/JuniperScripture/internal/reference"
	"github.com/FocuswithJustin/JuniperScripture/internal/slides"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

var (
	// ErrImportActive is returned when an import starts while another runs.
	ErrImportActive = stderrors.New("an import is already in progress")
	// ErrNoVerses is returned when an action needs at least one verse.
	ErrNoVerses = stderrors.New("no verses to send")
)

// Level is the severity of a Notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a short user-facing message about a finished action.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// OutputFunc sends rendered slides to the presentation output.
type OutputFunc func(slides []string)

// ServiceFunc appends a passage to the service order.
type ServiceFunc func(ref, text string)

// ImportStatus describes the running import.
type ImportStatus struct {
	ID        string       `json:"id"`
	Source    string       `json:"source"`
	Phase     ingest.Phase `json:"phase"`
	Percent   int          `json:"percent"`
	StartedAt time.Time    `json:"started_at"`
}

// Options configures a Library. Zero values select defaults.
type Options struct {
	DefaultVersion string
	SlideMode      slides.Mode
	Pipeline       ingest.Options

	Notifier Notifier
	Output   OutputFunc
	Service  ServiceFunc

	// OnProgress is called for every progress report of an import,
	// including the final one.
	OnProgress func(ImportStatus)
}

const snapshotKey = "all"

// Library is the engine facade. It is safe for concurrent use; imports are
// serialized and at most one runs at a time.
type Library struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	lookup   *lookup.Service
	renderer slides.Renderer
	opts     Options

	books    *cache.TTLCache[string, []store.Book]
	versions *cache.TTLCache[string, []store.Version]

	mu     sync.Mutex
	active *ImportStatus
}

// New creates a library over st.
func New(st *store.Store, opts Options) *Library {
	if opts.SlideMode == "" {
		opts.SlideMode = slides.ModeAnnotated
	}
	l := &Library{
		store:    st,
		pipeline: ingest.New(st, opts.Pipeline),
		renderer: slides.Renderer{Mode: opts.SlideMode},
		opts:     opts,
		books:    cache.New[string, []store.Book](0),
		versions: cache.New[string, []store.Version](0),
	}
	l.lookup = lookup.New(cachedReader{l}, opts.DefaultVersion)
	return l
}

// ActiveImport returns the running import, if any.
func (l *Library) ActiveImport() (ImportStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil {
		return ImportStatus{}, false
	}
	return *l.active, true
}

// ImportURL downloads and imports the Bible at url.
func (l *Library) ImportURL(ctx context.Context, url string) (*ingest.Result, error) {
	return l.Import(ctx, ingest.FromURL(url))
}

// Import runs src through the pipeline. It fails with ErrImportActive when
// another import is running.
func (l *Library) Import(ctx context.Context, src ingest.Source) (*ingest.Result, error) {
	status, err := l.begin(src)
	if err != nil {
		return nil, err
	}
	defer l.finish()

	ctx = logging.WithImportID(ctx, status.ID)
	res, err := l.pipeline.Import(ctx, src, l.progress)
	l.invalidate()
	if err != nil {
		l.notify(LevelError, fmt.Sprintf("Import failed: %v", err))
		return nil, err
	}
	l.notify(LevelSuccess, fmt.Sprintf("%q imported successfully", res.Version.Name))
	return res, nil
}

func (l *Library) begin(src ingest.Source) (ImportStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != nil {
		return ImportStatus{}, ErrImportActive
	}
	l.active = &ImportStatus{
		ID:        uuid.New().String(),
		Source:    src.String(),
		StartedAt: time.Now().UTC(),
	}
	return *l.active, nil
}

func (l *Library) finish() {
	l.mu.Lock()
	l.active = nil
	l.mu.Unlock()
}

func (l *Library) progress(p ingest.Progress) {
	l.mu.Lock()
	if l.active == nil {
		l.mu.Unlock()
		return
	}
	l.active.Phase = p.Phase
	l.active.Percent = p.Percent
	status := *l.active
	l.mu.Unlock()

	if l.opts.OnProgress != nil {
		l.opts.OnProgress(status)
	}
}

// Uninstall removes a version. It returns a NotFoundError when id is not
// installed.
func (l *Library) Uninstall(ctx context.Context, id string) error {
	existed, err := l.store.DeleteVersion(ctx, id)
	l.invalidate()
	if err != nil {
		l.notify(LevelError, "Failed to uninstall version")
		return err
	}
	if !existed {
		return errors.NewNotFound("version", id)
	}
	logging.InfoContext(ctx, "version_uninstalled", "version_id", id)
	l.notify(LevelSuccess, "Bible version uninstalled")
	return nil
}

// Versions returns the installed versions ordered by id.
func (l *Library) Versions(ctx context.Context) ([]store.Version, error) {
	return l.versions.Load(ctx, snapshotKey, l.store.Versions)
}

// Books returns the books of every installed version.
func (l *Library) Books(ctx context.Context) ([]store.Book, error) {
	return l.books.Load(ctx, snapshotKey, l.store.Books)
}

func (l *Library) invalidate() {
	l.books.Invalidate()
	l.versions.Invalidate()
}

// Parse parses text against the installed books.
func (l *Library) Parse(ctx context.Context, text string) (reference.Reference, error) {
	books, err := l.Books(ctx)
	if err != nil {
		return reference.Reference{}, err
	}
	return reference.Parse(text, books), nil
}

// Completer returns an autocomplete engine over the current snapshot.
func (l *Library) Completer(ctx context.Context) (*complete.Engine, error) {
	books, err := l.Books(ctx)
	if err != nil {
		return nil, err
	}
	versions, err := l.Versions(ctx)
	if err != nil {
		return nil, err
	}
	return &complete.Engine{Books: books, Versions: versions}, nil
}

// Suggest returns autocomplete suggestions for input.
func (l *Library) Suggest(ctx context.Context, input string) ([]complete.Suggestion, error) {
	e, err := l.Completer(ctx)
	if err != nil {
		return nil, err
	}
	return e.Suggest(input), nil
}

// InlineComplete applies the inline book completion to an edit from
// previous to current.
func (l *Library) InlineComplete(ctx context.Context, previous, current string) (string, bool, error) {
	e, err := l.Completer(ctx)
	if err != nil {
		return "", false, err
	}
	completed, ok := e.InlineComplete(previous, current)
	return completed, ok, nil
}

// Lookup returns the verses ref names and the version they were read from.
func (l *Library) Lookup(ctx context.Context, ref reference.Reference) ([]store.Verse, *store.Version, error) {
	return l.lookup.LookupWithVersion(ctx, ref)
}

// Slides looks up ref and renders it in mode, or the configured mode when
// mode is empty.
func (l *Library) Slides(ctx context.Context, ref reference.Reference, mode slides.Mode) ([]string, error) {
	verses, version, err := l.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	r := l.renderer
	if mode != "" {
		r.Mode = mode
	}
	code := ""
	if version != nil {
		code = version.Code
	}
	return r.Render(verses, code), nil
}

// SendToOutput renders ref and passes the slides to the output. It returns
// the number of slides sent.
func (l *Library) SendToOutput(ctx context.Context, ref reference.Reference) (int, error) {
	out, err := l.Slides(ctx, ref, "")
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, ErrNoVerses
	}
	if l.opts.Output != nil {
		l.opts.Output(out)
	}
	return len(out), nil
}

// AddToService formats verses as one service entry and passes it on.
func (l *Library) AddToService(verses []store.Verse) (ref, text string, err error) {
	if len(verses) == 0 {
		return "", "", ErrNoVerses
	}
	ref, text = slides.ServiceEntry(verses)
	if l.opts.Service != nil {
		l.opts.Service(ref, text)
	}
	return ref, text, nil
}

func (l *Library) notify(level Level, msg string) {
	if l.opts.Notifier != nil {
		l.opts.Notifier.Notify(Notification{Level: level, Message: msg})
	}
}

// cachedReader serves lookups from the version snapshot.
type cachedReader struct{ l *Library }

func (r cachedReader) Versions(ctx context.Context) ([]store.Version, error) {
	return r.l.Versions(ctx)
}

func (r cachedReader) ChapterVerses(ctx context.Context, version, bookID string, chapter int) ([]store.Verse, error) {
	return r.l.store.ChapterVerses(ctx, version, bookID, chapter)
}
