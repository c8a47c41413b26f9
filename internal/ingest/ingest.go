// Package ingest imports Bible files into the store.
//
// An import runs the phases downloading, unzipping, parsing and importing in
// order. Any failure returns to idle with the triggering error. Parse errors
// happen before the store transaction opens, and a failed commit rolls back,
// so a failed import never leaves a partial version behind.
package ingest

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/JuniperScripture/internal/format"
	"github.com/FocuswithJustin/JuniperScripture/internal/logging"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// Phase names a pipeline stage.
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseUnzipping   Phase = "unzipping"
	PhaseParsing     Phase = "parsing"
	PhaseImporting   Phase = "importing"
)

// Progress is one progress report.
type Progress struct {
	Phase   Phase `json:"phase"`
	Percent int   `json:"percent"`
}

// ProgressFunc receives progress reports. It is called synchronously from
// the importing goroutine.
type ProgressFunc func(Progress)

// Source is where an import reads its file from.
type Source struct {
	url      string
	path     string
	data     []byte
	filename string
}

// FromURL downloads the file with a single HTTP GET.
func FromURL(u string) Source {
	return Source{url: u}
}

// FromBytes imports an in-memory buffer. filename is optional and only used
// as a format and naming hint.
func FromBytes(data []byte, filename string) Source {
	return Source{data: data, filename: filename}
}

// FromFile reads a local file.
func FromFile(path string) Source {
	return Source{path: path}
}

// String describes the source for logs.
func (s Source) String() string {
	switch {
	case s.url != "":
		return s.url
	case s.path != "":
		return s.path
	case s.filename != "":
		return s.filename
	}
	return "buffer"
}

// Result summarizes a completed import.
type Result struct {
	Version  store.Version `json:"version"`
	Books    int           `json:"books"`
	Verses   int           `json:"verses"`
	Format   format.Format `json:"format"`
	Archive  string        `json:"archive,omitempty"`
	Stats    format.Stats  `json:"stats"`
	Duration time.Duration `json:"duration"`
}

// VersionWriter is the part of the store the pipeline writes to.
type VersionWriter interface {
	ReplaceVersion(ctx context.Context, v store.Version, books []store.Book, verses []store.Verse, batchSize int, onBatch store.BatchFunc) error
}

// Options configures a Pipeline. Zero values select defaults.
type Options struct {
	BatchSize int
	Client    *resty.Client
	Now       func() time.Time
}

// Pipeline runs imports against one store. It holds no per-import state;
// callers serialize imports.
type Pipeline struct {
	store     VersionWriter
	client    *resty.Client
	batchSize int
	now       func() time.Time
}

// New creates a pipeline writing to w.
func New(w VersionWriter, opts Options) *Pipeline {
	p := &Pipeline{
		store:     w,
		client:    opts.Client,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
	if p.client == nil {
		p.client = NewHTTPClient(5*time.Minute, "")
	}
	if p.batchSize <= 0 {
		p.batchSize = store.DefaultBatchSize
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Import runs one import to completion. progress may be nil.
func (p *Pipeline) Import(ctx context.Context, src Source, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	res, err := p.run(ctx, src, progress)
	var (
		versionID string
		verses    int
	)
	if res != nil {
		res.Duration = time.Since(start)
		versionID, verses = res.Version.ID, res.Verses
	}
	logging.ImportFinished(ctx, versionID, verses, time.Since(start), err, "source", src.String())
	return res, err
}

func (p *Pipeline) run(ctx context.Context, src Source, progress ProgressFunc) (*Result, error) {
	reporter := func(phase Phase) func(int) {
		return func(pct int) {
			logging.ImportPhase(ctx, string(phase), pct)
			if progress != nil {
				progress(Progress{Phase: phase, Percent: pct})
			}
		}
	}

	data, name := src.data, src.filename
	switch {
	case src.url != "":
		var err error
		data, name, err = p.download(ctx, src.url, reporter(PhaseDownloading))
		if err != nil {
			return nil, err
		}
	case src.path != "":
		b, err := os.ReadFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.path, err)
		}
		data, name = b, filepath.Base(src.path)
	}

	unzipping := reporter(PhaseUnzipping)
	unzipping(0)
	u, err := unpack(data, name)
	if err != nil {
		return nil, err
	}
	unzipping(100)

	f := format.Detect(u.name, u.content)
	filename := u.name
	if filename == "" {
		filename = "bible." + string(f)
	}
	bible, err := format.Parse(f, u.content, filename, reporter(PhaseParsing))
	if err != nil {
		return nil, err
	}
	if st := bible.Stats; st != (format.Stats{}) {
		logf := logging.InfoContext
		if st.Dropped > 0 {
			logf = logging.WarnContext
		}
		logf(ctx, "import_normalized",
			"version", bible.Version.ID,
			"dropped", st.Dropped,
			"duplicates", st.Duplicates,
			"synthesized_books", st.Synthesized,
			"raised_books", st.Raised)
	}

	sum := blake3.Sum256(u.content)
	bible.Version.SourceHash = hex.EncodeToString(sum[:])
	bible.Version.LastUpdated = p.now().UTC()

	importing := reporter(PhaseImporting)
	importing(0)
	err = p.store.ReplaceVersion(ctx, bible.Version, bible.Books, bible.Verses, p.batchSize,
		func(batch, total int) { importing(percent(batch, total)) })
	if err != nil {
		return nil, err
	}

	return &Result{
		Version: bible.Version,
		Books:   len(bible.Books),
		Verses:  len(bible.Verses),
		Format:  f,
		Archive: u.archive,
		Stats:   bible.Stats,
	}, nil
}

// percent rounds batch/total to the nearest whole percent.
func percent(batch, total int) int {
	if total <= 0 {
		return 100
	}
	return (batch*200 + total) / (2 * total)
}
