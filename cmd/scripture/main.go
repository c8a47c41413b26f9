// Command scripture imports Bible translations into a local verse store and
// resolves free-text references against it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/JuniperScripture/core/sqlite"
	"github.com/FocuswithJustin/JuniperScripture/internal/api"
	"github.com/FocuswithJustin/JuniperScripture/internal/config"
	"github.com/FocuswithJustin/JuniperScripture/internal/ingest"
	"github.com/FocuswithJustin/JuniperScripture/internal/library"
	"github.com/FocuswithJustin/JuniperScripture/internal/logging"
	"github.com/FocuswithJustin/JuniperScripture/internal/slides"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
	"github.com/FocuswithJustin/JuniperScripture/internal/validation"
)

const version = "0.1.0"

// Globals are flags shared by every command. Empty values fall back to the
// SCRIPTURE_* environment configuration.
type Globals struct {
	DB        string `name:"db" help:"Verse store path" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (json, text)"`
	JSON      bool   `name:"json" help:"Print machine-readable JSON"`

	cfg    *config.Config `kong:"-"`
	stdout io.Writer      `kong:"-"`
	stderr io.Writer      `kong:"-"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Import    ImportCmd    `cmd:"" help:"Import a Bible from a file or URL (.json, .xml, .zip, .gz, .xz)"`
	Uninstall UninstallCmd `cmd:"" help:"Remove an installed version"`
	Versions  VersionsCmd  `cmd:"" help:"List installed versions"`
	Books     BooksCmd     `cmd:"" help:"List books of installed versions"`
	Parse     ParseCmd     `cmd:"" help:"Parse a reference such as \"John 3:16-18 NKJV\""`
	Suggest   SuggestCmd   `cmd:"" help:"Show autocomplete suggestions for partial input"`
	Lookup    LookupCmd    `cmd:"" help:"Print the verses of a reference"`
	Slides    SlidesCmd    `cmd:"" help:"Render a reference as projector slides"`
	Serve     ServeCmd     `cmd:"" help:"Start the HTTP API and websocket feed"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// open loads the store and library described by the configuration.
func (g *Globals) open(ctx context.Context, opts library.Options) (*library.Library, func(), error) {
	st, err := store.Open(ctx, g.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	mode, err := slides.ParseMode(g.cfg.SlideMode)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	opts.DefaultVersion = g.cfg.DefaultVersion
	opts.SlideMode = mode
	opts.Pipeline = ingest.Options{
		BatchSize: g.cfg.BatchSize,
		Client:    ingest.NewHTTPClient(g.cfg.DownloadTimeout, g.cfg.UserAgent),
	}
	return library.New(st, opts), func() { st.Close() }, nil
}

func (g *Globals) printJSON(v any) error {
	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ImportCmd imports a Bible.
type ImportCmd struct {
	Source string `arg:"" help:"File path or http(s) URL"`
	Quiet  bool   `short:"q" help:"Do not print progress"`
}

func (c *ImportCmd) Run(g *Globals) error {
	ctx := context.Background()
	last := ""
	lib, closeFn, err := g.open(ctx, library.Options{
		OnProgress: func(s library.ImportStatus) {
			line := fmt.Sprintf("%s %d%%", s.Phase, s.Percent)
			if c.Quiet || line == last {
				return
			}
			last = line
			fmt.Fprintln(g.stderr, line)
		},
	})
	if err != nil {
		return err
	}
	defer closeFn()

	var src ingest.Source
	if strings.HasPrefix(c.Source, "http://") || strings.HasPrefix(c.Source, "https://") {
		src = ingest.FromURL(c.Source)
	} else {
		if err := validation.ValidatePath(c.Source); err != nil {
			return err
		}
		src = ingest.FromFile(c.Source)
	}
	res, err := lib.Import(ctx, src)
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(res)
	}
	fmt.Fprintf(g.stdout, "Imported %s (%s) as %s: %d books, %d verses in %s\n",
		res.Version.Name, res.Version.Code, res.Version.ID, res.Books, res.Verses, res.Duration.Round(time.Millisecond))
	if s := res.Stats; s.Dropped+s.Duplicates+s.Synthesized+s.Raised > 0 {
		fmt.Fprintf(g.stdout, "Normalized: %d dropped, %d duplicates, %d books synthesized, %d chapter counts raised\n",
			s.Dropped, s.Duplicates, s.Synthesized, s.Raised)
	}
	return nil
}

// UninstallCmd removes a version.
type UninstallCmd struct {
	ID string `arg:"" help:"Version id (see 'versions')"`
}

func (c *UninstallCmd) Run(g *Globals) error {
	ctx := context.Background()
	lib, closeFn, err := g.open(ctx, library.Options{})
	if err != nil {
		return err
	}
	defer closeFn()
	if err := lib.Uninstall(ctx, c.ID); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "Uninstalled %s\n", c.ID)
	return nil
}

// VersionsCmd lists versions.
type VersionsCmd struct{}

func (c *VersionsCmd) Run(g *Globals) error {
	ctx := context.Background()
	lib, closeFn, err := g.open(ctx, library.Options{})
	if err != nil {
		return err
	}
	defer closeFn()

	versions, err := lib.Versions(ctx)
	if err != nil {
		return err
	}
	if g.JSON {
		if versions == nil {
			versions = []store.Version{}
		}
		return g.printJSON(versions)
	}
	if len(versions) == 0 {
		fmt.Fprintln(g.stdout, "No versions installed.")
		return nil
	}
	tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tNAME\tUPDATED")
	for _, v := range versions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Code, v.Name, v.LastUpdated.Format("2006-01-02"))
	}
	return tw.Flush()
}

// BooksCmd lists books.
type BooksCmd struct {
	Version string `short:"v" help:"Only books of this version id"`
}

func (c *BooksCmd) Run(g *Globals) error {
	ctx := context.Background()
	lib, closeFn, err := g.open(ctx, library.Options{})
	if err != nil {
		return err
	}
	defer closeFn()

	books, err := lib.Books(ctx)
	if err != nil {
		return err
	}
	var out []store.Book
	for _, b := range books {
		if c.Version == "" || strings.EqualFold(b.Version, c.Version) {
			out = append(out, b)
		}
	}
	if g.JSON {
		if out == nil {
			out = []store.Book{}
		}
		return g.printJSON(out)
	}
	tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tID\tNAME\tCHAPTERS")
	for _, b := range out {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.Version, b.ID, b.Name, b.Chapters)
	}
	return tw.Flush()
}

// ParseCmd parses a reference.
type ParseCmd struct {
	Ref []string `arg:"" help:"Reference text"`
}

func (c *ParseCmd) Run(g *Globals) error {
	ctx := context.Background()
	lib, closeFn, err := g.open(ctx, library.Options{})
	if err != nil {
		return err
	}
	defer closeFn()

	ref, err := lib.Parse(ctx, strings.Join(c.Ref, " "))
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(ref)
	}
	if len(ref.Errors) > 0 {
		return fmt.Errorf("%s", strings.Join(ref.Errors, "; "))
	}
	fmt.Fprintln(g.stdout, ref.String())
	return nil
}

// SuggestCmd prints suggestions.
type SuggestCmd struct {
	Input string `arg:"" help:"Partial input; quote it to keep trailing spaces"`
	Prev  string `help:"Previous input, enables inline completion"`
}

func (c *SuggestCmd) Run(g *Globals) error {
	ctx := context.Background()
	lib, closeFn, err := g.open(ctx, library.Options{})
	if err != nil {
		return err
	}
	defer closeFn()

	engine, err := lib.Completer(ctx)
	if err != nil {
		return err
	}
	suggestions := engine.Suggest(c.Input)
	completed, ok := "", false
	if c.Prev != "" {
		completed, ok = engine.InlineComplete(c.Prev, c.Input)
	}
	if g.JSON {
		return g.printJSON(map[string]any{"suggestions": suggestions, "completion": completed})
	}
	if ok {
		fmt.Fprintf(g.stdout, "complete: %q\n", completed)
	}
	for _, s := range suggestions {
		if s.Description != "" {
			fmt.Fprintf(g.stdout, "%s\t%s\t%s\n", s.Type, s.Text, s.Description)
			continue
		}
		fmt.Fprintf(g.stdout, "%s\t%s\n", s.Type, s.Text)
	}
	return nil
}

// LookupCmd prints verses.
type LookupCmd struct {
	Ref []string `arg:"" help:"Reference text, e.g. John 3:16-18 KJV"`
}

func (c *LookupCmd) Run(g *Globals) error {
	ctx := context.Background()
	lib, closeFn, err := g.open(ctx, library.Options{})
	if err != nil {
		return err
	}
	defer closeFn()

	ref, err := lib.Parse(ctx, strings.Join(c.Ref, " "))
	if err != nil {
		return err
	}
	if len(ref.Errors) > 0 {
		return fmt.Errorf("%s", strings.Join(ref.Errors, "; "))
	}
	verses, v, err := lib.Lookup(ctx, ref)
	if err != nil {
		return err
	}
	if g.JSON {
		if verses == nil {
			verses = []store.Verse{}
		}
		return g.printJSON(verses)
	}
	if len(verses) == 0 {
		return fmt.Errorf("no verses found for %s", ref.String())
	}
	fmt.Fprintf(g.stdout, "%s (%s)\n", ref.String(), v.Code)
	for _, verse := range verses {
		fmt.Fprintf(g.stdout, "%d %s\n", verse.Verse, verse.Text)
	}
	return nil
}

// SlidesCmd renders slides.
type SlidesCmd struct {
	Ref  []string `arg:"" help:"Reference text"`
	Mode string   `short:"m" help:"plain or annotated (default from SCRIPTURE_SLIDE_MODE)"`
}

func (c *SlidesCmd) Run(g *Globals) error {
	ctx := context.Background()
	var mode slides.Mode
	if c.Mode != "" {
		var err error
		if mode, err = slides.ParseMode(c.Mode); err != nil {
			return err
		}
	}
	lib, closeFn, err := g.open(ctx, library.Options{})
	if err != nil {
		return err
	}
	defer closeFn()

	ref, err := lib.Parse(ctx, strings.Join(c.Ref, " "))
	if err != nil {
		return err
	}
	if len(ref.Errors) > 0 {
		return fmt.Errorf("%s", strings.Join(ref.Errors, "; "))
	}
	out, err := lib.Slides(ctx, ref, mode)
	if err != nil {
		return err
	}
	if g.JSON {
		return g.printJSON(out)
	}
	fmt.Fprintln(g.stdout, strings.Join(out, "\n---\n"))
	return nil
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Port int `help:"HTTP port (default from SCRIPTURE_HTTP_PORT)"`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	lib, closeFn, err := g.open(ctx, library.Options{
		Notifier:   hub,
		Output:     hub.Output,
		Service:    hub.Service,
		OnProgress: hub.ImportProgress,
	})
	if err != nil {
		return err
	}
	defer closeFn()

	port := g.cfg.HTTPPort
	if c.Port != 0 {
		port = c.Port
	}
	srv := api.New(lib, hub, api.Config{
		Port:           port,
		AllowedOrigins: g.cfg.AllowedOrigins,
		MaxUploadBytes: g.cfg.MaxUploadBytes,
	})

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	grp.Go(func() error { return srv.ListenAndServe(ctx) })
	return grp.Wait()
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(g.stdout, "scripture version %s (sqlite: %s, %s)\n", version, info.DriverType, info.Package)
	return nil
}

// run parses args and executes the selected command. It returns the process
// exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("scripture"),
		kong.Description("Juniper Scripture - Bible import and reference lookup"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	g := &cli.Globals
	if g.DB != "" {
		cfg.DBPath = g.DB
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.LogFormat = g.LogFormat
	}
	g.cfg, g.stdout, g.stderr = cfg, stdout, stderr
	logging.InitLoggerTo(stderr, logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat))

	if err := kctx.Run(g); err != nil {
		fmt.Fprintf(stderr, "scripture: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
