// Package lookup resolves a parsed reference to the verses it names.
package lookup

import (
	"context"
	"sort"
	"strings"

	"github.com/FocuswithJustin/JuniperScripture/internal/reference"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
)

// DefaultVersionCode is preferred when a reference names no version.
const DefaultVersionCode = "NKJV"

// Reader is the part of the store lookups need.
type Reader interface {
	Versions(ctx context.Context) ([]store.Version, error)
	ChapterVerses(ctx context.Context, version, bookID string, chapter int) ([]store.Verse, error)
}

// Service looks up verses.
type Service struct {
	store       Reader
	defaultCode string
}

// New creates a lookup service. An empty defaultCode selects NKJV.
func New(r Reader, defaultCode string) *Service {
	if defaultCode == "" {
		defaultCode = DefaultVersionCode
	}
	return &Service{store: r, defaultCode: defaultCode}
}

// ResolveVersion picks the version a reference reads from. An explicit code
// matches a version code or id ignoring case and never falls back, so a
// missing translation shows nothing rather than the wrong one. Without a code
// the default code wins, else the first installed version. It returns nil
// when nothing matches.
func ResolveVersion(versions []store.Version, code, defaultCode string) *store.Version {
	if code != "" {
		for i := range versions {
			if strings.EqualFold(versions[i].Code, code) || strings.EqualFold(versions[i].ID, code) {
				return &versions[i]
			}
		}
		return nil
	}
	for i := range versions {
		if strings.EqualFold(versions[i].Code, defaultCode) {
			return &versions[i]
		}
	}
	if len(versions) > 0 {
		return &versions[0]
	}
	return nil
}

// Lookup returns the verses of ref ascending by verse number. A reference
// with errors, no book or no chapter yields no verses and no error.
func (s *Service) Lookup(ctx context.Context, ref reference.Reference) ([]store.Verse, error) {
	verses, _, err := s.LookupWithVersion(ctx, ref)
	return verses, err
}

// LookupWithVersion is Lookup that also reports the version read from.
func (s *Service) LookupWithVersion(ctx context.Context, ref reference.Reference) ([]store.Verse, *store.Version, error) {
	if len(ref.Errors) > 0 || ref.Book == nil || ref.Chapter <= 0 {
		return nil, nil, nil
	}
	versions, err := s.store.Versions(ctx)
	if err != nil {
		return nil, nil, err
	}
	version := ResolveVersion(versions, ref.VersionCode, s.defaultCode)
	if version == nil {
		return nil, nil, nil
	}

	all, err := s.store.ChapterVerses(ctx, version.ID, ref.Book.ID, ref.Chapter)
	if err != nil {
		return nil, nil, err
	}
	return Filter(all, ref.VerseStart, ref.VerseEnd), version, nil
}

// Filter keeps verses in [start, end], or only start when end is zero, or
// everything when start is zero. The result is sorted by verse number.
func Filter(verses []store.Verse, start, end int) []store.Verse {
	out := make([]store.Verse, 0, len(verses))
	for _, v := range verses {
		switch {
		case start <= 0:
		case end > 0 && (v.Verse < start || v.Verse > end):
			continue
		case end <= 0 && v.Verse != start:
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Verse < out[j].Verse })
	return out
}
