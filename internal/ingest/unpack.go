package ingest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/internal/logging"
)

// maxUnpacked bounds the size of a decompressed Bible file.
const maxUnpacked = 512 << 20

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// tarMagicAt is the offset of "ustar" in a POSIX tar header.
const tarMagicAt = 257

// unpacked is the file content the parser sees.
type unpacked struct {
	content []byte
	name    string // member or filename hint, used for format detection
	archive string // "zip", "gzip", "xz", "tar.gz", "tar.xz" or "" for raw input
}

// unpack extracts the Bible file from data. A ZIP archive must contain a
// .json or .xml member, otherwise it is an UnzipError. Content that fails to
// decompress, including a ZIP member that cannot be read, is returned
// unchanged so the parser can try it as a raw file. Only exceeding
// maxUnpacked is fatal.
func unpack(data []byte, name string) (*unpacked, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return raw(data, name, "zip", err), nil
		}
		return unzipMember(zr, data, name)

	case bytes.HasPrefix(data, gzipMagic):
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return raw(data, name, "gzip", err), nil
		}
		defer gz.Close()
		inner := gz.Name
		if inner == "" {
			inner = trimExt(name, ".gz", ".tgz")
		}
		return decompressed(gz, data, name, inner, "gzip")

	case bytes.HasPrefix(data, xzMagic):
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return raw(data, name, "xz", err), nil
		}
		return decompressed(xr, data, name, trimExt(name, ".xz", ".txz"), "xz")
	}
	return &unpacked{content: data, name: name}, nil
}

// raw falls back to the undecoded buffer.
func raw(data []byte, name, kind string, err error) *unpacked {
	logging.Debug("unpack_fallback", "archive", kind, "name", name, "error", err)
	return &unpacked{content: data, name: name}
}

func decompressed(r io.Reader, data []byte, name, inner, kind string) (*unpacked, error) {
	content, err := readLimited(r)
	if err != nil {
		if errors.Is(err, errors.ErrUnzip) {
			return nil, err
		}
		return raw(data, name, kind, err), nil
	}
	if isTar(content) {
		return untarMember(content, data, name, tarKinds[kind])
	}
	return &unpacked{content: content, name: inner, archive: kind}, nil
}

var tarKinds = map[string]string{"gzip": "tar.gz", "xz": "tar.xz"}

func unzipMember(zr *zip.Reader, data []byte, archive string) (*unpacked, error) {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isBibleFile(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return raw(data, archive, "zip", fmt.Errorf("open %s: %w", f.Name, err)), nil
		}
		content, err := readLimited(rc)
		rc.Close()
		if err != nil {
			if errors.Is(err, errors.ErrUnzip) {
				return nil, err
			}
			return raw(data, archive, "zip", fmt.Errorf("read %s: %w", f.Name, err)), nil
		}
		return &unpacked{content: content, name: f.Name, archive: "zip"}, nil
	}
	return nil, errors.NewUnzip(archive, "no .json or .xml file in archive")
}

// untarMember reads the Bible file from the tar stream in content. data is
// the original compressed input, returned by the raw fallback.
func untarMember(content, data []byte, archive, kind string) (*unpacked, error) {
	tr := tar.NewReader(bytes.NewReader(content))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw(data, archive, kind, fmt.Errorf("tar: %w", err)), nil
		}
		if hdr.Typeflag != tar.TypeReg || !isBibleFile(hdr.Name) {
			continue
		}
		member, err := readLimited(tr)
		if err != nil {
			if errors.Is(err, errors.ErrUnzip) {
				return nil, err
			}
			return raw(data, archive, kind, fmt.Errorf("read %s: %w", hdr.Name, err)), nil
		}
		return &unpacked{content: member, name: hdr.Name, archive: kind}, nil
	}
	return nil, errors.NewUnzip(archive, "no .json or .xml file in archive")
}

func readLimited(r io.Reader) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, maxUnpacked+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxUnpacked {
		return nil, errors.NewUnzip("", fmt.Sprintf("decompressed content exceeds %d bytes", maxUnpacked))
	}
	return content, nil
}

func isTar(data []byte) bool {
	return len(data) > tarMagicAt+5 && string(data[tarMagicAt:tarMagicAt+5]) == "ustar"
}

func isBibleFile(name string) bool {
	// macOS archives carry "._name.xml" resource forks next to the real file.
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".xml":
		return true
	}
	return false
}

func trimExt(name string, exts ...string) string {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}
