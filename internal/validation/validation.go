// Package validation checks user-supplied file names, paths and upload
// content before they reach the import pipeline.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"

	scerrors "github.com/FocuswithJustin/JuniperScripture/core/errors"
)

// Limits on user-supplied names.
const (
	MaxFilenameLength = 255
	MaxPathLength     = 4096
)

// Reasons wrapped by the returned *errors.ValidationError.
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrUnsupportedType  = errors.New("unsupported file type")
)

// ValidatePath rejects empty or overlong paths and paths containing control
// characters.
func ValidatePath(path string) error {
	if path == "" {
		return invalid("path", ErrEmptyPath, "")
	}
	if len(path) > MaxPathLength {
		return invalid("path", ErrPathTooLong, "")
	}
	if i := strings.IndexFunc(path, unicode.IsControl); i >= 0 {
		return invalid("path", ErrInvalidCharacter, fmt.Sprintf("control character at byte %d", i))
	}
	return nil
}

func invalid(field string, reason error, detail string) error {
	msg := reason.Error()
	if detail != "" {
		msg += ": " + detail
	}
	return &scerrors.ValidationError{Field: field, Message: msg, Err: reason}
}

// ValidateFilename checks that filename is a single safe path element.
func ValidateFilename(filename string) error {
	switch {
	case filename == "":
		return invalid("filename", ErrInvalidFilename, "empty")
	case len(filename) > MaxFilenameLength:
		return invalid("filename", ErrFilenameTooLong, "")
	case filename == "." || filename == "..":
		return invalid("filename", ErrInvalidFilename, "reserved name")
	case strings.ContainsAny(filename, `/\`):
		return invalid("filename", ErrInvalidFilename, "path separator not allowed")
	case strings.IndexFunc(filename, unicode.IsControl) >= 0:
		return invalid("filename", ErrInvalidFilename, "control character not allowed")
	case strings.HasPrefix(filename, "-"):
		return invalid("filename", ErrInvalidFilename, "filename cannot start with hyphen")
	}
	return nil
}

// SanitizeFilename reduces a client-supplied upload name to a safe file
// name: directories are dropped, control characters removed and leading
// hyphens trimmed.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	filename = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)
	filename = strings.TrimLeft(filename, "-")

	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// FileType is a Bible source type as far as it can be told from a name and
// the first bytes of content.
type FileType string

const (
	FileTypeZip     FileType = "zip"
	FileTypeGzip    FileType = "gzip"
	FileTypeXZ      FileType = "xz"
	FileTypeTarGZ   FileType = "tar.gz"
	FileTypeTarXZ   FileType = "tar.xz"
	FileTypeXML     FileType = "xml"
	FileTypeJSON    FileType = "json"
	FileTypeUnknown FileType = "unknown"
)

var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeGzip, []byte{0x1f, 0x8b}},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{FileTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}},
}

// DetectFileType checks head (the start of an upload) against filename.
// Compressed content must carry the matching extension or none at all, and
// uncompressed content must look like text. Names without a recognised
// extension are typed by content alone.
func DetectFileType(head []byte, filename string) (FileType, error) {
	detected := fromMagic(head)
	expected := fromExtension(filename)

	switch {
	case detected != FileTypeUnknown:
		if expected == FileTypeUnknown || compatible(expected, detected) {
			if expected == FileTypeTarGZ || expected == FileTypeTarXZ {
				return expected, nil
			}
			return detected, nil
		}
		return FileTypeUnknown, invalid("content", ErrUnsupportedType, fmt.Sprintf("extension suggests %s but content is %s", expected, detected))

	case !isLikelyText(head):
		return FileTypeUnknown, invalid("content", ErrUnsupportedType, "content is neither an archive nor text")

	case expected == FileTypeXML || expected == FileTypeJSON:
		return expected, nil

	case expected != FileTypeUnknown:
		return FileTypeUnknown, invalid("content", ErrUnsupportedType, fmt.Sprintf("extension suggests %s but content is text", expected))
	}

	if trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")), " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		return FileTypeJSON, nil
	}
	return FileTypeXML, nil
}

func compatible(expected, detected FileType) bool {
	switch expected {
	case FileTypeTarGZ:
		return detected == FileTypeGzip
	case FileTypeTarXZ:
		return detected == FileTypeXZ
	}
	return expected == detected
}

func fromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

func fromExtension(filename string) FileType {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FileTypeTarGZ
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FileTypeTarXZ
	case strings.HasSuffix(lower, ".gz"):
		return FileTypeGzip
	case strings.HasSuffix(lower, ".xz"):
		return FileTypeXZ
	case strings.HasSuffix(lower, ".zip"):
		return FileTypeZip
	case strings.HasSuffix(lower, ".xml"):
		return FileTypeXML
	case strings.HasSuffix(lower, ".json"):
		return FileTypeJSON
	}
	return FileTypeUnknown
}

// isLikelyText reports whether buf has no NUL bytes and at most 5% control
// characters. UTF-8 multibyte sequences count as neither.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 || bytes.IndexByte(buf, 0) >= 0 {
		return false
	}
	printable, control := 0, 0
	for _, b := range buf {
		switch {
		case b == '\t' || b == '\n' || b == '\r' || (b >= 0x20 && b <= 0x7e):
			printable++
		case b < 0x20:
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
