// Package sqliteexternal provides the optional CGO SQLite driver.
//
// To use the CGO driver (github.com/mattn/go-sqlite3) for the verse store:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/scripture
//
// By default the store uses modernc.org/sqlite, which needs no CGO. See
// github.com/FocuswithJustin/JuniperScripture/core/sqlite for driver selection.
//
// The CGO driver is noticeably faster when bulk importing large translations
// (tens of thousands of verses per version).
package sqliteexternal
