// Package sqlite keeps document metadata in a local SQLite database
// (modernc.org/sqlite, no cgo). It backs the knowledge service when the
// storage backend is "local".
package sqlite
