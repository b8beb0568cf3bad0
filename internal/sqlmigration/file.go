// Package sqlmigration turns a directory of plain SQL scripts into
// migration definitions. Each migration is an up script plus an optional
// down script (which makes it rollbackable) and an optional verify script
// returning a single boolean.
package sqlmigration

import (
	"crypto/sha256"
	"encoding/hex"
)

// File is one SQL migration loaded from disk.
type File struct {
	Version   string // "001" or "20240101120000", extracted from the file name
	Name      string // "backfill_user_slugs", the registry key
	UpSQL     string
	DownSQL   string // empty if there is no .down.sql
	VerifySQL string // empty if there is no .verify.sql
	Checksum  string // SHA-256 hex digest of UpSQL
	Path      string // path to the .up.sql file
}

// Reversible reports whether the file has a down script.
func (f File) Reversible() bool {
	return f.DownSQL != ""
}

// Verifiable reports whether the file has a verify script.
func (f File) Verifiable() bool {
	return f.VerifySQL != ""
}

// ComputeChecksum returns the SHA-256 hex digest of the given SQL string.
func ComputeChecksum(sql string) string {
	h := sha256.Sum256([]byte(sql))

	return hex.EncodeToString(h[:])
}
