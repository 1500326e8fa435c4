// Package reconcile implements the pure, dependency-free helpers both
// daemons share: name derivation, conflict-copy naming, content hashing,
// and path containment checks.
package reconcile

import (
	"crypto/md5" //nolint:gosec // content identity, not security: matches the hosted drive's own md5Checksum field
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// FileName returns the base name of a filesystem path.
func FileName(path string) string {
	return filepath.Base(path)
}

// conflictTimeFormat produces the "[DD.MM.YY HH:MM:SS] " prefix a colliding
// local file is renamed under before upload.
const conflictTimeFormat = "02.01.06 15:04:05"

// TimestampedCopyName returns path's file name prefixed with the current
// time as "[DD.MM.YY HH:MM:SS] name", the name a local file is renamed to
// when it collides with an existing, differently-versioned remote file of
// the same name.
func TimestampedCopyName(path string, now time.Time) string {
	return "[" + now.Format(conflictTimeFormat) + "] " + FileName(path)
}

// MD5Hex returns the lower-case hex MD5 digest of data, matching the
// hosted drive's own md5Checksum field format exactly.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // see import comment
	return hex.EncodeToString(sum[:])
}

// StartsWithRoot reports whether path lies within root (both expected to be
// absolute, clean paths).
func StartsWithRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
