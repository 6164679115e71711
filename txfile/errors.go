package txfile

import "errors"

// Sentinel errors returned by this package. The root package wraps these in
// its own typed Error with a Kind tag; txfile itself stays dependency-free
// of the root package to avoid an import cycle.
var (
	ErrChecksumMismatch = errors.New("page checksum mismatch")
	ErrNoTransaction    = errors.New("no active transaction")
	ErrJournalCorrupt   = errors.New("corrupt journal entry")
)
