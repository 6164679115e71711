package ouroboros

import (
	"time"

	"github.com/ouroboros-db/ouroboros/txfile"
)

// Config holds dataset-open configuration, matching the teacher's
// folio.Config defaulting pattern (db.go's Open fills zero-valued fields
// before use) generalized from a single hash-algorithm choice to the
// broader knob set a transactional paged engine needs.
type Config struct {
	// PageSize is the fixed cache/file page size in bytes. Default 4096.
	PageSize int
	// PoolCapacity is the number of resident cache pages. Default 256.
	PoolCapacity int
	// ChecksumAlgorithm selects the page checksum. Zero is not a valid
	// "disabled" sentinel here: withDefaults fills an unset field with
	// txfile.ChecksumXXH3, so every dataset opened through Open carries a
	// checksum. Pass a non-zero txfile.ChecksumAlgorithm to pick a
	// different one.
	ChecksumAlgorithm txfile.ChecksumAlgorithm
	// CompressBackupPages enables zstd compression of captured pre-image
	// pages in the backup file. Default false (opt-in, like the teacher's
	// SyncWrites).
	CompressBackupPages bool
	// SyncOnCommit calls Sync on the underlying files after every
	// transaction stop. Default false (matches the teacher's opt-in
	// SyncWrites).
	SyncOnCommit bool
	// IORetryLimit is defaulted to 3, but no layer of the file stack reads
	// it: I/O errors are not retried and are returned on the first failure.
	IORetryLimit int
	// LockTimeout is the default timeout passed to lock/lock_sharable
	// calls that don't specify their own. Default 5s.
	LockTimeout time.Duration
	// CrossProcess requests a shared-memory-backed DatasetContext for
	// true multi-process coordination. Not implemented: Open returns a
	// KindBug error if this is set, per spec.md §5's note that the
	// shared-memory allocator is an external collaborator out of this
	// repository's scope.
	CrossProcess bool
}

const (
	defaultPageSize     = 4096
	defaultPoolCapacity = 256
	defaultIORetryLimit = 3
	defaultLockTimeout  = 5 * time.Second
)

// withDefaults returns a copy of cfg with zero-valued fields filled in,
// matching folio.Open's defaulting of Config before use.
func (cfg Config) withDefaults() Config {
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PoolCapacity == 0 {
		cfg.PoolCapacity = defaultPoolCapacity
	}
	if cfg.ChecksumAlgorithm == 0 {
		cfg.ChecksumAlgorithm = txfile.ChecksumXXH3
	}
	if cfg.IORetryLimit == 0 {
		cfg.IORetryLimit = defaultIORetryLimit
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	return cfg
}
