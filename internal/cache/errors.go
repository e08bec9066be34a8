package cache

import "errors"

// ErrCorrupt indicates the cache database exists but failed the integrity
// check at startup. Skip decisions cannot be trusted, so callers must either
// abort or explicitly reset the cache; the store never discards history on
// its own.
var ErrCorrupt = errors.New("cache database is corrupt")

// ErrLocked indicates another process holds the cache lock. The cache is
// single-writer; concurrent multi-process access is not supported.
var ErrLocked = errors.New("cache is locked by another process")
