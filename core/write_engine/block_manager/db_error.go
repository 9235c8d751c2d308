package blockmanager

import "errors"

// --- Error Definitions ---

var (
	ErrIO               = errors.New("i/o error")
	ErrChecksumMismatch = errors.New("block checksum mismatch, data corruption suspected")
	ErrDecompression    = errors.New("block decompression failed")
	ErrAllocationFailed = errors.New("block allocation failed")
	ErrInvalidPageData  = errors.New("invalid page data")
	ErrBufferTooSmall   = errors.New("buffer capacity too small for requested block")
	ErrInvalidConfig    = errors.New("invalid block manager configuration")
	ErrDBFileExists     = errors.New("database file already exists")
	ErrDBFileNotFound   = errors.New("database file not found")
)
