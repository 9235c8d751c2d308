package blockmanager

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"
)

// FileManager owns the block file handle and performs positional reads and
// writes at allocation-unit granularity. ReadAt/WriteAt are safe for
// concurrent callers operating on disjoint extents, so FileManager takes no
// lock of its own.
type FileManager struct {
	path      string
	file      *os.File
	allocUnit uint32
	limiter   *rate.Limiter
}

// OpenFileManager opens or creates the block file. With create set the file
// must not exist yet; without it the file must already exist. A nonzero
// throttle caps the write rate in bytes per second.
func OpenFileManager(path string, allocUnit uint32, create bool, throttleBytesPerSec int64) (*FileManager, error) {
	var file *os.File
	var err error

	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrDBFileNotFound, path)
		}
		file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if err != nil {
			return nil, fmt.Errorf("%w: creating file %s: %v", ErrIO, path, err)
		}
	} else if statErr == nil {
		if create {
			return nil, fmt.Errorf("%w: %s", ErrDBFileExists, path)
		}
		file, err = os.OpenFile(path, os.O_RDWR, 0666)
		if err != nil {
			return nil, fmt.Errorf("%w: opening file %s: %v", ErrIO, path, err)
		}
	} else {
		return nil, fmt.Errorf("%w: stating file %s: %v", ErrIO, path, statErr)
	}

	fm := &FileManager{path: path, file: file, allocUnit: allocUnit}
	if throttleBytesPerSec > 0 {
		fm.limiter = rate.NewLimiter(rate.Limit(throttleBytesPerSec), int(throttleBytesPerSec))
	}
	return fm, nil
}

// SizeUnits returns the current file size in allocation units, rounding any
// partial trailing unit up.
func (fm *FileManager) SizeUnits() (uint32, error) {
	fi, err := fm.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: getting file info: %v", ErrIO, err)
	}
	units := (uint64(fi.Size()) + uint64(fm.allocUnit) - 1) / uint64(fm.allocUnit)
	return uint32(units), nil
}

// ReadExtent reads len(dst) bytes starting at the given allocation-unit
// address into dst.
func (fm *FileManager) ReadExtent(addr uint32, dst []byte) error {
	offset := int64(addr) * int64(fm.allocUnit)
	n, err := fm.file.ReadAt(dst, offset)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: EOF reading extent %d at offset %d, file may be corrupt or address out of bounds",
				ErrIO, addr, offset)
		}
		return fmt.Errorf("%w: reading extent %d at offset %d: %v", ErrIO, addr, offset, err)
	}
	if n != len(dst) {
		return fmt.Errorf("%w: short read for extent %d, expected %d, got %d", ErrIO, addr, len(dst), n)
	}
	return nil
}

// WriteExtent writes data starting at the given allocation-unit address.
func (fm *FileManager) WriteExtent(addr uint32, data []byte) error {
	if fm.limiter != nil {
		// Throttled writes block until the limiter releases the budget.
		if err := fm.limiter.WaitN(context.Background(), len(data)); err != nil {
			return fmt.Errorf("%w: write throttle: %v", ErrIO, err)
		}
	}
	offset := int64(addr) * int64(fm.allocUnit)
	if _, err := fm.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("%w: writing extent %d at offset %d: %v", ErrIO, addr, offset, err)
	}
	return nil
}

// Sync flushes all written blocks to stable storage.
func (fm *FileManager) Sync() error {
	if err := fm.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, fm.path, err)
	}
	return nil
}

// Close syncs and closes the file handle.
func (fm *FileManager) Close() error {
	if fm.file == nil {
		return nil
	}
	syncErr := fm.file.Sync()
	closeErr := fm.file.Close()
	fm.file = nil
	if syncErr != nil {
		return fmt.Errorf("%w: syncing %s on close: %v", ErrIO, fm.path, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, fm.path, closeErr)
	}
	return nil
}
