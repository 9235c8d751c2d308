package blockmanager

import (
	"fmt"

	"github.com/kitsune-db/kitsunedb/core/compression"
)

const (
	// MinAllocationUnit is the smallest legal allocation unit, matching the
	// smallest sector size of any supported device.
	MinAllocationUnit = 512
	// DefaultAllocationUnit is used when the configuration leaves the unit
	// unset.
	DefaultAllocationUnit = 4096
)

// Config holds the per-instance settings for a BlockManager.
type Config struct {
	// Path is the block file backing this btree instance.
	Path string `yaml:"path"`
	// AllocationUnit is the byte granularity of all on-disk extents. Must
	// be a power of two, at least MinAllocationUnit, fixed for the lifetime
	// of the file.
	AllocationUnit uint32 `yaml:"allocation_unit"`
	// Compression selects the block codec ("zstd", "lz4" or "none").
	Compression string `yaml:"compression"`
	// Create requires the file to not exist yet; without it the file must
	// already exist.
	Create bool `yaml:"create"`
	// DebugChecks enables the write-time structural self-check on every
	// page image. A failure indicates a bug in the caller's page
	// construction, never an environmental error.
	DebugChecks bool `yaml:"debug_checks"`
	// ThrottleBytesPerSec caps the block write rate. Zero disables
	// throttling.
	ThrottleBytesPerSec int64 `yaml:"throttle_bytes_per_sec"`
}

// Validate checks the configuration, applying defaults where fields are
// unset.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path must be set", ErrInvalidConfig)
	}
	if c.AllocationUnit == 0 {
		c.AllocationUnit = DefaultAllocationUnit
	}
	if c.AllocationUnit < MinAllocationUnit || c.AllocationUnit&(c.AllocationUnit-1) != 0 {
		return fmt.Errorf("%w: allocation unit %d must be a power of two >= %d",
			ErrInvalidConfig, c.AllocationUnit, MinAllocationUnit)
	}
	if !compression.Supported(c.Compression) {
		return fmt.Errorf("%w: unsupported compression algorithm %q", ErrInvalidConfig, c.Compression)
	}
	return nil
}
