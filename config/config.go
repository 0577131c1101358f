// Package config defines the simulator configuration record and the
// sectioned INI loader that produces it.
package config

import (
	akitasim "github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/memsim/mem"
)

// MaxCacheLevels is the largest number of cache levels a configuration
// may declare.
const MaxCacheLevels = 10

// Config is the immutable machine description produced by Load. It is
// constructed once and read-only thereafter.
type Config struct {
	// AddressWidth is the CPU address width in bits. Power of two.
	AddressWidth int

	// WordWidth is the machine word width in bits. Power of two.
	WordWidth int

	// RandSeed seeds the driver PRNG used by Rand replacement.
	RandSeed int64

	// MemorySize is the total memory size in bytes.
	MemorySize int64

	// PageSize is the simulated page window size in bytes.
	PageSize int64

	// PageBaseAddress is the absolute address of the page window.
	PageBaseAddress uint64

	// AccessTimeSingle is the memory latency of the first word of a
	// burst, in seconds.
	AccessTimeSingle akitasim.VTimeInSec

	// AccessTimeBurst is the memory latency of each subsequent burst
	// word, in seconds.
	AccessTimeBurst akitasim.VTimeInSec

	// Caches lists the cache levels, L1 first.
	Caches []CacheLevel

	// Warnings holds non-fatal validation findings. Execution may still
	// proceed at the caller's discretion.
	Warnings []string
}

// CacheLevel holds the parameters of one configured cache level.
type CacheLevel struct {
	// LineSize in bytes. Identical across all levels.
	LineSize int64

	// Size in bytes.
	Size int64

	// Associativity is the resolved number of ways. A fully associative
	// level ("F") resolves to the number of lines.
	Associativity int

	// WritePolicy is WriteThrough or WriteBack.
	WritePolicy mem.WritePolicy

	// ReplacementPolicy selects victims in full sets.
	ReplacementPolicy mem.ReplacementPolicy

	// Split separates the level into instruction and data halves.
	Split bool

	// AccessTime is the level latency in seconds.
	AccessTime akitasim.VTimeInSec
}

// WordWidthBytes returns the machine word size in bytes.
func (c *Config) WordWidthBytes() int {
	return c.WordWidth / 8
}

// NumCaches returns the number of configured cache levels.
func (c *Config) NumCaches() int {
	return len(c.Caches)
}

// MemoryConfig assembles the main memory parameters.
func (c *Config) MemoryConfig() mem.MemoryConfig {
	return mem.MemoryConfig{
		Size:             c.MemorySize,
		PageSize:         c.PageSize,
		PageBaseAddress:  c.PageBaseAddress,
		AccessTimeSingle: c.AccessTimeSingle,
		AccessTimeBurst:  c.AccessTimeBurst,
		WordWidthBytes:   c.WordWidthBytes(),
	}
}

// CacheConfig assembles the parameters of cache level i (0-based).
func (c *Config) CacheConfig(i int) mem.CacheConfig {
	level := c.Caches[i]
	return mem.CacheConfig{
		Size:              level.Size,
		LineSize:          level.LineSize,
		Associativity:     level.Associativity,
		WritePolicy:       level.WritePolicy,
		ReplacementPolicy: level.ReplacementPolicy,
		Split:             level.Split,
		AccessTime:        level.AccessTime,
		WordWidthBytes:    c.WordWidthBytes(),
	}
}
