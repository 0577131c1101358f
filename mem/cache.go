package mem

import (
	"fmt"
	"math/bits"
	"math/rand"

	akitasim "github.com/sarchlab/akita/v4/sim"
)

// CacheLine is one line of a cache array. The Set and Way fields are
// redundant with the line's position in the array but are kept for
// display. When Valid is false the tag, content, and access counters are
// meaningless and lookup never consults them.
type CacheLine struct {
	// Tag distinguishes lines that share a set.
	Tag uint64

	// Set and Way locate the line inside the cache array.
	Set int
	Way int

	// Content holds exactly lineSizeWords machine words.
	Content []uint64

	// FirstAccess, LastAccess, and NumberAccesses drive the FIFO, LRU,
	// and LFU policies. The sentinel -1 means "never accessed".
	FirstAccess    int64
	LastAccess     int64
	NumberAccesses int64

	Valid bool
	Dirty bool

	// Style is the presentation highlight of the line.
	Style Style
}

// CacheConfig holds the parameters of one cache level.
type CacheConfig struct {
	// Size in bytes. Must be a power of two and a multiple of LineSize.
	Size int64

	// LineSize in bytes. Must be a power of two and identical across
	// all levels of a hierarchy.
	LineSize int64

	// Associativity is the number of ways per set. Must be a power of
	// two.
	Associativity int

	// WritePolicy is WriteThrough or WriteBack.
	WritePolicy WritePolicy

	// ReplacementPolicy selects victims in full sets.
	ReplacementPolicy ReplacementPolicy

	// Split separates the cache into instruction and data halves.
	Split bool

	// AccessTime is the latency charged on every access, in seconds.
	AccessTime akitasim.VTimeInSec

	// WordWidthBytes is the machine word size in bytes.
	WordWidthBytes int
}

// Cache is one set-associative level of the memory hierarchy.
//
// A unified cache keeps a single line array; a split cache keeps separate
// instruction and data arrays, each with half the sets. Misses recurse
// into the next element for the line fill and, when the victim is dirty,
// for the write-back.
type Cache struct {
	config CacheConfig

	// Derived geometry
	sets          int // sets per array
	lineSizeWords int
	offsetBits    uint
	setBits       uint

	// Line arrays, indexed by set*ways+way. inst is nil when unified.
	data []CacheLine
	inst []CacheLine

	// Statistics
	accesses uint64
	hits     uint64
	misses   uint64

	// Hierarchy links. prev is kept for completeness; the protocol only
	// traverses next.
	next Element
	prev Element

	// Shared driver state
	clock *Clock
	rng   *rand.Rand
}

// NewCache creates a cache level. The clock is the driver's cycle counter
// used to stamp line metadata; the rng is the driver's PRNG consulted by
// the Rand replacement policy. The cache starts flushed.
func NewCache(config CacheConfig, clock *Clock, rng *rand.Rand) *Cache {
	sets := int(config.Size / config.LineSize / int64(config.Associativity))
	if config.Split {
		sets /= 2
	}

	c := &Cache{
		config:        config,
		sets:          sets,
		lineSizeWords: int(config.LineSize) / config.WordWidthBytes,
		offsetBits:    uint(bits.TrailingZeros64(uint64(config.LineSize))),
		setBits:       uint(bits.TrailingZeros64(uint64(sets))),
		clock:         clock,
		rng:           rng,
	}

	c.data = make([]CacheLine, sets*config.Associativity)
	if config.Split {
		c.inst = make([]CacheLine, sets*config.Associativity)
	}

	c.Flush()

	return c
}

// Config returns the cache configuration.
func (c *Cache) Config() CacheConfig {
	return c.config
}

// IsSplit reports whether the cache keeps separate instruction and data
// arrays.
func (c *Cache) IsSplit() bool {
	return c.config.Split
}

// DataLines returns the data line array. For a unified cache this is the
// only array. Callers must not mutate it.
func (c *Cache) DataLines() []CacheLine {
	return c.data
}

// InstLines returns the instruction line array, or nil for a unified
// cache. Callers must not mutate it.
func (c *Cache) InstLines() []CacheLine {
	return c.inst
}

// NumLines returns the total number of lines in the cache. For a split
// cache this counts both arrays.
func (c *Cache) NumLines() int {
	n := len(c.data)
	if c.inst != nil {
		n += len(c.inst)
	}
	return n
}

// Sets returns the number of sets per array.
func (c *Cache) Sets() int {
	return c.sets
}

// Ways returns the associativity.
func (c *Cache) Ways() int {
	return c.config.Associativity
}

// LineSizeWords returns the number of machine words per line.
func (c *Cache) LineSizeWords() int {
	return c.lineSizeWords
}

// Accesses returns the number of requests processed since the last flush.
func (c *Cache) Accesses() uint64 {
	return c.accesses
}

// Hits returns the hit count since the last flush.
func (c *Cache) Hits() uint64 {
	return c.hits
}

// Misses returns the miss count since the last flush.
func (c *Cache) Misses() uint64 {
	return c.misses
}

// Next returns the successor element.
func (c *Cache) Next() Element {
	return c.next
}

// Prev returns the predecessor element.
func (c *Cache) Prev() Element {
	return c.prev
}

// SetNext wires the successor element.
func (c *Cache) SetNext(next Element) {
	c.next = next
}

// SetPrev wires the predecessor element.
func (c *Cache) SetPrev(prev Element) {
	c.prev = prev
}

// Address decoding. Layout, MSB to LSB: tag | set | offset.

// TagOf returns the tag bits of an address.
func (c *Cache) TagOf(address uint64) uint64 {
	return address >> (c.setBits + c.offsetBits)
}

// SetOf returns the set index of an address.
func (c *Cache) SetOf(address uint64) int {
	return int((address >> c.offsetBits) & (1<<c.setBits - 1))
}

// OffsetOf returns the byte offset of an address inside its line.
func (c *Cache) OffsetOf(address uint64) uint64 {
	return address & (1<<c.offsetBits - 1)
}

// BaseAddressOf reconstructs the line base address from a tag and a set
// index. It inverts TagOf/SetOf/OffsetOf for offset zero.
func (c *Cache) BaseAddressOf(tag uint64, set int) uint64 {
	return tag<<(c.setBits+c.offsetBits) | uint64(set)<<c.offsetBits
}

// array selects the line array serving the request: the data array for a
// unified cache or a data access, the instruction array otherwise.
func (c *Cache) array(op *Operation) []CacheLine {
	if c.config.Split && !op.IsData {
		return c.inst
	}
	return c.data
}

// lookup scans all ways of a set and returns the way holding the tag, or
// -1 on a miss. Tags are unique per valid line within a set, so the first
// match is the only match.
func (c *Cache) lookup(lines []CacheLine, set int, tag uint64) int {
	for way := 0; way < c.config.Associativity; way++ {
		line := &lines[set*c.config.Associativity+way]
		if line.Valid && line.Tag == tag {
			return way
		}
	}
	return -1
}

// selectVictim picks the way to replace in a full or partially filled
// set. Invalid lines win before any policy is consulted; ties break
// toward the lowest way index.
func (c *Cache) selectVictim(lines []CacheLine, set int) int {
	base := set * c.config.Associativity

	for way := 0; way < c.config.Associativity; way++ {
		if !lines[base+way].Valid {
			return way
		}
	}

	switch c.config.ReplacementPolicy {
	case LRU:
		return minWay(lines, base, c.config.Associativity,
			func(l *CacheLine) int64 { return l.LastAccess })
	case LFU:
		return minWay(lines, base, c.config.Associativity,
			func(l *CacheLine) int64 { return l.NumberAccesses })
	case FIFO:
		return minWay(lines, base, c.config.Associativity,
			func(l *CacheLine) int64 { return l.FirstAccess })
	case Rand:
		return c.rng.Intn(c.config.Associativity)
	default:
		panic(fmt.Sprintf("mem: unknown replacement policy %d",
			c.config.ReplacementPolicy))
	}
}

// minWay returns the way with the strictly smallest key, scanning in way
// order so that the lowest index wins ties.
func minWay(lines []CacheLine, base, ways int, key func(*CacheLine) int64) int {
	best := 0
	for way := 1; way < ways; way++ {
		if key(&lines[base+way]) < key(&lines[base+best]) {
			best = way
		}
	}
	return best
}

// fill handles a miss: it fetches the full line from the next level,
// evicts a victim (writing it back first when dirty), and installs the
// fetched words. All downstream latency is charged to rep.
func (c *Cache) fill(op *Operation, lines []CacheLine, set int, tag uint64, rep *Reply) {
	fetch := &Operation{
		Kind:     Load,
		Address:  op.Address &^ uint64(c.config.LineSize-1),
		IsData:   op.IsData,
		NumWords: c.lineSizeWords,
	}
	fetchRep := NewReply(c.lineSizeWords)
	c.next.ProcessRequest(fetch, fetchRep)
	rep.TotalTime += fetchRep.TotalTime

	way := c.selectVictim(lines, set)
	line := &lines[set*c.config.Associativity+way]

	if line.Valid && line.Dirty {
		writeBack := &Operation{
			Kind:     Store,
			Address:  c.BaseAddressOf(line.Tag, set),
			IsData:   op.IsData,
			Data:     append([]uint64(nil), line.Content...),
			NumWords: c.lineSizeWords,
		}
		writeBackRep := NewReply(0)
		c.next.ProcessRequest(writeBack, writeBackRep)
		rep.TotalTime += writeBackRep.TotalTime
	}

	copy(line.Content, fetchRep.Data)
	line.Tag = tag
	line.Valid = true
	line.Dirty = false
	line.FirstAccess = c.clock.Cycle
	line.NumberAccesses = 0

	// The installed line is accessed once more to serve the original
	// request, so the miss costs a second array access.
	rep.TotalTime += c.config.AccessTime
}

// ProcessRequest serves one load or store against this level, recursing
// into the next element on misses, write-through stores, and dirty
// evictions.
func (c *Cache) ProcessRequest(op *Operation, rep *Reply) {
	rep.TotalTime += c.config.AccessTime
	c.accesses++

	lines := c.array(op)
	set := c.SetOf(op.Address)
	tag := c.TagOf(op.Address)
	wordIndex := int(c.OffsetOf(op.Address)) / c.config.WordWidthBytes

	if wordIndex+op.NumWords > c.lineSizeWords {
		panic(fmt.Sprintf(
			"mem: access at 0x%X for %d words crosses a line boundary",
			op.Address, op.NumWords))
	}

	var line *CacheLine
	style := StyleHit

	switch op.Kind {
	case Load:
		way := c.lookup(lines, set, tag)
		if way < 0 {
			c.misses++
			style = StyleMiss
			c.fill(op, lines, set, tag, rep)
			way = c.lookup(lines, set, tag)
			if way < 0 {
				panic(fmt.Sprintf(
					"mem: line fill did not install 0x%X", op.Address))
			}
		} else {
			c.hits++
		}
		line = &lines[set*c.config.Associativity+way]
		copy(rep.Data[:op.NumWords],
			line.Content[wordIndex:wordIndex+op.NumWords])

	case Store:
		switch c.config.WritePolicy {
		case WriteThrough:
			// Write-through stores count as hits even on a tag miss.
			c.hits++
			if way := c.lookup(lines, set, tag); way >= 0 {
				line = &lines[set*c.config.Associativity+way]
				copy(line.Content[wordIndex:wordIndex+op.NumWords],
					op.Data[:op.NumWords])
			}
			forwardRep := NewReply(0)
			c.next.ProcessRequest(op, forwardRep)
			rep.TotalTime += forwardRep.TotalTime

		case WriteBack:
			way := c.lookup(lines, set, tag)
			if way < 0 {
				c.misses++
				style = StyleMiss
				c.fill(op, lines, set, tag, rep)
				way = c.lookup(lines, set, tag)
				if way < 0 {
					panic(fmt.Sprintf(
						"mem: write allocate did not install 0x%X",
						op.Address))
				}
			} else {
				c.hits++
			}
			line = &lines[set*c.config.Associativity+way]
			copy(line.Content[wordIndex:wordIndex+op.NumWords],
				op.Data[:op.NumWords])
			line.Dirty = true

		default:
			panic(fmt.Sprintf("mem: unknown write policy %d",
				c.config.WritePolicy))
		}

	default:
		panic(fmt.Sprintf("mem: unknown operation kind %d", op.Kind))
	}

	if line != nil {
		line.NumberAccesses++
		line.LastAccess = c.clock.Cycle
		line.Style = style
	}
}

// ClearStyle removes the presentation highlights from all lines.
func (c *Cache) ClearStyle() {
	for i := range c.data {
		c.data[i].Style = StyleNone
	}
	for i := range c.inst {
		c.inst[i].Style = StyleNone
	}
}

// Flush returns the cache to its post-construction state: every line
// invalid and clean with zeroed content, access counters at the
// never-accessed sentinel, and statistics zeroed.
func (c *Cache) Flush() {
	c.flushArray(c.data)
	c.flushArray(c.inst)
	c.accesses = 0
	c.hits = 0
	c.misses = 0
}

func (c *Cache) flushArray(lines []CacheLine) {
	for i := range lines {
		line := &lines[i]
		line.Tag = 0
		line.Set = i / c.config.Associativity
		line.Way = i % c.config.Associativity
		if line.Content == nil {
			line.Content = make([]uint64, c.lineSizeWords)
		} else {
			for w := range line.Content {
				line.Content[w] = 0
			}
		}
		line.FirstAccess = -1
		line.LastAccess = -1
		line.NumberAccesses = -1
		line.Valid = false
		line.Dirty = false
		line.Style = StyleNone
	}
}
