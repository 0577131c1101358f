// Package mem implements the memory hierarchy engine: set-associative
// caches chained to a flat main memory, exchanging load/store requests
// through a synchronous request/reply protocol.
package mem

import (
	akitasim "github.com/sarchlab/akita/v4/sim"
)

// OpKind is the kind of a memory operation.
type OpKind int

// Memory operation kinds.
const (
	Load OpKind = iota
	Store
)

// String returns the single-letter trace mnemonic of the operation kind.
func (k OpKind) String() string {
	switch k {
	case Load:
		return "L"
	case Store:
		return "S"
	default:
		return "?"
	}
}

// Operation is one memory access replayed against the hierarchy. Trace
// entries are operations with NumWords equal to one; caches build
// full-line operations internally when filling and writing back lines.
type Operation struct {
	// Kind is Load or Store.
	Kind OpKind

	// Address is the byte address of the first word accessed.
	Address uint64

	// IsData tells data accesses apart from instruction fetches. Split
	// caches use it to select the backing array.
	IsData bool

	// Data carries NumWords words to write. It is nil for loads.
	Data []uint64

	// NumWords is the number of contiguous words accessed.
	NumWords int

	// Breakpoint stops StepAll after this operation when breakpoint
	// stepping is requested.
	Breakpoint bool
}

// Reply accumulates the outcome of one operation while it travels through
// the hierarchy. Every level adds its own contribution to TotalTime; loads
// additionally fill Data.
type Reply struct {
	// Data receives the loaded words. Its capacity matches the
	// operation's NumWords.
	Data []uint64

	// TotalTime is the access latency accumulated across all levels
	// visited, in seconds.
	TotalTime akitasim.VTimeInSec
}

// NewReply allocates a reply with room for numWords loaded words.
func NewReply(numWords int) *Reply {
	return &Reply{Data: make([]uint64, numWords)}
}

// Element is one level of the memory hierarchy. Caches and the main
// memory implement it; the simulator driver injects every trace operation
// into the head element.
type Element interface {
	// ProcessRequest serves op, filling rep with data and latency.
	// Levels that cannot serve the request locally recurse into their
	// successor on the same call stack.
	ProcessRequest(op *Operation, rep *Reply)

	// ClearStyle removes the presentation highlights left behind by the
	// previous operation.
	ClearStyle()

	// Flush returns the element to its post-construction state:
	// counters zeroed, lines invalidated, memory refilled with its
	// initialization pattern.
	Flush()
}

// Clock exposes the driver's cycle counter to the hierarchy. Elements
// only read it when stamping line metadata; the driver alone advances it.
type Clock struct {
	// Cycle is the index of the operation currently executing.
	Cycle int64
}

// Style is a presentation annotation on cache lines and memory cells.
// Styles are pure display state: they are cleared before every step and
// never influence the protocol.
type Style int

// Style values attached during request processing.
const (
	StyleNone Style = iota
	StyleHit
	StyleMiss
	StyleReadSingle
	StyleReadBurst
	StyleWriteSingle
	StyleWriteBurst
)
