// Package sim provides the simulator driver: it owns the memory
// hierarchy, replays the trace against it one operation per cycle, and
// accumulates the total access time.
package sim

import (
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/rs/xid"
	akitasim "github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/memsim/config"
	"github.com/sarchlab/memsim/mem"
)

// Simulator drives the memory hierarchy through a trace. Construction
// builds the main memory and every cache level, wires the chain, and
// seeds the PRNG shared by Rand replacement.
type Simulator struct {
	id  string
	cfg *config.Config
	ops []*mem.Operation

	memory *mem.MainMemory
	caches []*mem.Cache
	head   mem.Element

	clock           *mem.Clock
	totalAccessTime akitasim.VTimeInSec
	rng             *rand.Rand

	debugLevel int
	out        io.Writer
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithDebugLevel sets the narration verbosity: 0 silent, 1 or higher
// per-cycle CPU activity. Levels above 1 print nothing further.
func WithDebugLevel(level int) Option {
	return func(s *Simulator) {
		s.debugLevel = level
	}
}

// WithOutput redirects the narration, which goes to stdout by default.
func WithOutput(w io.Writer) Option {
	return func(s *Simulator) {
		s.out = w
	}
}

// New creates a simulator from a validated configuration and a parsed
// trace. The hierarchy starts flushed: lines invalid, counters zero, and
// memory filled with its initialization pattern.
func New(cfg *config.Config, ops []*mem.Operation, opts ...Option) *Simulator {
	s := &Simulator{
		id:    xid.New().String(),
		cfg:   cfg,
		ops:   ops,
		clock: &mem.Clock{},
		rng:   rand.New(rand.NewSource(cfg.RandSeed)),
		out:   os.Stdout,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.memory = mem.NewMainMemory(cfg.MemoryConfig())
	for i := 0; i < cfg.NumCaches(); i++ {
		s.caches = append(s.caches,
			mem.NewCache(cfg.CacheConfig(i), s.clock, s.rng))
	}

	// Wire the chain: L1 -> L2 -> ... -> Ln -> main memory. With no
	// caches configured, requests go straight to memory.
	for i := 1; i < len(s.caches); i++ {
		s.caches[i-1].SetNext(s.caches[i])
		s.caches[i].SetPrev(s.caches[i-1])
	}
	if len(s.caches) > 0 {
		s.caches[len(s.caches)-1].SetNext(s.memory)
		s.memory.SetPrev(s.caches[len(s.caches)-1])
		s.head = s.caches[0]
	} else {
		s.head = s.memory
	}

	return s
}

// ID returns the unique identifier of this simulation run.
func (s *Simulator) ID() string {
	return s.id
}

// Operations returns the trace being replayed.
func (s *Simulator) Operations() []*mem.Operation {
	return s.ops
}

// Memory returns the main memory.
func (s *Simulator) Memory() *mem.MainMemory {
	return s.memory
}

// Cache returns cache level i (0-based, L1 first).
func (s *Simulator) Cache(i int) *mem.Cache {
	return s.caches[i]
}

// NumOperations returns the trace length.
func (s *Simulator) NumOperations() int {
	return len(s.ops)
}

// NumCaches returns the number of cache levels.
func (s *Simulator) NumCaches() int {
	return len(s.caches)
}

// AddressWidth returns the CPU address width in bits.
func (s *Simulator) AddressWidth() int {
	return s.cfg.AddressWidth
}

// WordWidth returns the machine word size in bytes.
func (s *Simulator) WordWidth() int {
	return s.cfg.WordWidthBytes()
}

// TotalAccessTime returns the accumulated access time in seconds.
func (s *Simulator) TotalAccessTime() akitasim.VTimeInSec {
	return s.totalAccessTime
}

// Cycle returns the index of the next operation to execute.
func (s *Simulator) Cycle() int64 {
	return s.clock.Cycle
}

// SetTracer attaches a main memory access tracer, such as the DRAMSys
// trace exporter. Pass nil to detach.
func (s *Simulator) SetTracer(tracer mem.AccessTracer) {
	s.memory.SetTracer(tracer)
}

// SingleStep executes the operation at the current cycle. It is a no-op
// once the trace is exhausted.
func (s *Simulator) SingleStep() {
	if s.clock.Cycle >= int64(len(s.ops)) {
		return
	}

	s.clearAllStyles()

	op := s.ops[s.clock.Cycle]
	rep := mem.NewReply(op.NumWords)

	if s.debugLevel >= 1 {
		fmt.Fprintf(s.out, "\n------ Cycle %d ------\n", s.clock.Cycle)
		switch op.Kind {
		case mem.Load:
			fmt.Fprintf(s.out, "CPU: Requested data on 0x%X\n", op.Address)
		case mem.Store:
			fmt.Fprintf(s.out, "CPU: Storing %d on 0x%X\n",
				op.Data[0], op.Address)
		}
	}

	s.head.ProcessRequest(op, rep)

	if s.debugLevel >= 1 {
		switch op.Kind {
		case mem.Load:
			fmt.Fprintf(s.out, "CPU: Finished load, got %d in %.2g\n",
				rep.Data[0], float64(rep.TotalTime))
		case mem.Store:
			fmt.Fprintf(s.out, "CPU: Finished store in %.2g\n",
				float64(rep.TotalTime))
		}
	}

	s.totalAccessTime += rep.TotalTime
	s.clock.Cycle++
}

// StepAll executes the remaining trace. With stopOnBreakpoint, stepping
// stops right after executing an operation whose breakpoint flag is set.
func (s *Simulator) StepAll(stopOnBreakpoint bool) {
	for s.clock.Cycle < int64(len(s.ops)) {
		breakpoint := s.ops[s.clock.Cycle].Breakpoint
		s.SingleStep()
		if stopOnBreakpoint && breakpoint {
			break
		}
	}
}

// Reset returns the simulator to its initial state: cycle and total
// access time zeroed, every cache and the memory flushed.
func (s *Simulator) Reset() {
	s.clock.Cycle = 0
	s.totalAccessTime = 0

	s.memory.Flush()
	for _, c := range s.caches {
		c.Flush()
	}
}

func (s *Simulator) clearAllStyles() {
	s.memory.ClearStyle()
	for _, c := range s.caches {
		c.ClearStyle()
	}
}

// PrintStatistics writes the execution statistics report to w.
func (s *Simulator) PrintStatistics(w io.Writer) {
	cycles := float64(s.clock.Cycle)

	fmt.Fprintf(w, "\n------ Statistics ------\n\n")
	fmt.Fprintf(w, "CPU:\n")
	fmt.Fprintf(w, "\tTotal access time (s): %.4g\n",
		float64(s.totalAccessTime))
	if cycles > 0 {
		fmt.Fprintf(w, "\tAverage memory access time (s): %.4g\n",
			float64(s.totalAccessTime)/cycles)
	}

	for i, c := range s.caches {
		fmt.Fprintf(w, "\nCache L%d:\n", i+1)
		fmt.Fprintf(w, "\tTotal accesses: %d\n", c.Accesses())
		fmt.Fprintf(w, "\tHits: %d\n", c.Hits())
		fmt.Fprintf(w, "\tMisses: %d\n", c.Misses())
		if cycles > 0 {
			fmt.Fprintf(w, "\tHit rate: %.1f%%\n",
				float64(c.Hits())/cycles*100)
			fmt.Fprintf(w, "\tMiss rate: %.1f%%\n",
				float64(c.Misses())/cycles*100)
		}
	}

	fmt.Fprintf(w, "\nMemory:\n")
	fmt.Fprintf(w, "\tTotal accesses: %d\n",
		s.memory.AccessesSingle()+s.memory.AccessesBurst())
	fmt.Fprintf(w, "\tFirst word accesses: %d\n", s.memory.AccessesSingle())
	fmt.Fprintf(w, "\tBurst accesses: %d\n", s.memory.AccessesBurst())
}
