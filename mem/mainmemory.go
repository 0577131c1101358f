package mem

import (
	"fmt"

	akitasim "github.com/sarchlab/akita/v4/sim"
)

// MemoryCell is one word of the main memory window, tagged with its
// absolute address for display.
type MemoryCell struct {
	Address uint64
	Content uint64

	// Style is the presentation highlight of the cell.
	Style Style
}

// MemoryConfig holds the main memory parameters.
type MemoryConfig struct {
	// Size is the total memory size in bytes. Only the page window is
	// backed by cells.
	Size int64

	// PageSize is the size of the simulated page window in bytes.
	PageSize int64

	// PageBaseAddress is the absolute address of the first byte of the
	// page window.
	PageBaseAddress uint64

	// AccessTimeSingle is the latency of the first word of a burst, in
	// seconds.
	AccessTimeSingle akitasim.VTimeInSec

	// AccessTimeBurst is the latency of each subsequent word of a
	// burst, in seconds.
	AccessTimeBurst akitasim.VTimeInSec

	// WordWidthBytes is the machine word size in bytes.
	WordWidthBytes int
}

// AccessTracer observes main memory accesses. The DRAMSys trace exporter
// implements it; a nil tracer disables observation.
type AccessTracer interface {
	// RecordAccess is called once per request reaching the memory, with
	// the first address of the burst.
	RecordAccess(write bool, address uint64)
}

// MainMemory is the terminal element of the hierarchy: a flat
// word-addressed store over a single page window.
type MainMemory struct {
	config MemoryConfig

	cells []MemoryCell

	// Statistics
	accessesSingle uint64
	accessesBurst  uint64

	tracer AccessTracer

	// prev is kept for completeness; the memory never forwards.
	prev Element
}

// NewMainMemory creates the main memory and fills the page window with
// its initialization pattern.
func NewMainMemory(config MemoryConfig) *MainMemory {
	m := &MainMemory{
		config: config,
		cells: make([]MemoryCell,
			config.PageSize/int64(config.WordWidthBytes)),
	}
	m.Flush()
	return m
}

// Config returns the memory configuration.
func (m *MainMemory) Config() MemoryConfig {
	return m.config
}

// Cells returns the backing word array. Callers must not mutate it.
func (m *MainMemory) Cells() []MemoryCell {
	return m.cells
}

// PageSize returns the page window size in bytes.
func (m *MainMemory) PageSize() int64 {
	return m.config.PageSize
}

// PageBaseAddress returns the absolute address of the page window.
func (m *MainMemory) PageBaseAddress() uint64 {
	return m.config.PageBaseAddress
}

// AccessesSingle returns the number of first-of-burst word accesses.
func (m *MainMemory) AccessesSingle() uint64 {
	return m.accessesSingle
}

// AccessesBurst returns the number of subsequent burst word accesses.
func (m *MainMemory) AccessesBurst() uint64 {
	return m.accessesBurst
}

// Word returns the memory word at an absolute address.
func (m *MainMemory) Word(address uint64) uint64 {
	return m.cells[m.index(address)].Content
}

// SetWord overwrites the memory word at an absolute address.
func (m *MainMemory) SetWord(address uint64, value uint64) {
	m.cells[m.index(address)].Content = value
}

// SetTracer attaches an access tracer. Pass nil to detach.
func (m *MainMemory) SetTracer(tracer AccessTracer) {
	m.tracer = tracer
}

// Prev returns the predecessor element.
func (m *MainMemory) Prev() Element {
	return m.prev
}

// SetPrev wires the predecessor element.
func (m *MainMemory) SetPrev(prev Element) {
	m.prev = prev
}

// index converts an absolute address into a cell index, aborting when the
// address falls outside the page window. Such an address indicates a
// malformed configuration or a simulator bug, never user input.
func (m *MainMemory) index(address uint64) int {
	base := m.config.PageBaseAddress
	if address < base ||
		address >= base+uint64(m.config.PageSize) {
		panic(fmt.Sprintf(
			"mem: address 0x%X outside page window [0x%X, 0x%X)",
			address, base, base+uint64(m.config.PageSize)))
	}
	return int((address - base) / uint64(m.config.WordWidthBytes))
}

// ProcessRequest serves a word burst directly from the backing array.
func (m *MainMemory) ProcessRequest(op *Operation, rep *Reply) {
	index := m.index(op.Address)
	if index+op.NumWords > len(m.cells) {
		panic(fmt.Sprintf(
			"mem: burst at 0x%X for %d words leaves the page window",
			op.Address, op.NumWords))
	}

	switch op.Kind {
	case Load:
		for i := 0; i < op.NumWords; i++ {
			rep.Data[i] = m.cells[index+i].Content
			if i == 0 {
				m.cells[index+i].Style = StyleReadSingle
			} else {
				m.cells[index+i].Style = StyleReadBurst
			}
		}
	case Store:
		for i := 0; i < op.NumWords; i++ {
			m.cells[index+i].Content = op.Data[i]
			if i == 0 {
				m.cells[index+i].Style = StyleWriteSingle
			} else {
				m.cells[index+i].Style = StyleWriteBurst
			}
		}
	default:
		panic(fmt.Sprintf("mem: unknown operation kind %d", op.Kind))
	}

	rep.TotalTime += m.config.AccessTimeSingle +
		m.config.AccessTimeBurst*akitasim.VTimeInSec(op.NumWords-1)
	m.accessesSingle++
	m.accessesBurst += uint64(op.NumWords - 1)

	if m.tracer != nil {
		m.tracer.RecordAccess(op.Kind == Store, op.Address)
	}
}

// ClearStyle removes the presentation highlights from all cells.
func (m *MainMemory) ClearStyle() {
	for i := range m.cells {
		m.cells[i].Style = StyleNone
	}
}

// Flush regenerates the page window with the initialization pattern:
// each cell tagged with its absolute address and holding its word index.
// Statistics are zeroed.
func (m *MainMemory) Flush() {
	wordBytes := uint64(m.config.WordWidthBytes)
	for i := range m.cells {
		m.cells[i].Address = m.config.PageBaseAddress + uint64(i)*wordBytes
		m.cells[i].Content = uint64(i)
		m.cells[i].Style = StyleNone
	}
	m.accessesSingle = 0
	m.accessesBurst = 0
}
