package sim

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DRAMSysTracer appends every main memory access to a DRAMSys-compatible
// trace file, one line per access:
//
//	N:\tread\t0xADDR
//	N:\twrite\t0xADDR
//
// Opening an existing file continues its numbering.
type DRAMSysTracer struct {
	file *os.File
	next int
}

// NewDRAMSysTracer opens (or creates) the trace file at path in append
// mode, scanning any existing content for the last access number.
func NewDRAMSysTracer(path string) (*DRAMSysTracer, error) {
	next := 0

	existing, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			line := scanner.Text()
			colon := strings.IndexByte(line, ':')
			if colon < 0 {
				continue
			}
			if number, err := strconv.Atoi(line[:colon]); err == nil {
				next = number + 1
			}
		}
		existing.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan DRAMSys file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to open DRAMSys file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open DRAMSys file: %w", err)
	}

	return &DRAMSysTracer{file: file, next: next}, nil
}

// RecordAccess appends one access line.
func (t *DRAMSysTracer) RecordAccess(write bool, address uint64) {
	kind := "read"
	if write {
		kind = "write"
	}
	fmt.Fprintf(t.file, "%d:\t%s\t0x%x\n", t.next, kind, address)
	t.next++
}

// Close flushes and closes the trace file.
func (t *DRAMSysTracer) Close() error {
	return t.file.Close()
}
