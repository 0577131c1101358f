// Package trace parses line-oriented memory access traces into the
// operations the simulator replays.
//
// Each non-comment, non-empty line is one operation:
//
//	[!] L|S 0xADDRESS I|D [payload]
//
// A leading '!' marks a breakpoint. '#' starts a comment, tabs count as
// spaces, and a store without a payload writes zero. Storing an
// instruction is rejected.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/memsim/mem"
)

// Load reads and parses a trace file.
func Load(path string) ([]*mem.Operation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	ops, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trace file %s: %w", path, err)
	}
	return ops, nil
}

// Parse reads a trace from r. Every malformed line is reported, together,
// in the returned error.
func Parse(r io.Reader) ([]*mem.Operation, error) {
	var ops []*mem.Operation
	var errs []string

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++

		line := preprocessLine(scanner.Text())
		if line == "" {
			continue
		}

		op, err := parseLine(line)
		if err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", lineNumber, err))
			continue
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%s\ntotal errors: %d",
			strings.Join(errs, "\n"), len(errs))
	}

	return ops, nil
}

// preprocessLine replaces tabs with spaces and trims comments. It returns
// the empty string for lines with no content.
func preprocessLine(line string) string {
	line = strings.ReplaceAll(line, "\t", " ")
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func parseLine(line string) (*mem.Operation, error) {
	op := &mem.Operation{NumWords: 1}

	if line[0] == '!' {
		op.Breakpoint = true
		line = strings.TrimSpace(line[1:])
	}

	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("too few fields")
	}
	if len(fields) > 4 {
		return nil, fmt.Errorf("too many fields")
	}

	switch fields[0] {
	case "L":
		op.Kind = mem.Load
	case "S":
		op.Kind = mem.Store
	default:
		return nil, fmt.Errorf(
			"memory operation must be load (L) or store (S), got %q",
			fields[0])
	}

	address, err := parseAddress(fields[1])
	if err != nil {
		return nil, err
	}
	op.Address = address

	switch fields[2] {
	case "I":
		if op.Kind == mem.Store {
			return nil, fmt.Errorf("cannot store (S) an instruction (I)")
		}
		op.IsData = false
	case "D":
		op.IsData = true
	default:
		return nil, fmt.Errorf(
			"memory access must be instruction (I) or data (D), got %q",
			fields[2])
	}

	if len(fields) == 4 {
		if op.Kind == mem.Load {
			return nil, fmt.Errorf(
				"the payload field is not allowed in load (L) operations")
		}
		payload, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid payload %q", fields[3])
		}
		op.Data = []uint64{payload}
	} else if op.Kind == mem.Store {
		// A store without a payload writes zero.
		op.Data = []uint64{0}
	}

	return op, nil
}

func parseAddress(s string) (uint64, error) {
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return 0, fmt.Errorf("invalid or non hexadecimal address %q", s)
	}
	address, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid or non hexadecimal address %q", s)
	}
	return address, nil
}
