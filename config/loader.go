package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/sarchlab/memsim/mem"
)

// Valid keys per section. Unknown keys are fatal.
var (
	keysCPU    = []string{"address_width", "word_width", "rand_seed"}
	keysMemory = []string{"size", "access_time_1", "access_time_burst",
		"page_size", "page_base_address"}
	keysCache = []string{"line_size", "size", "associativity",
		"write_policy", "replacement_policy", "separated", "access_time"}
)

// Load reads and validates a sectioned INI configuration file. Fatal
// findings are accumulated and reported together in the returned error;
// non-fatal findings end up in Config.Warnings.
func Load(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file: %w", err)
	}
	return parse(file)
}

// LoadString parses configuration text. It exists for tests and embedded
// configurations.
func LoadString(text string) (*Config, error) {
	file, err := ini.Load([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return parse(file)
}

func parse(file *ini.File) (*Config, error) {
	p := &parser{file: file}

	cacheLevels := p.checkStructure()
	cfg := &Config{}

	p.parseCPU(cfg)
	p.parseMemory(cfg)
	p.parseCaches(cfg, cacheLevels)

	cfg.Warnings = p.warnings

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("%s\ntotal errors: %d",
			strings.Join(p.errors, "\n"), len(p.errors))
	}

	return cfg, nil
}

// parser accumulates findings while walking the INI file, so that a bad
// configuration reports every problem at once.
type parser struct {
	file     *ini.File
	errors   []string
	warnings []string
}

func (p *parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *parser) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// checkStructure validates section names and key names, and returns the
// number of cache levels, taken as the highest [cacheN] number seen.
func (p *parser) checkStructure() int {
	cpuSections := 0
	memorySections := 0
	cacheLevels := 0

	for _, sec := range p.file.Sections() {
		name := sec.Name()

		switch {
		case name == ini.DefaultSection:
			if len(sec.KeyStrings()) > 0 {
				p.errorf("keys outside of a section: %s",
					strings.Join(sec.KeyStrings(), ", "))
			}
		case name == "cpu":
			cpuSections++
			p.checkKeys(sec, keysCPU)
		case name == "memory":
			memorySections++
			p.checkKeys(sec, keysMemory)
		case strings.HasPrefix(name, "cache"):
			number, err := strconv.Atoi(name[len("cache"):])
			if err != nil || number < 1 {
				p.errorf("invalid cache section name [%s]", name)
				continue
			}
			if number > cacheLevels {
				cacheLevels = number
			}
			p.checkKeys(sec, keysCache)
		default:
			p.errorf("unknown section name [%s]", name)
		}
	}

	if cpuSections == 0 {
		p.errorf("missing mandatory section [cpu]")
	}
	if memorySections == 0 {
		p.errorf("missing mandatory section [memory]")
	}
	if cacheLevels > MaxCacheLevels {
		p.errorf("too many cache levels: %d (at most %d)",
			cacheLevels, MaxCacheLevels)
	}

	return cacheLevels
}

func (p *parser) checkKeys(sec *ini.Section, valid []string) {
	for _, key := range sec.KeyStrings() {
		known := false
		for _, v := range valid {
			if key == v {
				known = true
				break
			}
		}
		if !known {
			p.errorf("unknown key %s:%s", sec.Name(), key)
		}
	}
}

// value fetches a mandatory key, recording an error when it is missing.
func (p *parser) value(section, key string) (string, bool) {
	sec := p.file.Section(section)
	if !sec.HasKey(key) {
		p.errorf("missing mandatory key %s:%s", section, key)
		return "", false
	}
	return sec.Key(key).String(), true
}

func (p *parser) parseCPU(cfg *Config) {
	if s, ok := p.value("cpu", "address_width"); ok {
		width, err := ParseInt(s)
		if err != nil {
			p.errorf("cpu:address_width: %v", err)
		} else if !isPowerOf2(int64(width)) {
			p.errorf("cpu:address_width must be a power of 2")
		} else {
			cfg.AddressWidth = width
		}
	}

	if s, ok := p.value("cpu", "word_width"); ok {
		width, err := ParseInt(s)
		if err != nil {
			p.errorf("cpu:word_width: %v", err)
		} else if !isPowerOf2(int64(width)) {
			p.errorf("cpu:word_width must be a power of 2")
		} else {
			cfg.WordWidth = width
		}
	}

	if s, ok := p.value("cpu", "rand_seed"); ok {
		seed, err := ParseInt(s)
		if err != nil {
			p.errorf("cpu:rand_seed: %v", err)
		} else {
			cfg.RandSeed = int64(seed)
		}
	}
}

func (p *parser) parseMemory(cfg *Config) {
	if s, ok := p.value("memory", "size"); ok {
		size, err := ParseSize(s, true)
		if err != nil {
			p.errorf("memory:size: %v", err)
		} else {
			cfg.MemorySize = size
		}
	}

	if s, ok := p.value("memory", "access_time_1"); ok {
		t, err := ParseDuration(s)
		if err != nil {
			p.errorf("memory:access_time_1: %v", err)
		} else {
			cfg.AccessTimeSingle = t
		}
	}

	if s, ok := p.value("memory", "access_time_burst"); ok {
		t, err := ParseDuration(s)
		if err != nil {
			p.errorf("memory:access_time_burst: %v", err)
		} else {
			cfg.AccessTimeBurst = t
		}
	}

	if s, ok := p.value("memory", "page_size"); ok {
		size, err := ParseSize(s, true)
		if err != nil {
			p.errorf("memory:page_size: %v", err)
		} else {
			cfg.PageSize = size
		}
	}

	if s, ok := p.value("memory", "page_base_address"); ok {
		address, err := ParseAddress(s)
		if err != nil {
			p.errorf("memory:page_base_address: %v", err)
		} else {
			cfg.PageBaseAddress = address
		}
	}

	if cfg.AddressWidth > 0 && cfg.AddressWidth < 64 &&
		cfg.MemorySize > int64(1)<<cfg.AddressWidth {
		p.warnf("memory:size is too big for a %d bit machine",
			cfg.AddressWidth)
	}
	if cfg.MemorySize > 0 && cfg.PageSize > 0 {
		if cfg.MemorySize%cfg.PageSize != 0 {
			p.errorf("memory:size must be a multiple of memory:page_size")
		}
		if !isPowerOf2(cfg.PageSize) {
			p.errorf("memory:page_size must be a power of 2")
		}
		if cfg.PageBaseAddress%uint64(cfg.PageSize) != 0 {
			p.errorf("memory:page_base_address must be page aligned")
		}
		if cfg.PageBaseAddress >= uint64(cfg.MemorySize) {
			p.errorf("memory:page_base_address is out of range")
		}
	}
}

func (p *parser) parseCaches(cfg *Config, cacheLevels int) {
	for n := 1; n <= cacheLevels; n++ {
		section := fmt.Sprintf("cache%d", n)
		if _, err := p.file.GetSection(section); err != nil {
			p.errorf("missing section [%s]", section)
			continue
		}
		cfg.Caches = append(cfg.Caches, p.parseCacheLevel(section))
	}

	// All levels transfer whole lines between each other, so they must
	// agree on the line size.
	for i := 1; i < len(cfg.Caches); i++ {
		if cfg.Caches[i].LineSize != cfg.Caches[0].LineSize {
			p.errorf("all caches must have the same line_size")
			break
		}
	}
}

func (p *parser) parseCacheLevel(section string) CacheLevel {
	level := CacheLevel{}

	if s, ok := p.value(section, "line_size"); ok {
		size, err := ParseSize(s, true)
		switch {
		case err != nil:
			p.errorf("%s:line_size: %v", section, err)
		case !isPowerOf2(size):
			p.errorf("%s:line_size must be a power of 2", section)
		default:
			level.LineSize = size
		}
	}

	if s, ok := p.value(section, "size"); ok {
		size, err := ParseSize(s, true)
		if err != nil {
			p.errorf("%s:size: %v", section, err)
		} else {
			level.Size = size
		}
	}
	if level.Size > 0 && level.LineSize > 0 &&
		level.Size%level.LineSize != 0 {
		p.errorf("%s:size must be a multiple of %s:line_size",
			section, section)
	}

	if s, ok := p.value(section, "separated"); ok {
		split, err := ParseBool(s)
		if err != nil {
			p.errorf("%s:separated: %v", section, err)
		} else {
			level.Split = split
		}
	}

	numLines := int64(0)
	if level.Size > 0 && level.LineSize > 0 {
		numLines = level.Size / level.LineSize
		if level.Split {
			numLines /= 2
		}
	}

	if s, ok := p.value(section, "associativity"); ok {
		if s == "F" {
			// Fully associative: one set, as many ways as lines.
			level.Associativity = int(numLines)
		} else {
			ways, err := ParseInt(s)
			switch {
			case err != nil:
				p.errorf("%s:associativity: %v", section, err)
			case !isPowerOf2(int64(ways)):
				p.errorf("%s:associativity must be a power of 2", section)
			case numLines > 0 && int64(ways) > numLines:
				p.errorf("%s:associativity cannot exceed the number of lines",
					section)
			default:
				level.Associativity = ways
			}
		}
	}

	if s, ok := p.value(section, "write_policy"); ok {
		policy, err := mem.ParseWritePolicy(s)
		if err != nil {
			p.errorf("%s:write_policy: %v", section, err)
		} else {
			level.WritePolicy = policy
		}
	}

	if s, ok := p.value(section, "replacement_policy"); ok {
		policy, err := mem.ParseReplacementPolicy(s)
		if err != nil {
			p.errorf("%s:replacement_policy: %v", section, err)
		} else {
			level.ReplacementPolicy = policy
		}
	}

	if s, ok := p.value(section, "access_time"); ok {
		t, err := ParseDuration(s)
		if err != nil {
			p.errorf("%s:access_time: %v", section, err)
		} else {
			level.AccessTime = t
		}
	}

	return level
}
