package mem_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsim/mem"
)

// newTestHierarchy builds a single cache in front of a small main memory:
// 128B cache, 16B lines, 2 ways, 4 sets, memory page at 0x1000.
func newTestHierarchy(
	writePolicy mem.WritePolicy,
	replacementPolicy mem.ReplacementPolicy,
	split bool,
) (*mem.Cache, *mem.MainMemory, *mem.Clock) {
	clock := &mem.Clock{}
	rng := rand.New(rand.NewSource(42))

	memory := mem.NewMainMemory(mem.MemoryConfig{
		Size:             1024 * 1024,
		PageSize:         4096,
		PageBaseAddress:  0x1000,
		AccessTimeSingle: 10e-9,
		AccessTimeBurst:  2e-9,
		WordWidthBytes:   4,
	})

	cache := mem.NewCache(mem.CacheConfig{
		Size:              128,
		LineSize:          16,
		Associativity:     2,
		WritePolicy:       writePolicy,
		ReplacementPolicy: replacementPolicy,
		Split:             split,
		AccessTime:        1e-9,
		WordWidthBytes:    4,
	}, clock, rng)
	cache.SetNext(memory)
	memory.SetPrev(cache)

	return cache, memory, clock
}

func load(address uint64) *mem.Operation {
	return &mem.Operation{
		Kind:     mem.Load,
		Address:  address,
		IsData:   true,
		NumWords: 1,
	}
}

func store(address uint64, value uint64) *mem.Operation {
	return &mem.Operation{
		Kind:     mem.Store,
		Address:  address,
		IsData:   true,
		Data:     []uint64{value},
		NumWords: 1,
	}
}

// hasTag reports whether the data array currently holds the line for an
// address.
func hasTag(c *mem.Cache, address uint64) bool {
	tag := c.TagOf(address)
	set := c.SetOf(address)
	for way := 0; way < c.Ways(); way++ {
		line := c.DataLines()[set*c.Ways()+way]
		if line.Valid && line.Tag == tag {
			return true
		}
	}
	return false
}

var _ = Describe("Cache", func() {
	var (
		cache  *mem.Cache
		memory *mem.MainMemory
		clock  *mem.Clock
	)

	step := func(op *mem.Operation) *mem.Reply {
		rep := mem.NewReply(op.NumWords)
		cache.ProcessRequest(op, rep)
		clock.Cycle++
		return rep
	}

	Describe("Address decoding", func() {
		BeforeEach(func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, false)
		})

		It("should recombine tag, set, and offset into the address", func() {
			for _, address := range []uint64{
				0x1000, 0x1004, 0x103C, 0x1555, 0x1FFC,
			} {
				tag := cache.TagOf(address)
				set := cache.SetOf(address)
				offset := cache.OffsetOf(address)
				Expect(cache.BaseAddressOf(tag, set) + offset).
					To(Equal(address))
			}
		})

		It("should map same-set addresses to one set", func() {
			Expect(cache.SetOf(0x1000)).To(Equal(0))
			Expect(cache.SetOf(0x1040)).To(Equal(0))
			Expect(cache.SetOf(0x1080)).To(Equal(0))
			Expect(cache.SetOf(0x1010)).To(Equal(1))
		})
	})

	Describe("Load handling", func() {
		BeforeEach(func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, false)
		})

		It("should miss cold and then hit", func() {
			memory.SetWord(0x1000, 0xBEEF)

			first := step(load(0x1000))
			second := step(load(0x1000))

			Expect(first.Data[0]).To(Equal(uint64(0xBEEF)))
			Expect(second.Data[0]).To(Equal(uint64(0xBEEF)))
			Expect(cache.Accesses()).To(Equal(uint64(2)))
			Expect(cache.Hits()).To(Equal(uint64(1)))
			Expect(cache.Misses()).To(Equal(uint64(1)))
		})

		It("should charge the access time on a hit and the full chain on a miss", func() {
			first := step(load(0x1000))
			second := step(load(0x1000))

			// Miss: entry access + line fill from memory + re-access.
			Expect(float64(first.TotalTime)).
				To(BeNumerically("~", 18e-9, 1e-15))
			Expect(float64(second.TotalTime)).
				To(BeNumerically("~", 1e-9, 1e-15))
		})

		It("should hit on other words of a cached line", func() {
			memory.SetWord(0x1008, 77)

			step(load(0x1000))
			rep := step(load(0x1008))

			Expect(rep.Data[0]).To(Equal(uint64(77)))
			Expect(cache.Hits()).To(Equal(uint64(1)))
		})

		It("should stamp line metadata on every access", func() {
			step(load(0x1000))
			step(load(0x1000))
			step(load(0x1000))

			line := cache.DataLines()[0]
			Expect(line.Valid).To(BeTrue())
			Expect(line.FirstAccess).To(Equal(int64(0)))
			Expect(line.LastAccess).To(Equal(int64(2)))
			Expect(line.NumberAccesses).To(Equal(int64(3)))
		})

		It("should panic on an access crossing the line boundary", func() {
			op := &mem.Operation{
				Kind:     mem.Load,
				Address:  0x100C,
				IsData:   true,
				NumWords: 2,
			}
			Expect(func() {
				cache.ProcessRequest(op, mem.NewReply(2))
			}).To(Panic())
		})
	})

	Describe("Write-back stores", func() {
		BeforeEach(func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, false)
		})

		It("should write-allocate on a miss and mark the line dirty", func() {
			step(store(0x1000, 42))

			Expect(cache.Misses()).To(Equal(uint64(1)))
			line := cache.DataLines()[0]
			Expect(line.Valid).To(BeTrue())
			Expect(line.Dirty).To(BeTrue())
			Expect(line.Content[0]).To(Equal(uint64(42)))

			// The store stays local until eviction.
			Expect(memory.Word(0x1000)).To(Equal(uint64(0)))
		})

		It("should count a hit when the line is already present", func() {
			step(store(0x1000, 1))
			step(store(0x1000, 2))

			Expect(cache.Hits()).To(Equal(uint64(1)))
			Expect(cache.Misses()).To(Equal(uint64(1)))
		})

		It("should write a dirty victim back on eviction", func() {
			// 0x1000, 0x1040, and 0x1080 all map to set 0. The third
			// store evicts the LRU line for 0x1000 and flushes it to
			// memory.
			step(store(0x1000, 42))
			step(store(0x1040, 7))
			step(store(0x1080, 9))

			Expect(memory.Word(0x1000)).To(Equal(uint64(42)))

			// 0x1040 is dirty in the cache; memory still holds the
			// initialization pattern for it.
			Expect(memory.Word(0x1040)).To(Equal(uint64(16)))
		})

		It("should charge the write-back latency to the requester", func() {
			step(store(0x1000, 42))
			step(store(0x1040, 7))
			rep := step(store(0x1080, 9))

			// Entry + fill + re-access + full-line write-back.
			Expect(float64(rep.TotalTime)).
				To(BeNumerically("~", (1+16+1+16)*1e-9, 1e-15))
		})
	})

	Describe("Write-through stores", func() {
		BeforeEach(func() {
			cache, memory, clock = newTestHierarchy(mem.WriteThrough, mem.LRU, false)
		})

		It("should count every store as a hit, even on a tag miss", func() {
			step(store(0x1000, 5))

			Expect(cache.Accesses()).To(Equal(uint64(1)))
			Expect(cache.Hits()).To(Equal(uint64(1)))
			Expect(cache.Misses()).To(Equal(uint64(0)))
		})

		It("should propagate the store to memory immediately", func() {
			step(store(0x1000, 5))

			Expect(memory.Word(0x1000)).To(Equal(uint64(5)))
		})

		It("should never dirty a present line", func() {
			step(load(0x1000))
			step(store(0x1000, 5))

			line := cache.DataLines()[0]
			Expect(line.Dirty).To(BeFalse())
			Expect(line.Content[0]).To(Equal(uint64(5)))
		})

		It("should not allocate on a store miss", func() {
			step(store(0x1000, 5))

			for _, line := range cache.DataLines() {
				Expect(line.Valid).To(BeFalse())
			}
		})
	})

	Describe("Replacement policies", func() {
		It("should prefer invalid lines before consulting the policy", func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, false)

			step(load(0x1000))
			step(load(0x1040))

			lines := cache.DataLines()
			Expect(lines[0].Valid).To(BeTrue())
			Expect(lines[1].Valid).To(BeTrue())
			Expect(lines[0].Tag).To(Equal(cache.TagOf(0x1000)))
			Expect(lines[1].Tag).To(Equal(cache.TagOf(0x1040)))
		})

		It("should evict the least recently used line under LRU", func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, false)

			step(load(0x1000))
			step(load(0x1040))
			step(load(0x1000)) // refresh 0x1000
			step(load(0x1080)) // evicts 0x1040

			Expect(hasTag(cache, 0x1000)).To(BeTrue())
			Expect(hasTag(cache, 0x1040)).To(BeFalse())
			Expect(hasTag(cache, 0x1080)).To(BeTrue())
		})

		It("should evict the first inserted line under FIFO, ignoring hits", func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.FIFO, false)

			step(load(0x1000))
			step(load(0x1040))
			step(load(0x1000)) // a hit does not refresh FIFO order
			step(load(0x1080)) // evicts 0x1000

			Expect(hasTag(cache, 0x1000)).To(BeFalse())
			Expect(hasTag(cache, 0x1040)).To(BeTrue())
			Expect(hasTag(cache, 0x1080)).To(BeTrue())
		})

		It("should evict the least frequently used line under LFU", func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LFU, false)

			step(load(0x1040))
			step(load(0x1000))
			step(load(0x1000)) // 0x1000 now has more accesses
			step(load(0x1080)) // evicts 0x1040

			Expect(hasTag(cache, 0x1000)).To(BeTrue())
			Expect(hasTag(cache, 0x1040)).To(BeFalse())
			Expect(hasTag(cache, 0x1080)).To(BeTrue())
		})

		It("should follow the seeded PRNG under Rand", func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.Rand, false)

			step(load(0x1000))
			step(load(0x1040))
			step(load(0x1080))

			expected := rand.New(rand.NewSource(42)).Intn(2)
			survivor := uint64(0x1040)
			if expected == 1 {
				survivor = 0x1000
			}
			Expect(hasTag(cache, survivor)).To(BeTrue())
			Expect(hasTag(cache, 0x1080)).To(BeTrue())
		})
	})

	Describe("Split instruction/data arrays", func() {
		BeforeEach(func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, true)
		})

		It("should halve the sets per array", func() {
			Expect(cache.Sets()).To(Equal(2))
			Expect(cache.InstLines()).To(HaveLen(4))
			Expect(cache.DataLines()).To(HaveLen(4))
		})

		It("should keep instruction fetches apart from data loads", func() {
			fetch := &mem.Operation{
				Kind:     mem.Load,
				Address:  0x1000,
				IsData:   false,
				NumWords: 1,
			}
			step(fetch)

			instValid := 0
			for _, line := range cache.InstLines() {
				if line.Valid {
					instValid++
				}
			}
			Expect(instValid).To(Equal(1))
			for _, line := range cache.DataLines() {
				Expect(line.Valid).To(BeFalse())
			}

			step(load(0x1000))
			Expect(cache.Misses()).To(Equal(uint64(2)))
		})
	})

	Describe("Flush", func() {
		BeforeEach(func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, false)
		})

		It("should invalidate every line and reset the counters", func() {
			step(store(0x1000, 42))
			step(load(0x1040))

			cache.Flush()

			Expect(cache.Accesses()).To(Equal(uint64(0)))
			Expect(cache.Hits()).To(Equal(uint64(0)))
			Expect(cache.Misses()).To(Equal(uint64(0)))
			for i, line := range cache.DataLines() {
				Expect(line.Valid).To(BeFalse())
				Expect(line.Dirty).To(BeFalse())
				Expect(line.FirstAccess).To(Equal(int64(-1)))
				Expect(line.LastAccess).To(Equal(int64(-1)))
				Expect(line.NumberAccesses).To(Equal(int64(-1)))
				Expect(line.Set).To(Equal(i / cache.Ways()))
				Expect(line.Way).To(Equal(i % cache.Ways()))
				for _, word := range line.Content {
					Expect(word).To(Equal(uint64(0)))
				}
			}
		})
	})

	Describe("Conservation", func() {
		It("should keep accesses equal to hits plus misses", func() {
			cache, memory, clock = newTestHierarchy(mem.WriteBack, mem.LRU, false)

			for _, op := range []*mem.Operation{
				load(0x1000), store(0x1000, 1), load(0x1040),
				store(0x1080, 2), load(0x1000), load(0x10C0),
			} {
				step(op)
			}

			Expect(cache.Accesses()).
				To(Equal(cache.Hits() + cache.Misses()))
		})
	})
})
