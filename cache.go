package btree

// cacheEntry holds one cached block and whether it has unsaved changes.
type cacheEntry struct {
	blockNumber int
	block       []byte
	dirty       bool
}

// Cache is a bounded write-back cache of file blocks, fused with the
// block allocator. Entries are kept in an ordered list with the most
// recently installed entry first; writes are deferred until a flush or
// until capacity pressure forces one.
type Cache struct {
	capacity    int
	entries     []*cacheEntry
	file        *FLRAF
	unallocated []int // stack of deallocated block numbers, top at the end
	highWater   int   // largest block number ever allocated
}

// NewCache creates a cache over the given block file. The free list seeds
// the allocator stack, bottom to top.
func NewCache(capacity int, file *FLRAF, freeList []int) (*Cache, error) {
	length, err := file.Length()
	if err != nil {
		return nil, err
	}
	return &Cache{
		capacity:    capacity,
		file:        file,
		unallocated: append([]int(nil), freeList...),
		highWater:   int(length/int64(file.BlockSize())) - 1,
	}, nil
}

// File returns the block file backing this cache.
func (c *Cache) File() *FLRAF {
	return c.file
}

// Read returns the bytes of the given block, fetching one block from the
// file into a fresh clean entry on a miss. The returned slice aliases the
// cache entry; callers must not mutate it.
func (c *Cache) Read(blockNumber int) ([]byte, error) {
	if i := c.index(blockNumber); i >= 0 {
		return c.entries[i].block, nil
	}
	block := make([]byte, c.file.BlockSize())
	if _, err := c.file.ReadBlock(blockNumber, block); err != nil {
		return nil, err
	}
	if err := c.install(&cacheEntry{blockNumber: blockNumber, block: block}); err != nil {
		return nil, err
	}
	return block, nil
}

// Write replaces the cached bytes of the given block and marks the entry
// dirty. The block does not reach the file until the next flush.
func (c *Cache) Write(blockNumber int, block []byte) error {
	if i := c.index(blockNumber); i >= 0 {
		c.entries[i].block = block
		c.entries[i].dirty = true
		return nil
	}
	return c.install(&cacheEntry{blockNumber: blockNumber, block: block, dirty: true})
}

// install admits a new entry at the head of the list. On a full cache the
// last clean entry is evicted; if every entry is dirty the whole cache is
// flushed first and the tail dropped.
func (c *Cache) install(entry *cacheEntry) error {
	if len(c.entries) < c.capacity {
		c.entries = append([]*cacheEntry{entry}, c.entries...)
		return nil
	}
	if t := c.lastCleanIndex(); t >= 0 {
		copy(c.entries[1:t+1], c.entries[:t])
		c.entries[0] = entry
		return nil
	}
	if err := c.Flush(); err != nil {
		return err
	}
	copy(c.entries[1:], c.entries[:len(c.entries)-1])
	c.entries[0] = entry
	return nil
}

// index returns the position of the given block in the entry list, or -1.
func (c *Cache) index(blockNumber int) int {
	for i, entry := range c.entries {
		if entry.blockNumber == blockNumber {
			return i
		}
	}
	return -1
}

// lastCleanIndex returns the position of the eviction candidate: the last
// entry whose dirty bit is clear, or -1 if every entry is dirty.
func (c *Cache) lastCleanIndex() int {
	for i := len(c.entries) - 1; i >= 0; i-- {
		if !c.entries[i].dirty {
			return i
		}
	}
	return -1
}

// Allocate returns the next unallocated block number: the most recently
// deallocated block if any, otherwise one past the largest block number
// ever allocated. The caller is expected to write the block promptly.
func (c *Cache) Allocate() int {
	if n := len(c.unallocated); n > 0 {
		blockNumber := c.unallocated[n-1]
		c.unallocated = c.unallocated[:n-1]
		return blockNumber
	}
	c.highWater++
	return c.highWater
}

// Deallocate returns a block number to the allocator. A resident entry
// loses its dirty bit; its contents no longer need to reach the file.
func (c *Cache) Deallocate(blockNumber int) {
	if i := c.index(blockNumber); i >= 0 {
		c.entries[i].dirty = false
	}
	c.unallocated = append(c.unallocated, blockNumber)
}

// FreeList returns a copy of the unallocated block stack, bottom to top.
func (c *Cache) FreeList() []int {
	return append([]int(nil), c.unallocated...)
}

// Flush writes every dirty entry to the block file and clears the dirty
// bits.
func (c *Cache) Flush() error {
	for _, entry := range c.entries {
		if !entry.dirty {
			continue
		}
		if err := c.file.WriteBlock(entry.blockNumber, entry.block); err != nil {
			return err
		}
		entry.dirty = false
	}
	return nil
}

// Close flushes the cache and closes the block file.
func (c *Cache) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	return c.file.Close()
}
