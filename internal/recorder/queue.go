package recorder

import (
	"sync"
	"sync/atomic"
	"time"
)

// sampleWidth is the size in bytes of one captured sample.
const sampleWidth = 2

// Block is one callback's worth of interleaved samples. A block is owned by
// exactly one stage at a time.
type Block struct {
	Samples  []int16
	Frames   int
	Channels int
	Captured time.Time
	Status   StreamStatus
}

// Bytes is the memory accounted for b.
func (b *Block) Bytes() int64 {
	return int64(len(b.Samples)) * sampleWidth
}

// Queue is an unbounded FIFO of blocks. Push and Drain may be called
// concurrently; the byte counter can be read without taking the lock.
type Queue struct {
	mu     sync.Mutex
	blocks []*Block
	bytes  atomic.Int64
}

// Push appends b. It only holds the lock for a slice append.
func (q *Queue) Push(b *Block) {
	q.mu.Lock()
	q.blocks = append(q.blocks, b)
	q.bytes.Add(b.Bytes())
	q.mu.Unlock()
}

// Drain removes and returns every queued block in push order and resets
// the byte counter.
func (q *Queue) Drain() []*Block {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.blocks) == 0 {
		return nil
	}
	out := q.blocks
	q.blocks = nil
	q.bytes.Store(0)
	return out
}

// Bytes returns the bytes held by queued blocks.
func (q *Queue) Bytes() int64 {
	return q.bytes.Load()
}

// Len returns the number of queued blocks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}
