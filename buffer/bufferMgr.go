package buffer

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ferroDB/kfile"
	"ferroDB/log"
)

// ErrPoolExhausted is returned when every slot is pinned, or the
// bounded clock scan could not find an eligible victim. The caller owns
// the retry policy: back off and pin again, or abort a transaction to
// release pins.
var ErrPoolExhausted = errors.New("buffer pool exhausted: no unpinned buffer available")

// DefaultMaxRefCount is the G-Clock reference count used when the
// configured value is unset or non-positive.
const DefaultMaxRefCount = 5

// BufferMgr manages the pinning and unpinning of buffers to blocks over
// a fixed set of slots, evicting with a Generalized-CLOCK policy: a
// freshly released slot gets maxRefCount lives, and the circular scan
// takes one life per pass until a slot with none left becomes the
// victim. Pinned slots are never selected.
//
// All mutating operations run under one pool-wide mutex so that victim
// selection, the block map, and the clock hand observe a total order.
type BufferMgr struct {
	pool        []*Buffer
	poolMap     map[kfile.BlockId]*Buffer
	clockHand   int
	maxRefCount int
	mu          sync.Mutex
	logger      *zap.Logger
}

// NewBufferMgr creates a buffer manager with numbuffs slots. Passing a
// non-positive maxRefCount selects DefaultMaxRefCount.
func NewBufferMgr(fm *kfile.FileMgr, lm *log.LogMgr, numbuffs, maxRefCount int, logger *zap.Logger) *BufferMgr {
	if maxRefCount < 1 {
		maxRefCount = DefaultMaxRefCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := make([]*Buffer, numbuffs)
	for i := range pool {
		pool[i] = NewBuffer(fm, lm, i, maxRefCount)
	}

	bm := &BufferMgr{
		pool:        pool,
		poolMap:     make(map[kfile.BlockId]*Buffer, numbuffs),
		clockHand:   -1,
		maxRefCount: maxRefCount,
		logger:      logger,
	}
	unpinnedSlots.Set(float64(numbuffs))

	logger.Info("buffer pool initialized",
		zap.Int("slots", numbuffs),
		zap.Int("max_ref_count", maxRefCount))
	return bm
}

// Pin pins a buffer to the given block. A buffer already assigned to
// the block is reused; otherwise a victim slot is chosen, its previous
// contents flushed out if dirty, and the block loaded into it. The
// returned buffer stays assigned to blk with a pin count of at least
// one until the caller unpins it.
func (bm *BufferMgr) Pin(blk kfile.BlockId) (*Buffer, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	buff, resident := bm.poolMap[blk]
	if resident {
		poolHits.Inc()
	} else {
		poolMisses.Inc()
		buff = bm.chooseUnpinnedBuffer()
		if buff == nil {
			poolExhaustions.Inc()
			return nil, ErrPoolExhausted
		}
		if err := buff.assignToBlock(blk); err != nil {
			return nil, fmt.Errorf("pin %v: %w", blk, err)
		}
		bm.poolMap[blk] = buff
	}

	buff.Pin()
	unpinnedSlots.Set(float64(bm.availableLocked()))
	return buff, nil
}

// PinNew allocates a new block in the given file, formats it with fmtr,
// and pins a buffer to it.
func (bm *BufferMgr) PinNew(filename string, fmtr PageFormatter) (*Buffer, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	buff := bm.chooseUnpinnedBuffer()
	if buff == nil {
		poolExhaustions.Inc()
		return nil, ErrPoolExhausted
	}
	poolMisses.Inc()

	if err := buff.assignToNew(filename, fmtr); err != nil {
		return nil, fmt.Errorf("pinNew %s: %w", filename, err)
	}
	bm.poolMap[*buff.Block()] = buff

	buff.Pin()
	unpinnedSlots.Set(float64(bm.availableLocked()))
	return buff, nil
}

// Unpin releases one pin on the buffer. The slot is not evicted
// eagerly; it stays resident until a future Pin needs a victim.
func (bm *BufferMgr) Unpin(buff *Buffer) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if err := buff.Unpin(); err != nil {
		return err
	}
	unpinnedSlots.Set(float64(bm.availableLocked()))
	return nil
}

// FlushAll flushes every resident buffer dirtied by the given
// transaction. Buffers keep their block assignment afterwards.
func (bm *BufferMgr) FlushAll(txnum int) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	for _, buff := range bm.poolMap {
		if buff.IsModifiedBy(txnum) {
			if err := buff.Flush(); err != nil {
				return fmt.Errorf("flushAll tx %d: %w", txnum, err)
			}
		}
	}
	return nil
}

// Available returns the number of unpinned buffers at the instant of
// the call. Concurrent pins can invalidate it immediately.
func (bm *BufferMgr) Available() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.availableLocked()
}

func (bm *BufferMgr) availableLocked() int {
	n := 0
	for _, buff := range bm.pool {
		if !buff.IsPinned() {
			n++
		}
	}
	return n
}

// ContainsMapping reports whether the pool currently maps blk to a slot.
func (bm *BufferMgr) ContainsMapping(blk kfile.BlockId) bool {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	_, ok := bm.poolMap[blk]
	return ok
}

// Mapping returns the buffer currently assigned to blk, or nil.
func (bm *BufferMgr) Mapping(blk kfile.BlockId) *Buffer {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.poolMap[blk]
}

// chooseUnpinnedBuffer selects a victim slot, removing it from the
// block map, or returns nil when the pool is exhausted. The caller must
// hold bm.mu.
func (bm *BufferMgr) chooseUnpinnedBuffer() *Buffer {
	// Prefer a slot that never held a block while free capacity exists,
	// so the clock only runs on a full pool.
	if len(bm.poolMap) < len(bm.pool) {
		for _, buff := range bm.pool {
			if buff.blk == nil || bm.poolMap[*buff.blk] != buff {
				return buff
			}
		}
	}

	// Bounded scan: every slot can be passed at most maxRefCount+1
	// times, so the loop terminates even if every slot is pinned.
	for count := len(bm.pool) * (bm.maxRefCount + 1); count > 0; count-- {
		bm.clockHand = (bm.clockHand + 1) % len(bm.pool)
		buff := bm.pool[bm.clockHand]

		if buff.IsPinned() {
			continue
		}
		if buff.RefCount() < 1 {
			delete(bm.poolMap, *buff.blk)
			poolEvictions.Inc()
			bm.logger.Debug("g-clock victim selected",
				zap.Int("slot", buff.index),
				zap.Stringer("block", *buff.blk))
			return buff
		}
		buff.decrementRefCount()
	}

	return nil
}
