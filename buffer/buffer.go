package buffer

import (
	"errors"
	"fmt"

	"ferroDB/kfile"
	"ferroDB/log"
)

// BackupFile is the shadow file used for pre-modification snapshots.
// Slot i's snapshot occupies block i, i.e. the byte range
// [i*blocksize, (i+1)*blocksize).
const BackupFile = "bufferbackup.dat"

// refIneligible marks a slot the clock scan must never select: the slot
// is pinned, or was just loaded and has not been released yet.
const refIneligible = -1

// PageFormatter initializes the contents of a newly appended block.
type PageFormatter func(p *kfile.Page) error

// Buffer is one slot of the pool. It wraps a page and tracks the disk
// block assigned to it, its pin count, whether the page was modified
// and by which transaction, the LSN of the latest log record describing
// a modification, and the reference count driving G-Clock eviction.
//
// A buffer's page content is serialized by whichever caller holds a pin
// on it; only the pool manager mutates pin and assignment state, under
// its own lock.
type Buffer struct {
	fm          *kfile.FileMgr
	lm          *log.LogMgr
	contents    *kfile.Page
	blk         *kfile.BlockId // nil while the slot is free
	pins        int
	dirty       bool
	txnum       int
	lsn         int
	refCount    int
	index       int
	maxRefCount int
}

func NewBuffer(fm *kfile.FileMgr, lm *log.LogMgr, index, maxRefCount int) *Buffer {
	return &Buffer{
		fm:          fm,
		lm:          lm,
		contents:    kfile.NewPage(fm.BlockSize()),
		lsn:         -1,
		refCount:    refIneligible,
		index:       index,
		maxRefCount: maxRefCount,
	}
}

func (b *Buffer) Contents() *kfile.Page {
	return b.contents
}

// Block returns the disk block this buffer is assigned to, or nil.
func (b *Buffer) Block() *kfile.BlockId {
	return b.blk
}

// Index returns the buffer's fixed slot position in the pool.
func (b *Buffer) Index() int {
	return b.index
}

// BackupOffset returns the byte offset of this slot's region in the
// backup store.
func (b *Buffer) BackupOffset() int {
	return b.index * b.fm.BlockSize()
}

// GetInt returns the integer at the given offset of the buffer's page.
// If an integer was not stored there the value is unpredictable.
func (b *Buffer) GetInt(offset int) (int, error) {
	return b.contents.GetInt(offset)
}

// GetString returns the string at the given offset of the buffer's page.
// If a string was not stored there the value is unpredictable.
func (b *Buffer) GetString(offset int) (string, error) {
	return b.contents.GetString(offset)
}

// SetInt writes an integer to the given offset. The first modification
// of a dirty epoch snapshots the whole page into the backup store
// before any byte changes. A negative lsn means the write needed no log
// record and leaves the recorded LSN untouched.
func (b *Buffer) SetInt(offset, val, txnum, lsn int) error {
	if err := b.markModified(txnum, lsn); err != nil {
		return err
	}
	return b.contents.SetInt(offset, val)
}

// SetString writes a string to the given offset. Backup and LSN
// handling are identical to SetInt.
func (b *Buffer) SetString(offset int, val string, txnum, lsn int) error {
	if err := b.markModified(txnum, lsn); err != nil {
		return err
	}
	return b.contents.SetString(offset, val)
}

func (b *Buffer) markModified(txnum, lsn int) error {
	if !b.dirty {
		if err := b.saveBlock(); err != nil {
			return fmt.Errorf("buffer %d: backup before modify: %w", b.index, err)
		}
	}
	b.dirty = true
	b.txnum = txnum
	if lsn >= 0 {
		b.lsn = lsn
	}
	return nil
}

// Flush writes the page to its disk block if it is dirty, after making
// sure the log record describing the latest modification is durable.
// The dirty state is cleared only once the page bytes have reached
// disk, so a failed flush leaves the buffer dirty.
func (b *Buffer) Flush() error {
	if !b.dirty {
		return nil
	}
	if err := b.lm.Flush(b.lsn); err != nil {
		return fmt.Errorf("buffer %d: log flush up to lsn %d: %w", b.index, b.lsn, err)
	}
	if err := b.fm.Write(*b.blk, b.contents); err != nil {
		return fmt.Errorf("buffer %d: write %v: %w", b.index, *b.blk, err)
	}
	b.dirty = false
	return nil
}

// Pin increases the buffer's pin count. A buffer acquiring its first
// pin leaves the eviction countdown entirely.
func (b *Buffer) Pin() {
	if b.pins == 0 {
		b.refCount = refIneligible
	}
	b.pins++
}

// Unpin decreases the buffer's pin count. Dropping the last pin resets
// the reference count to the configured maximum, so the slot re-enters
// the clock's countdown as hot.
func (b *Buffer) Unpin() error {
	if b.pins <= 0 {
		return errors.New("buffer is not pinned")
	}
	b.pins--
	if b.pins < 1 {
		b.refCount = b.maxRefCount
	}
	return nil
}

func (b *Buffer) IsPinned() bool {
	return b.pins > 0
}

// IsModifiedBy reports whether the buffer is dirty due to a
// modification by the given transaction.
func (b *Buffer) IsModifiedBy(txnum int) bool {
	return b.dirty && b.txnum == txnum
}

// ModifyingTx returns the transaction that dirtied the buffer, with
// ok=false when the buffer is clean.
func (b *Buffer) ModifyingTx() (txnum int, ok bool) {
	return b.txnum, b.dirty
}

// RefCount returns the buffer's current eviction countdown value.
func (b *Buffer) RefCount() int {
	return b.refCount
}

// decrementRefCount takes one eviction life from an unpinned buffer,
// flooring at the ineligible sentinel.
func (b *Buffer) decrementRefCount() {
	if b.IsPinned() {
		return
	}
	b.refCount--
	if b.refCount < refIneligible {
		b.refCount = refIneligible
	}
}

// assignToBlock reads blk into the buffer's page, flushing any previous
// contents first.
func (b *Buffer) assignToBlock(blk kfile.BlockId) error {
	if err := b.Flush(); err != nil {
		return fmt.Errorf("assignToBlock: %w", err)
	}
	if err := b.fm.Read(blk, b.contents); err != nil {
		return fmt.Errorf("assignToBlock: read %v: %w", blk, err)
	}
	b.blk = &blk
	b.pins = 0
	b.refCount = refIneligible
	return nil
}

// assignToNew formats the buffer's page and appends it as a new block
// of the given file, flushing any previous contents first.
func (b *Buffer) assignToNew(filename string, fmtr PageFormatter) error {
	if err := b.Flush(); err != nil {
		return fmt.Errorf("assignToNew: %w", err)
	}
	if err := fmtr(b.contents); err != nil {
		return fmt.Errorf("assignToNew: format: %w", err)
	}
	blk, err := b.fm.Append(filename)
	if err != nil {
		return fmt.Errorf("assignToNew: append to %s: %w", filename, err)
	}
	if err := b.fm.Write(blk, b.contents); err != nil {
		return fmt.Errorf("assignToNew: write %v: %w", blk, err)
	}
	b.blk = &blk
	b.pins = 0
	b.refCount = refIneligible
	return nil
}

// saveBlock snapshots the page into the backup store. The snapshot is
// keyed by slot index, not by block or transaction: a later dirty epoch
// of this slot overwrites it, and if the slot is reassigned to another
// block before an undo reads the snapshot, the undo restores whichever
// block's bytes were saved last. That aliasing is a known correctness
// risk under high pool turnover, inherited from the on-disk contract.
func (b *Buffer) saveBlock() error {
	save := kfile.NewBlockId(BackupFile, b.index)
	if err := b.fm.Write(save, b.contents); err != nil {
		return fmt.Errorf("backup slot %d: %w", b.index, err)
	}
	backupSnapshots.Inc()
	return nil
}

// RestoreBlock is the undo primitive: it reads the snapshot at
// backupOffset from the backup store into the page, reattaches the
// buffer to blk, records txnum and lsn, and flushes. A restore does not
// re-snapshot; undo is not itself undoable through this mechanism.
func (b *Buffer) RestoreBlock(txnum, lsn int, blk kfile.BlockId, backupOffset int) error {
	restore := kfile.NewBlockId(BackupFile, backupOffset/b.fm.BlockSize())
	if err := b.fm.Read(restore, b.contents); err != nil {
		return fmt.Errorf("restore slot %d from offset %d: %w", b.index, backupOffset, err)
	}
	b.blk = &blk
	b.dirty = true
	b.txnum = txnum
	b.lsn = lsn
	return b.Flush()
}
