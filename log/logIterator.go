package log

import (
	"fmt"

	"ferroDB/kfile"
)

// LogIterator walks log records from newest to oldest. Within a block
// records sit right to left in append order, so scanning forward from
// the boundary yields them newest first; exhausted blocks hand off to
// their predecessor.
type LogIterator struct {
	fm         *kfile.FileMgr
	blk        kfile.BlockId
	page       *kfile.Page
	currentPos int
}

func newLogIterator(fm *kfile.FileMgr, blk kfile.BlockId) (*LogIterator, error) {
	it := &LogIterator{
		fm:   fm,
		page: kfile.NewPage(fm.BlockSize()),
	}
	if err := it.moveToBlock(blk); err != nil {
		return nil, err
	}
	return it, nil
}

// HasNext indicates whether there is another record to read.
func (it *LogIterator) HasNext() bool {
	return it.currentPos < it.fm.BlockSize() || it.blk.Number() > 0
}

// Next fetches the next record, moving to the previous block when the
// current one is exhausted.
func (it *LogIterator) Next() ([]byte, error) {
	if it.currentPos == it.fm.BlockSize() {
		if it.blk.Number() == 0 {
			return nil, fmt.Errorf("log: no more records")
		}
		prev := kfile.NewBlockId(it.blk.FileName(), it.blk.Number()-1)
		if err := it.moveToBlock(prev); err != nil {
			return nil, err
		}
	}

	rec, err := it.page.GetBytes(it.currentPos)
	if err != nil {
		return nil, fmt.Errorf("log: failed to read record at %d: %w", it.currentPos, err)
	}
	it.currentPos += kfile.MaxLength(len(rec))
	return rec, nil
}

// moveToBlock reads blk and positions the cursor at its boundary.
func (it *LogIterator) moveToBlock(blk kfile.BlockId) error {
	if err := it.fm.Read(blk, it.page); err != nil {
		return fmt.Errorf("log: failed to read block %v: %w", blk, err)
	}
	boundary, err := it.page.GetInt(0)
	if err != nil {
		return fmt.Errorf("log: failed to read boundary of %v: %w", blk, err)
	}
	it.blk = blk
	it.currentPos = boundary
	return nil
}
