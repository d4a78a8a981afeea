package kfile

import "fmt"

// BlockId names a fixed-size region of a file in the database
// directory. It is a plain value: two BlockIds naming the same region
// compare equal, so a BlockId can key the buffer pool's map directly.
type BlockId struct {
	Filename string
	Blknum   int
}

func NewBlockId(filename string, blknum int) BlockId {
	return BlockId{
		Filename: filename,
		Blknum:   blknum,
	}
}

func (b BlockId) FileName() string {
	return b.Filename
}

func (b BlockId) Number() int {
	return b.Blknum
}

func (b BlockId) Equals(other BlockId) bool {
	return b == other
}

func (b BlockId) String() string {
	return fmt.Sprintf("[file %s, block %d]", b.Filename, b.Blknum)
}
