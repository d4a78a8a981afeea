package recovery

import (
	"fmt"

	"ferroDB/buffer"
	"ferroDB/kfile"
)

// UpdateRecord describes one page modification: which transaction made
// it, which block it touched, and where in the backup store the page's
// pre-modification snapshot lives. That is everything undo needs; the
// modified values themselves are not logged because undo restores the
// whole snapshot.
type UpdateRecord struct {
	txnum        int
	blk          kfile.BlockId
	backupOffset int
}

// Field layout within the record page: operator, txnum, filename,
// block number, backup offset.
func updateFieldPositions(filename string) (tpos, fpos, bpos, opos int) {
	tpos = kfile.IntBytes
	fpos = tpos + kfile.IntBytes
	bpos = fpos + kfile.MaxLength(len(filename))
	opos = bpos + kfile.IntBytes
	return
}

func newUpdateRecord(p *kfile.Page) (*UpdateRecord, error) {
	txnum, err := p.GetInt(kfile.IntBytes)
	if err != nil {
		return nil, fmt.Errorf("recovery: update record missing txnum: %w", err)
	}
	filename, err := p.GetString(2 * kfile.IntBytes)
	if err != nil {
		return nil, fmt.Errorf("recovery: update record missing filename: %w", err)
	}
	_, _, bpos, opos := updateFieldPositions(filename)
	blknum, err := p.GetInt(bpos)
	if err != nil {
		return nil, fmt.Errorf("recovery: update record missing block number: %w", err)
	}
	backupOffset, err := p.GetInt(opos)
	if err != nil {
		return nil, fmt.Errorf("recovery: update record missing backup offset: %w", err)
	}
	return &UpdateRecord{
		txnum:        txnum,
		blk:          kfile.NewBlockId(filename, blknum),
		backupOffset: backupOffset,
	}, nil
}

// UpdateRecordWriteToLog appends an update record for the given buffer
// and returns the record's LSN, which the caller passes into the page
// write so the buffer's flush ordering covers this record.
func UpdateRecordWriteToLog(lm LogAppender, txnum int, buff *buffer.Buffer) (int, error) {
	blk := buff.Block()
	if blk == nil {
		return 0, fmt.Errorf("recovery: update record for unassigned buffer %d", buff.Index())
	}

	tpos, fpos, bpos, opos := updateFieldPositions(blk.FileName())
	p := kfile.NewPage(opos + kfile.IntBytes)
	if err := p.SetInt(0, UPDATE); err != nil {
		return 0, err
	}
	if err := p.SetInt(tpos, txnum); err != nil {
		return 0, err
	}
	if err := p.SetString(fpos, blk.FileName()); err != nil {
		return 0, err
	}
	if err := p.SetInt(bpos, blk.Number()); err != nil {
		return 0, err
	}
	if err := p.SetInt(opos, buff.BackupOffset()); err != nil {
		return 0, err
	}
	return lm.Append(p.Contents())
}

func (r *UpdateRecord) Op() int {
	return UPDATE
}

func (r *UpdateRecord) TxNumber() int {
	return r.txnum
}

// Undo pins the record's block, restores the page snapshot from the
// backup store, and unpins. The restore runs with a dummy LSN of -1:
// undoing is not itself logged, so it must not disturb a previously
// recorded LSN when the log flushes.
func (r *UpdateRecord) Undo(bm *buffer.BufferMgr) error {
	buff, err := bm.Pin(r.blk)
	if err != nil {
		return fmt.Errorf("undo %v: pin: %w", r, err)
	}
	defer bm.Unpin(buff)

	if err := buff.RestoreBlock(r.txnum, -1, r.blk, r.backupOffset); err != nil {
		return fmt.Errorf("undo %v: restore: %w", r, err)
	}
	return nil
}

func (r *UpdateRecord) String() string {
	return fmt.Sprintf("<UPDATE %d %s %d %d>", r.txnum, r.blk.FileName(), r.blk.Number(), r.backupOffset)
}
