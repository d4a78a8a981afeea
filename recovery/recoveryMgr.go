package recovery

import (
	"fmt"

	"ferroDB/buffer"
	"ferroDB/log"
)

// Mgr manages the logging and recovery for one transaction. Creating a
// manager writes the transaction's START record.
type Mgr struct {
	lm    *log.LogMgr
	bm    *buffer.BufferMgr
	txnum int
}

func NewRecoveryMgr(txnum int, lm *log.LogMgr, bm *buffer.BufferMgr) (*Mgr, error) {
	rm := &Mgr{
		lm:    lm,
		bm:    bm,
		txnum: txnum,
	}
	if _, err := StartRecordWriteToLog(lm, txnum); err != nil {
		return nil, fmt.Errorf("recovery: start record for tx %d: %w", txnum, err)
	}
	return rm, nil
}

// Commit flushes the transaction's buffers, then writes and flushes a
// COMMIT record.
func (r *Mgr) Commit() error {
	if err := r.bm.FlushAll(r.txnum); err != nil {
		return fmt.Errorf("commit tx %d: %w", r.txnum, err)
	}
	lsn, err := CommitRecordWriteToLog(r.lm, r.txnum)
	if err != nil {
		return fmt.Errorf("commit tx %d: %w", r.txnum, err)
	}
	if err := r.lm.Flush(lsn); err != nil {
		return fmt.Errorf("commit tx %d: log flush: %w", r.txnum, err)
	}
	return nil
}

// Rollback undoes the transaction's updates newest-first, then writes
// and flushes a ROLLBACK record.
func (r *Mgr) Rollback() error {
	if err := r.doRollback(); err != nil {
		return fmt.Errorf("rollback tx %d: %w", r.txnum, err)
	}
	if err := r.bm.FlushAll(r.txnum); err != nil {
		return fmt.Errorf("rollback tx %d: %w", r.txnum, err)
	}
	lsn, err := RollbackRecordWriteToLog(r.lm, r.txnum)
	if err != nil {
		return fmt.Errorf("rollback tx %d: %w", r.txnum, err)
	}
	if err := r.lm.Flush(lsn); err != nil {
		return fmt.Errorf("rollback tx %d: log flush: %w", r.txnum, err)
	}
	return nil
}

// Recover undoes every update of transactions that neither committed
// nor rolled back, then writes a quiescent CHECKPOINT record. It is run
// during startup after a crash; the backup store persists across
// restarts, so snapshots taken before the crash are still restorable.
func (r *Mgr) Recover() error {
	if err := r.doRecover(); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	if err := r.bm.FlushAll(r.txnum); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	lsn, err := CheckpointRecordWriteToLog(r.lm)
	if err != nil {
		return fmt.Errorf("recover: checkpoint record: %w", err)
	}
	if err := r.lm.Flush(lsn); err != nil {
		return fmt.Errorf("recover: log flush: %w", err)
	}
	return nil
}

// SetInt logs an update record for the buffer and writes the integer,
// carrying the record's LSN into the page write. Returns the LSN.
func (r *Mgr) SetInt(buff *buffer.Buffer, offset, val int) (int, error) {
	lsn, err := UpdateRecordWriteToLog(r.lm, r.txnum, buff)
	if err != nil {
		return 0, fmt.Errorf("setInt tx %d: %w", r.txnum, err)
	}
	if err := buff.SetInt(offset, val, r.txnum, lsn); err != nil {
		return 0, fmt.Errorf("setInt tx %d: %w", r.txnum, err)
	}
	return lsn, nil
}

// SetString logs an update record for the buffer and writes the string,
// carrying the record's LSN into the page write. Returns the LSN.
func (r *Mgr) SetString(buff *buffer.Buffer, offset int, val string) (int, error) {
	lsn, err := UpdateRecordWriteToLog(r.lm, r.txnum, buff)
	if err != nil {
		return 0, fmt.Errorf("setString tx %d: %w", r.txnum, err)
	}
	if err := buff.SetString(offset, val, r.txnum, lsn); err != nil {
		return 0, fmt.Errorf("setString tx %d: %w", r.txnum, err)
	}
	return lsn, nil
}

// doRollback scans the log backwards, undoing this transaction's
// updates until its START record appears.
func (r *Mgr) doRollback() error {
	iter, err := r.lm.Iterator()
	if err != nil {
		return err
	}
	for iter.HasNext() {
		data, err := iter.Next()
		if err != nil {
			return err
		}
		rec, err := CreateLogRecord(data)
		if err != nil {
			return err
		}
		if rec.TxNumber() != r.txnum {
			continue
		}
		if rec.Op() == START {
			return nil
		}
		if err := rec.Undo(r.bm); err != nil {
			return err
		}
	}
	return nil
}

// doRecover scans the log backwards, undoing updates of transactions
// with no COMMIT or ROLLBACK record, stopping at a CHECKPOINT.
func (r *Mgr) doRecover() error {
	finishedTxs := make(map[int]bool)

	iter, err := r.lm.Iterator()
	if err != nil {
		return err
	}
	for iter.HasNext() {
		data, err := iter.Next()
		if err != nil {
			return err
		}
		rec, err := CreateLogRecord(data)
		if err != nil {
			return err
		}
		switch rec.Op() {
		case CHECKPOINT:
			return nil
		case COMMIT, ROLLBACK:
			finishedTxs[rec.TxNumber()] = true
		case UPDATE:
			if !finishedTxs[rec.TxNumber()] {
				if err := rec.Undo(r.bm); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
