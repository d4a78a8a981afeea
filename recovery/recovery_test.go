package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ferroDB/buffer"
	"ferroDB/kfile"
	"ferroDB/log"
)

const testBlockSize = 400

func setupEngine(t *testing.T, numbuffs int) (*buffer.BufferMgr, *log.LogMgr, *kfile.FileMgr) {
	t.Helper()
	fm, err := kfile.NewFileMgr(t.TempDir(), testBlockSize)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Close() })

	lm, err := log.NewLogMgr(fm, "testlog", zap.NewNop())
	require.NoError(t, err)

	bm := buffer.NewBufferMgr(fm, lm, numbuffs, 2, zap.NewNop())
	return bm, lm, fm
}

// seedBlock puts a committed value on disk so later epochs have a
// meaningful pre-image to snapshot.
func seedBlock(t *testing.T, bm *buffer.BufferMgr, blk kfile.BlockId, val int) {
	t.Helper()
	buff, err := bm.Pin(blk)
	require.NoError(t, err)
	require.NoError(t, buff.SetInt(0, val, 99, -1))
	require.NoError(t, buff.Flush())
	require.NoError(t, bm.Unpin(buff))
}

func TestCommitPersistsAndCleans(t *testing.T) {
	bm, lm, fm := setupEngine(t, 3)
	blk := kfile.NewBlockId("data.db", 0)

	rm, err := NewRecoveryMgr(7, lm, bm)
	require.NoError(t, err)

	buff, err := bm.Pin(blk)
	require.NoError(t, err)
	_, err = rm.SetInt(buff, 0, 42)
	require.NoError(t, err)
	require.NoError(t, bm.Unpin(buff))

	require.NoError(t, rm.Commit())

	// the disk copy shows the committed value and the slot is clean
	p := kfile.NewPage(testBlockSize)
	require.NoError(t, fm.Read(blk, p))
	n, err := p.GetInt(0)
	require.NoError(t, err)
	require.Equal(t, 42, n)
	_, dirty := buff.ModifyingTx()
	require.False(t, dirty)
}

func TestUpdateRecordRoundTrip(t *testing.T) {
	bm, lm, _ := setupEngine(t, 3)
	blk := kfile.NewBlockId("segment.db", 4)

	buff, err := bm.Pin(blk)
	require.NoError(t, err)

	_, err = UpdateRecordWriteToLog(lm, 7, buff)
	require.NoError(t, err)

	iter, err := lm.Iterator()
	require.NoError(t, err)
	require.True(t, iter.HasNext())
	data, err := iter.Next()
	require.NoError(t, err)

	rec, err := CreateLogRecord(data)
	require.NoError(t, err)
	require.Equal(t, UPDATE, rec.Op())
	require.Equal(t, 7, rec.TxNumber())

	upd, ok := rec.(*UpdateRecord)
	require.True(t, ok)
	require.Equal(t, blk, upd.blk)
	require.Equal(t, buff.BackupOffset(), upd.backupOffset)

	require.NoError(t, bm.Unpin(buff))
}

func TestUndoRestoresPreviousValue(t *testing.T) {
	bm, lm, _ := setupEngine(t, 3)
	blk := kfile.NewBlockId("data.db", 0)
	seedBlock(t, bm, blk, 42)

	rm, err := NewRecoveryMgr(7, lm, bm)
	require.NoError(t, err)

	buff, err := bm.Pin(blk)
	require.NoError(t, err)
	_, err = rm.SetInt(buff, 0, 99)
	require.NoError(t, err)
	require.NoError(t, bm.Unpin(buff))

	// fetch the update record back from the log and undo it
	iter, err := lm.Iterator()
	require.NoError(t, err)
	var upd LogRecord
	for iter.HasNext() {
		data, err := iter.Next()
		require.NoError(t, err)
		rec, err := CreateLogRecord(data)
		require.NoError(t, err)
		if rec.Op() == UPDATE {
			upd = rec
			break
		}
	}
	require.NotNil(t, upd)
	require.NoError(t, upd.Undo(bm))

	restored, err := bm.Pin(blk)
	require.NoError(t, err)
	n, err := restored.GetInt(0)
	require.NoError(t, err)
	require.Equal(t, 42, n)
	require.NoError(t, bm.Unpin(restored))
}

func TestUndoIsIdempotentWithinEpoch(t *testing.T) {
	bm, lm, _ := setupEngine(t, 3)
	blk := kfile.NewBlockId("data.db", 0)
	seedBlock(t, bm, blk, 42)

	rm, err := NewRecoveryMgr(7, lm, bm)
	require.NoError(t, err)

	buff, err := bm.Pin(blk)
	require.NoError(t, err)
	_, err = rm.SetInt(buff, 0, 99)
	require.NoError(t, err)
	require.NoError(t, bm.Unpin(buff))

	iter, err := lm.Iterator()
	require.NoError(t, err)
	var upd LogRecord
	for iter.HasNext() {
		data, err := iter.Next()
		require.NoError(t, err)
		rec, err := CreateLogRecord(data)
		require.NoError(t, err)
		if rec.Op() == UPDATE {
			upd = rec
			break
		}
	}
	require.NotNil(t, upd)

	// restoring the same snapshot twice lands on the same bytes
	for i := 0; i < 2; i++ {
		require.NoError(t, upd.Undo(bm))
		restored, err := bm.Pin(blk)
		require.NoError(t, err)
		n, err := restored.GetInt(0)
		require.NoError(t, err)
		require.Equal(t, 42, n)
		require.NoError(t, bm.Unpin(restored))
	}
}

func TestRollbackUndoesAllTransactionWrites(t *testing.T) {
	bm, lm, fm := setupEngine(t, 3)
	blkA := kfile.NewBlockId("data.db", 0)
	blkB := kfile.NewBlockId("data.db", 1)
	seedBlock(t, bm, blkA, 10)
	seedBlock(t, bm, blkB, 20)

	rm, err := NewRecoveryMgr(7, lm, bm)
	require.NoError(t, err)

	buffA, err := bm.Pin(blkA)
	require.NoError(t, err)
	_, err = rm.SetInt(buffA, 0, 11)
	require.NoError(t, err)
	require.NoError(t, bm.Unpin(buffA))

	buffB, err := bm.Pin(blkB)
	require.NoError(t, err)
	_, err = rm.SetString(buffB, 4, "oops")
	require.NoError(t, err)
	require.NoError(t, bm.Unpin(buffB))

	require.NoError(t, rm.Rollback())

	p := kfile.NewPage(testBlockSize)
	require.NoError(t, fm.Read(blkA, p))
	n, err := p.GetInt(0)
	require.NoError(t, err)
	require.Equal(t, 10, n, "rolled-back write to A is gone")

	require.NoError(t, fm.Read(blkB, p))
	n, err = p.GetInt(0)
	require.NoError(t, err)
	require.Equal(t, 20, n, "rolled-back write to B is gone")
}

func TestRecoverUndoesUnfinishedTransactions(t *testing.T) {
	bm, lm, fm := setupEngine(t, 3)
	blkA := kfile.NewBlockId("data.db", 0)
	blkB := kfile.NewBlockId("data.db", 1)
	seedBlock(t, bm, blkA, 10)
	seedBlock(t, bm, blkB, 20)

	// tx 7 commits its write; tx 8 vanishes mid-flight
	committed, err := NewRecoveryMgr(7, lm, bm)
	require.NoError(t, err)
	buffA, err := bm.Pin(blkA)
	require.NoError(t, err)
	_, err = committed.SetInt(buffA, 0, 11)
	require.NoError(t, err)
	require.NoError(t, bm.Unpin(buffA))
	require.NoError(t, committed.Commit())

	crashed, err := NewRecoveryMgr(8, lm, bm)
	require.NoError(t, err)
	buffB, err := bm.Pin(blkB)
	require.NoError(t, err)
	_, err = crashed.SetInt(buffB, 0, 21)
	require.NoError(t, err)
	require.NoError(t, bm.Unpin(buffB))
	require.NoError(t, bm.FlushAll(8)) // the dirty page even reached disk

	startup, err := NewRecoveryMgr(0, lm, bm)
	require.NoError(t, err)
	require.NoError(t, startup.Recover())

	p := kfile.NewPage(testBlockSize)
	require.NoError(t, fm.Read(blkA, p))
	n, err := p.GetInt(0)
	require.NoError(t, err)
	require.Equal(t, 11, n, "committed work survives recovery")

	require.NoError(t, fm.Read(blkB, p))
	n, err = p.GetInt(0)
	require.NoError(t, err)
	require.Equal(t, 20, n, "unfinished work is undone")
}

func TestMarkerRecordRoundTrips(t *testing.T) {
	_, lm, _ := setupEngine(t, 3)

	_, err := StartRecordWriteToLog(lm, 3)
	require.NoError(t, err)
	_, err = CommitRecordWriteToLog(lm, 3)
	require.NoError(t, err)
	_, err = RollbackRecordWriteToLog(lm, 4)
	require.NoError(t, err)
	_, err = CheckpointRecordWriteToLog(lm)
	require.NoError(t, err)

	iter, err := lm.Iterator()
	require.NoError(t, err)

	wantOps := []int{CHECKPOINT, ROLLBACK, COMMIT, START}
	wantTxs := []int{-1, 4, 3, 3}
	for i, wantOp := range wantOps {
		require.True(t, iter.HasNext())
		data, err := iter.Next()
		require.NoError(t, err)
		rec, err := CreateLogRecord(data)
		require.NoError(t, err)
		require.Equal(t, wantOp, rec.Op())
		require.Equal(t, wantTxs[i], rec.TxNumber())
	}
}
