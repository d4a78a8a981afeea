package recovery

import (
	"fmt"

	"ferroDB/buffer"
	"ferroDB/kfile"
)

// Log record operators.
const (
	CHECKPOINT = iota
	START
	COMMIT
	ROLLBACK
	UPDATE
)

// LogRecord is one entry of the recovery log. Undo reverses the
// record's effect through the buffer pool; for records that describe no
// page change it is a no-op.
type LogRecord interface {
	Op() int
	TxNumber() int
	Undo(bm *buffer.BufferMgr) error
	fmt.Stringer
}

// CreateLogRecord interprets raw record bytes from the log and
// instantiates the matching concrete record.
func CreateLogRecord(data []byte) (LogRecord, error) {
	p := kfile.NewPageFromBytes(data)
	op, err := p.GetInt(0)
	if err != nil {
		return nil, fmt.Errorf("recovery: unreadable record: %w", err)
	}

	switch op {
	case CHECKPOINT:
		return &CheckpointRecord{}, nil
	case START:
		return newTxMarkerRecord(START, p)
	case COMMIT:
		return newTxMarkerRecord(COMMIT, p)
	case ROLLBACK:
		return newTxMarkerRecord(ROLLBACK, p)
	case UPDATE:
		return newUpdateRecord(p)
	default:
		return nil, fmt.Errorf("recovery: unknown log record type %d", op)
	}
}

// CheckpointRecord marks a quiescent point: no transaction that started
// before it was still active, so recovery stops scanning here.
type CheckpointRecord struct{}

func (r *CheckpointRecord) Op() int { return CHECKPOINT }

func (r *CheckpointRecord) TxNumber() int { return -1 }

func (r *CheckpointRecord) Undo(bm *buffer.BufferMgr) error { return nil }

func (r *CheckpointRecord) String() string { return "<CHECKPOINT>" }

// CheckpointRecordWriteToLog appends a checkpoint record and returns
// its LSN.
func CheckpointRecordWriteToLog(lm LogAppender) (int, error) {
	p := kfile.NewPage(kfile.IntBytes)
	if err := p.SetInt(0, CHECKPOINT); err != nil {
		return 0, err
	}
	return lm.Append(p.Contents())
}

// TxMarkerRecord covers the three single-transaction markers: START,
// COMMIT and ROLLBACK. They carry no undo work of their own.
type TxMarkerRecord struct {
	op    int
	txnum int
}

func newTxMarkerRecord(op int, p *kfile.Page) (*TxMarkerRecord, error) {
	txnum, err := p.GetInt(kfile.IntBytes)
	if err != nil {
		return nil, fmt.Errorf("recovery: marker record missing txnum: %w", err)
	}
	return &TxMarkerRecord{op: op, txnum: txnum}, nil
}

func (r *TxMarkerRecord) Op() int { return r.op }

func (r *TxMarkerRecord) TxNumber() int { return r.txnum }

func (r *TxMarkerRecord) Undo(bm *buffer.BufferMgr) error { return nil }

func (r *TxMarkerRecord) String() string {
	switch r.op {
	case START:
		return fmt.Sprintf("<START %d>", r.txnum)
	case COMMIT:
		return fmt.Sprintf("<COMMIT %d>", r.txnum)
	default:
		return fmt.Sprintf("<ROLLBACK %d>", r.txnum)
	}
}

func writeTxMarkerToLog(lm LogAppender, op, txnum int) (int, error) {
	p := kfile.NewPage(2 * kfile.IntBytes)
	if err := p.SetInt(0, op); err != nil {
		return 0, err
	}
	if err := p.SetInt(kfile.IntBytes, txnum); err != nil {
		return 0, err
	}
	return lm.Append(p.Contents())
}

// StartRecordWriteToLog appends a START record for txnum.
func StartRecordWriteToLog(lm LogAppender, txnum int) (int, error) {
	return writeTxMarkerToLog(lm, START, txnum)
}

// CommitRecordWriteToLog appends a COMMIT record for txnum.
func CommitRecordWriteToLog(lm LogAppender, txnum int) (int, error) {
	return writeTxMarkerToLog(lm, COMMIT, txnum)
}

// RollbackRecordWriteToLog appends a ROLLBACK record for txnum.
func RollbackRecordWriteToLog(lm LogAppender, txnum int) (int, error) {
	return writeTxMarkerToLog(lm, ROLLBACK, txnum)
}

// LogAppender is the slice of the log manager the record writers need.
type LogAppender interface {
	Append(rec []byte) (int, error)
}
