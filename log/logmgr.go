package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ferroDB/kfile"
	"ferroDB/utils"
)

// LogMgr appends log records to the tail of the log file and hands out
// monotonically increasing log sequence numbers. Records are placed
// right to left within the current log page; the first word of the page
// holds the boundary, the offset of the most recently added record.
// Appending is purely in-memory until the page spills or a caller asks
// for durability via Flush.
type LogMgr struct {
	fm           *kfile.FileMgr
	logFile      string
	logPage      *kfile.Page
	currentBlk   kfile.BlockId
	latestLSN    int
	lastSavedLSN int
	mu           sync.Mutex
	logger       *zap.Logger
}

func NewLogMgr(fm *kfile.FileMgr, logFile string, logger *zap.Logger) (*LogMgr, error) {
	if fm == nil {
		return nil, fmt.Errorf("log: file manager cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LogMgr{
		fm:      fm,
		logFile: logFile,
		logPage: kfile.NewPage(fm.BlockSize()),
		logger:  logger,
	}

	logsize, err := fm.Length(logFile)
	if err != nil {
		return nil, fmt.Errorf("log: failed to get length of %s: %w", logFile, err)
	}

	if logsize == 0 {
		blk, err := lm.appendNewBlock()
		if err != nil {
			return nil, fmt.Errorf("log: failed to append initial block: %w", err)
		}
		lm.currentBlk = blk
	} else {
		lm.currentBlk = kfile.NewBlockId(logFile, logsize-1)
		if err := fm.Read(lm.currentBlk, lm.logPage); err != nil {
			return nil, fmt.Errorf("log: failed to read last block: %w", err)
		}
	}

	logger.Info("log manager initialized",
		zap.String("file", logFile),
		zap.Int("blocks", logsize))
	return lm, nil
}

// Append adds a record to the log page and returns the record's LSN.
// The record is not guaranteed to be on disk until Flush is called with
// an LSN at least as large.
func (lm *LogMgr) Append(rec []byte) (int, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if len(rec) == 0 {
		return 0, fmt.Errorf("log: empty log record")
	}

	boundary, err := lm.logPage.GetInt(0)
	if err != nil {
		return 0, fmt.Errorf("log: failed to read boundary: %w", err)
	}

	bytesNeeded := kfile.MaxLength(len(rec))
	if boundary-bytesNeeded < kfile.IntBytes {
		// The record does not fit; spill to a fresh block.
		if err := lm.flush(); err != nil {
			return 0, fmt.Errorf("log: failed to flush full page: %w", err)
		}
		blk, err := lm.appendNewBlock()
		if err != nil {
			return 0, fmt.Errorf("log: failed to append new block: %w", err)
		}
		lm.currentBlk = blk
		if boundary, err = lm.logPage.GetInt(0); err != nil {
			return 0, fmt.Errorf("log: failed to read boundary: %w", err)
		}
		lm.logger.Debug("log page spilled", zap.Stringer("block", lm.currentBlk))
	}

	recpos := boundary - bytesNeeded
	if err := lm.logPage.SetBytes(recpos, rec); err != nil {
		return 0, fmt.Errorf("log: failed to place record: %w", err)
	}
	if err := lm.logPage.SetInt(0, recpos); err != nil {
		return 0, fmt.Errorf("log: failed to update boundary: %w", err)
	}

	lm.latestLSN++
	return lm.latestLSN, nil
}

// Flush durably persists all records with LSNs up to and including lsn.
// A negative lsn is a no-op: it signals that the caller holds no log
// record that needs to reach disk.
func (lm *LogMgr) Flush(lsn int) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lsn >= lm.lastSavedLSN {
		return lm.flush()
	}
	return nil
}

// Iterator returns an iterator over the log records, newest first. The
// log is flushed before iteration so the iterator sees every record.
func (lm *LogMgr) Iterator() (utils.Iterator[[]byte], error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.flush(); err != nil {
		return nil, fmt.Errorf("log: failed to flush before iterating: %w", err)
	}
	return newLogIterator(lm.fm, lm.currentBlk)
}

// LatestLSN returns the LSN of the most recently appended record.
func (lm *LogMgr) LatestLSN() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.latestLSN
}

// appendNewBlock extends the log file by one block and resets the log
// page with an empty boundary. The caller must hold lm.mu.
func (lm *LogMgr) appendNewBlock() (kfile.BlockId, error) {
	blk, err := lm.fm.Append(lm.logFile)
	if err != nil {
		return kfile.BlockId{}, err
	}
	lm.logPage = kfile.NewPage(lm.fm.BlockSize())
	if err := lm.logPage.SetInt(0, lm.fm.BlockSize()); err != nil {
		return kfile.BlockId{}, err
	}
	if err := lm.fm.Write(blk, lm.logPage); err != nil {
		return kfile.BlockId{}, err
	}
	return blk, nil
}

// flush writes the log page to its disk block. The caller must hold lm.mu.
func (lm *LogMgr) flush() error {
	if err := lm.fm.Write(lm.currentBlk, lm.logPage); err != nil {
		return err
	}
	lm.lastSavedLSN = lm.latestLSN
	return nil
}
