package kfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileMgr performs block-granular I/O over the files of one database
// directory. Open files are cached for the lifetime of the manager.
type FileMgr struct {
	dbDirectory   string
	blocksize     int
	isNew         bool
	openFiles     map[string]*os.File
	mu            sync.Mutex
	blocksRead    int
	blocksWritten int
	readLog       []ReadWriteLogEntry
	writeLog      []ReadWriteLogEntry
}

type ReadWriteLogEntry struct {
	Timestamp   time.Time
	Blk         BlockId
	BytesAmount int
}

// NewFileMgr creates a new FileMgr instance.
// dbDirectory: Path to the database directory.
// blocksize: Size of each block.
func NewFileMgr(dbDirectory string, blocksize int) (*FileMgr, error) {
	if blocksize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blocksize)
	}

	fm := &FileMgr{
		dbDirectory: dbDirectory,
		blocksize:   blocksize,
		openFiles:   make(map[string]*os.File),
	}

	info, err := os.Stat(dbDirectory)
	if os.IsNotExist(err) {
		fm.isNew = true
		if err := os.MkdirAll(dbDirectory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dbDirectory, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to access directory %s: %w", dbDirectory, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s is not a directory", dbDirectory)
	}

	// Remove leftover temporary files
	files, err := os.ReadDir(dbDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", dbDirectory, err)
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".tmp" {
			tempPath := filepath.Join(dbDirectory, file.Name())
			if err := os.Remove(tempPath); err != nil {
				return nil, fmt.Errorf("failed to remove temporary file %s: %w", tempPath, err)
			}
		}
	}

	return fm, nil
}

// getFile retrieves the open file for filename, opening and caching it
// on first use. The caller must hold fm.mu.
func (fm *FileMgr) getFile(filename string) (*os.File, error) {
	if f, exists := fm.openFiles[filename]; exists {
		return f, nil
	}

	filePath := filepath.Join(fm.dbDirectory, filename)
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}

	fm.openFiles[filename] = f
	return f, nil
}

// Read reads the block specified by blk into the Page p. Reading past
// the current end of the file yields zero bytes, matching the contents
// a freshly appended block would have.
func (fm *FileMgr) Read(blk BlockId, p *Page) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	f, err := fm.getFile(blk.FileName())
	if err != nil {
		return fmt.Errorf("failed to get file for block %v: %w", blk, err)
	}

	offset := int64(blk.Number()) * int64(fm.blocksize)
	n, err := f.ReadAt(p.Contents(), offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read block %v: %w", blk, err)
	}
	for i := n; i < len(p.Contents()); i++ {
		p.Contents()[i] = 0
	}

	fm.blocksRead++
	fm.readLog = append(fm.readLog, ReadWriteLogEntry{
		Timestamp:   time.Now(),
		Blk:         blk,
		BytesAmount: n,
	})

	return nil
}

// Write writes the content of Page p to the block specified by blk and
// syncs it to stable storage.
func (fm *FileMgr) Write(blk BlockId, p *Page) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	f, err := fm.getFile(blk.FileName())
	if err != nil {
		return fmt.Errorf("failed to get file for block %v: %w", blk, err)
	}

	offset := int64(blk.Number()) * int64(fm.blocksize)
	bytesWritten, err := f.WriteAt(p.Contents(), offset)
	if err != nil {
		return fmt.Errorf("failed to write block %v: %w", blk, err)
	}
	if bytesWritten != fm.blocksize {
		return fmt.Errorf("incomplete write: expected %d bytes, wrote %d", fm.blocksize, bytesWritten)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync file %s: %w", blk.FileName(), err)
	}

	fm.blocksWritten++
	fm.writeLog = append(fm.writeLog, ReadWriteLogEntry{
		Timestamp:   time.Now(),
		Blk:         blk,
		BytesAmount: bytesWritten,
	})

	return nil
}

// Append appends a new zero-filled block to the specified file and
// returns its BlockId.
func (fm *FileMgr) Append(filename string) (BlockId, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	newblknum, err := fm.lengthLocked(filename)
	if err != nil {
		return BlockId{}, fmt.Errorf("failed to determine length for file %s: %w", filename, err)
	}

	blk := NewBlockId(filename, newblknum)
	emptyBlock := make([]byte, fm.blocksize)

	f, err := fm.getFile(filename)
	if err != nil {
		return BlockId{}, fmt.Errorf("failed to get file for append: %w", err)
	}

	offset := int64(newblknum) * int64(fm.blocksize)
	bytesWritten, err := f.WriteAt(emptyBlock, offset)
	if err != nil {
		return BlockId{}, fmt.Errorf("failed to write new block %v: %w", blk, err)
	}
	if bytesWritten != fm.blocksize {
		return BlockId{}, fmt.Errorf("incomplete write: expected %d bytes, wrote %d", fm.blocksize, bytesWritten)
	}

	if err := f.Sync(); err != nil {
		return BlockId{}, fmt.Errorf("failed to sync file %s: %w", filename, err)
	}

	return blk, nil
}

// Length returns the number of blocks in the specified file.
func (fm *FileMgr) Length(filename string) (int, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.lengthLocked(filename)
}

// lengthLocked is a helper method that assumes the mutex is already held.
func (fm *FileMgr) lengthLocked(filename string) (int, error) {
	f, err := fm.getFile(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to get file %s: %w", filename, err)
	}

	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file %s: %w", filename, err)
	}

	return int(stat.Size() / int64(fm.blocksize)), nil
}

// IsNew returns whether the database directory was created by this manager.
func (fm *FileMgr) IsNew() bool {
	return fm.isNew
}

// BlockSize returns the size of each block.
func (fm *FileMgr) BlockSize() int {
	return fm.blocksize
}

// Close closes all open files managed by FileMgr.
func (fm *FileMgr) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	var firstErr error
	for filename, f := range fm.openFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close file %s: %w", filename, err)
		}
		delete(fm.openFiles, filename)
	}
	return firstErr
}

// BlocksRead returns the number of blocks read so far.
func (fm *FileMgr) BlocksRead() int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.blocksRead
}

// BlocksWritten returns the number of blocks written so far.
func (fm *FileMgr) BlocksWritten() int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.blocksWritten
}

// ReadLog returns a copy of the read log entries.
func (fm *FileMgr) ReadLog() []ReadWriteLogEntry {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	entries := make([]ReadWriteLogEntry, len(fm.readLog))
	copy(entries, fm.readLog)
	return entries
}

// WriteLog returns a copy of the write log entries.
func (fm *FileMgr) WriteLog() []ReadWriteLogEntry {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	entries := make([]ReadWriteLogEntry, len(fm.writeLog))
	copy(entries, fm.writeLog)
	return entries
}
