package kfile

import (
	"testing"
)

func TestFileMgr(t *testing.T) {
	blockSize := 400

	t.Run("Basic FileMgr operations", func(t *testing.T) {
		fm, err := NewFileMgr(t.TempDir(), blockSize)
		if err != nil {
			t.Fatalf("Failed to create FileMgr: %v", err)
		}
		defer fm.Close()

		filename := "test.db"
		blk, err := fm.Append(filename)
		if err != nil {
			t.Fatalf("Failed to append block: %v", err)
		}

		data := "Hello, ferroDB!"
		p := NewPage(blockSize)
		if err := p.SetString(0, data); err != nil {
			t.Fatalf("Failed to set string in page: %v", err)
		}
		if err := fm.Write(blk, p); err != nil {
			t.Fatalf("Failed to write block: %v", err)
		}

		p2 := NewPage(blockSize)
		if err := fm.Read(blk, p2); err != nil {
			t.Fatalf("Failed to read block: %v", err)
		}
		readData, err := p2.GetString(0)
		if err != nil {
			t.Fatalf("Failed to get string from page: %v", err)
		}
		if readData != data {
			t.Errorf("Data mismatch: expected %s, got %s", data, readData)
		}
	})

	t.Run("File length and multiple blocks", func(t *testing.T) {
		fm, err := NewFileMgr(t.TempDir(), 100)
		if err != nil {
			t.Fatalf("Failed to create FileMgr: %v", err)
		}
		defer fm.Close()

		filename := "multiblock.db"
		for i := 0; i < 5; i++ {
			if _, err := fm.Append(filename); err != nil {
				t.Fatalf("Failed to append block %d: %v", i, err)
			}
		}

		length, err := fm.Length(filename)
		if err != nil {
			t.Fatalf("Failed to get file length: %v", err)
		}
		if length != 5 {
			t.Errorf("Expected length 5, got %d", length)
		}
	})

	t.Run("Reading past end of file yields zeros", func(t *testing.T) {
		fm, err := NewFileMgr(t.TempDir(), blockSize)
		if err != nil {
			t.Fatalf("Failed to create FileMgr: %v", err)
		}
		defer fm.Close()

		p := NewPage(blockSize)
		if err := p.SetInt(0, 42); err != nil {
			t.Fatalf("Failed to set int: %v", err)
		}
		if err := fm.Read(NewBlockId("fresh.db", 3), p); err != nil {
			t.Fatalf("Failed to read unwritten block: %v", err)
		}
		n, err := p.GetInt(0)
		if err != nil {
			t.Fatalf("Failed to get int: %v", err)
		}
		if n != 0 {
			t.Errorf("Expected zeroed page, got %d at offset 0", n)
		}
	})

	t.Run("Read and write statistics", func(t *testing.T) {
		fm, err := NewFileMgr(t.TempDir(), blockSize)
		if err != nil {
			t.Fatalf("Failed to create FileMgr: %v", err)
		}
		defer fm.Close()

		blk, err := fm.Append("stats.db")
		if err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		p := NewPage(blockSize)
		if err := fm.Write(blk, p); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		if err := fm.Read(blk, p); err != nil {
			t.Fatalf("Failed to read: %v", err)
		}

		if fm.BlocksWritten() != 1 {
			t.Errorf("Expected 1 block written, got %d", fm.BlocksWritten())
		}
		if fm.BlocksRead() != 1 {
			t.Errorf("Expected 1 block read, got %d", fm.BlocksRead())
		}
		writeLog := fm.WriteLog()
		if len(writeLog) != 1 || writeLog[0].Blk != blk {
			t.Errorf("Unexpected write log: %+v", writeLog)
		}
	})

	t.Run("IsNew on fresh directory", func(t *testing.T) {
		dir := t.TempDir() + "/sub"
		fm, err := NewFileMgr(dir, blockSize)
		if err != nil {
			t.Fatalf("Failed to create FileMgr: %v", err)
		}
		defer fm.Close()
		if !fm.IsNew() {
			t.Errorf("Expected a fresh directory to report IsNew")
		}
	})
}

func TestBlockIdEquality(t *testing.T) {
	a := NewBlockId("f.db", 2)
	b := NewBlockId("f.db", 2)
	c := NewBlockId("f.db", 3)

	if !a.Equals(b) {
		t.Errorf("Expected %v to equal %v", a, b)
	}
	if a.Equals(c) {
		t.Errorf("Expected %v to differ from %v", a, c)
	}

	// BlockId must be usable as a map key by value
	m := map[BlockId]int{a: 1}
	if m[b] != 1 {
		t.Errorf("Expected map lookup by equal value to hit")
	}
}
