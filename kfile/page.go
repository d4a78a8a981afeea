package kfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// IntBytes is the encoded size of an integer on a page.
const IntBytes = 4

var ErrOutOfBounds = errors.New("offset out of bounds")

// Page holds the in-memory image of one disk block. Values are stored
// big-endian; strings are length-prefixed byte runs. A page performs no
// type bookkeeping: reading an offset that was written with a different
// type returns whatever bytes happen to be there.
type Page struct {
	data []byte
}

func NewPage(blockSize int) *Page {
	return &Page{
		data: make([]byte, blockSize),
	}
}

// NewPageFromBytes wraps an existing byte slice without copying it.
func NewPageFromBytes(b []byte) *Page {
	return &Page{
		data: b,
	}
}

func (p *Page) GetInt(offset int) (int, error) {
	if offset < 0 || offset+IntBytes > len(p.data) {
		return 0, fmt.Errorf("%w: getting int at %d", ErrOutOfBounds, offset)
	}
	return int(int32(binary.BigEndian.Uint32(p.data[offset:]))), nil
}

func (p *Page) SetInt(offset int, val int) error {
	if offset < 0 || offset+IntBytes > len(p.data) {
		return fmt.Errorf("%w: setting int at %d", ErrOutOfBounds, offset)
	}
	binary.BigEndian.PutUint32(p.data[offset:], uint32(val))
	return nil
}

func (p *Page) GetBytes(offset int) ([]byte, error) {
	length, err := p.GetInt(offset)
	if err != nil {
		return nil, fmt.Errorf("%w: getting bytes at %d", ErrOutOfBounds, offset)
	}
	start := offset + IntBytes
	if length < 0 || start+length > len(p.data) {
		return nil, fmt.Errorf("%w: getting %d bytes at %d", ErrOutOfBounds, length, offset)
	}
	dataCopy := make([]byte, length)
	copy(dataCopy, p.data[start:start+length])
	return dataCopy, nil
}

func (p *Page) SetBytes(offset int, val []byte) error {
	if offset < 0 || offset+IntBytes+len(val) > len(p.data) {
		return fmt.Errorf("%w: setting %d bytes at %d", ErrOutOfBounds, len(val), offset)
	}
	binary.BigEndian.PutUint32(p.data[offset:], uint32(len(val)))
	copy(p.data[offset+IntBytes:], val)
	return nil
}

func (p *Page) GetString(offset int) (string, error) {
	b, err := p.GetBytes(offset)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Page) SetString(offset int, val string) error {
	return p.SetBytes(offset, []byte(val))
}

// MaxLength returns the number of page bytes a string of the given
// length occupies, including its length prefix.
func MaxLength(strlen int) int {
	return IntBytes + strlen
}

// Contents exposes the backing byte slice.
func (p *Page) Contents() []byte {
	return p.data
}
