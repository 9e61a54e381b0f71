package btree

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// FLRAF is a random access file composed of blocks of a fixed length.
// Blocks are the unit of I/O: every read and write seeks to a block
// boundary and transfers one block.
type FLRAF struct {
	file      *os.File
	fileName  string
	blockSize int
}

// OpenFLRAF opens the named file for reading and writing, creating it if
// it does not exist.
func OpenFLRAF(name string, blockSize int) (*FLRAF, error) {
	file, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open block file %s", name)
	}
	return &FLRAF{
		file:      file,
		fileName:  name,
		blockSize: blockSize,
	}, nil
}

// ReadBlock reads the block at the given index into buf and returns the
// number of bytes read. A read past the end of the file fills fewer than
// blockSize bytes and is not an error; callers must not rely on the
// contents of unwritten blocks.
func (f *FLRAF) ReadBlock(blockNumber int, buf []byte) (int, error) {
	n, err := f.file.ReadAt(buf, int64(blockNumber)*int64(f.blockSize))
	if err != nil && err != io.EOF {
		return n, errors.Wrapf(err, "failed to read block %d", blockNumber)
	}
	return n, nil
}

// WriteBlock writes buf to the block at the given index. Writing past the
// current end of the file extends it; the contents of any intervening
// blocks are undefined.
func (f *FLRAF) WriteBlock(blockNumber int, buf []byte) error {
	if _, err := f.file.WriteAt(buf, int64(blockNumber)*int64(f.blockSize)); err != nil {
		return errors.Wrapf(err, "failed to write block %d", blockNumber)
	}
	return nil
}

// Length returns the current size of the file in bytes.
func (f *FLRAF) Length() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to stat block file %s", f.fileName)
	}
	return info.Size(), nil
}

// BlockSize returns the number of bytes per block.
func (f *FLRAF) BlockSize() int {
	return f.blockSize
}

// Name returns the path the file was opened with.
func (f *FLRAF) Name() string {
	return f.fileName
}

// Close closes the underlying file.
func (f *FLRAF) Close() error {
	if err := f.file.Close(); err != nil {
		return errors.Wrapf(err, "failed to close block file %s", f.fileName)
	}
	return nil
}
