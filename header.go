package btree

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
)

// headerMagic identifies a header sidecar file.
const headerMagic = "PBTREEHDR1"

// Header is the record persisted next to the block file. It carries
// everything needed to reopen a tree: the block file path, the node
// geometry, the root block, the node count and the free list.
type Header struct {
	FileName          string
	Order             int
	NodeSize          int
	NodeCount         int
	TreeSize          int
	RootBlockNumber   int
	UnallocatedBlocks []int
}

// HeaderPath derives the sidecar path from the block file path by
// replacing the conventional trailing "flraf" with "hdr".
func HeaderPath(fileName string) string {
	return strings.TrimSuffix(fileName, "flraf") + "hdr"
}

// WriteHeader serializes the header record and replaces the file at path.
// The record is written to a temporary file and renamed into place so a
// crash mid-write never leaves a truncated header behind.
func WriteHeader(path string, header *Header) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(header); err != nil {
		return errors.Wrap(err, "failed to encode header")
	}

	var buf bytes.Buffer
	buf.WriteString(headerMagic)
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Checksum64(payload.Bytes()))
	buf.Write(sum[:])
	buf.Write(payload.Bytes())

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "failed to write header %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to replace header %s", path)
	}
	return nil
}

// ReadHeader reads a header sidecar, verifying the magic and the payload
// checksum before decoding.
func ReadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header %s", path)
	}
	if len(data) < len(headerMagic)+8 || string(data[:len(headerMagic)]) != headerMagic {
		return nil, errors.Errorf("%s is not a b-tree header file", path)
	}
	sum := binary.BigEndian.Uint64(data[len(headerMagic) : len(headerMagic)+8])
	payload := data[len(headerMagic)+8:]
	if xxhash.Checksum64(payload) != sum {
		return nil, errors.Errorf("header checksum mismatch in %s", path)
	}

	header := &Header{}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(header); err != nil {
		return nil, errors.Wrapf(err, "failed to decode header %s", path)
	}
	return header, nil
}
