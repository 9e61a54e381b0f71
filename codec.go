package btree

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

const (
	// linkSize is the number of bytes used to encode one child link.
	linkSize = 4

	// bytesPerChar is the width of one key character. Keys are treated as
	// bytes of fixed slot width; this derivation is a diagnostic check,
	// not a substitute for byte-level padding.
	bytesPerChar = 1
)

// NodeConverter converts B-tree nodes to and from fixed-size byte blocks.
//
// A block holds order-1 key slots of keySize bytes each, space-padded on
// the right, followed by order link slots each holding a 4-byte
// big-endian signed integer. Unused key slots are all spaces; unused link
// slots hold -1.
type NodeConverter struct {
	order     int
	nodeSize  int
	keySize   int
	keyLength int
}

// NewNodeConverter derives the key slot geometry from the order and node
// size. The bytes per key slot and the characters per key slot must both
// come out whole.
func NewNodeConverter(order, nodeSize int) (*NodeConverter, error) {
	keyArea := nodeSize - order*linkSize
	if keyArea <= 0 || keyArea%(order-1) != 0 {
		return nil, errors.Errorf("node size %d does not yield a whole key size for order %d", nodeSize, order)
	}
	keySize := keyArea / (order - 1)
	if keySize%bytesPerChar != 0 {
		return nil, errors.Errorf("key size %d does not yield a whole key length", keySize)
	}
	return &NodeConverter{
		order:     order,
		nodeSize:  nodeSize,
		keySize:   keySize,
		keyLength: keySize / bytesPerChar,
	}, nil
}

// NodeSize returns the number of bytes per encoded node.
func (c *NodeConverter) NodeSize() int {
	return c.nodeSize
}

// KeySize returns the number of bytes per key slot.
func (c *NodeConverter) KeySize() int {
	return c.keySize
}

// Decode reads a node out of one block. The key sequence ends at the
// first slot that trims to an empty string; the link sequence ends at the
// first slot holding -1.
func (c *NodeConverter) Decode(block []byte) (*node, error) {
	if len(block) != c.nodeSize {
		return nil, errors.Errorf("cannot decode a node from %d bytes, want %d", len(block), c.nodeSize)
	}

	n := &node{}
	byteIndex := 0
	for i := 0; i < c.order-1; i++ {
		key := strings.TrimRight(string(block[byteIndex:byteIndex+c.keySize]), " ")
		if len(key) == 0 {
			break
		}
		n.keys = append(n.keys, key)
		byteIndex += c.keySize
	}

	byteIndex = (c.order - 1) * c.keySize
	for i := 0; i < c.order; i++ {
		link := int(int32(binary.BigEndian.Uint32(block[byteIndex : byteIndex+linkSize])))
		if link == NullLink {
			break
		}
		n.childLinks = append(n.childLinks, link)
		byteIndex += linkSize
	}

	if len(n.childLinks) != 0 && len(n.childLinks) != len(n.keys)+1 {
		return nil, errors.Errorf("corrupt node: %d keys with %d child links", len(n.keys), len(n.childLinks))
	}
	return n, nil
}

// Encode writes a node into a fresh block. Fails if a key exceeds its
// slot or the node holds more keys or links than the block has room for.
func (c *NodeConverter) Encode(n *node) ([]byte, error) {
	if len(n.keys) > c.order-1 || len(n.childLinks) > c.order {
		return nil, errors.Errorf("node with %d keys and %d child links exceeds %d bytes", len(n.keys), len(n.childLinks), c.nodeSize)
	}

	block := make([]byte, c.nodeSize)
	keyArea := block[:(c.order-1)*c.keySize]
	for i := range keyArea {
		keyArea[i] = ' '
	}

	byteIndex := 0
	for _, key := range n.keys {
		if len(key) > c.keySize {
			return nil, errors.Errorf("key %q exceeds the %d byte key slot", key, c.keySize)
		}
		copy(block[byteIndex:], key)
		byteIndex += c.keySize
	}

	byteIndex = (c.order - 1) * c.keySize
	for i := 0; i < c.order; i++ {
		link := NullLink
		if i < len(n.childLinks) {
			link = n.childLinks[i]
		}
		binary.BigEndian.PutUint32(block[byteIndex:], uint32(int32(link)))
		byteIndex += linkSize
	}
	return block, nil
}
