package btree

// BTree is a persistent, disk-backed B-tree holding a set of textual
// keys. The tree owns its block cache, which owns the underlying
// fixed-length record file; it is not safe for concurrent use.
//
// Every successful Add or Remove rewrites the header sidecar next to the
// block file, so a tree can be reopened from the header alone.
type BTree struct {
	cache           *Cache
	converter       *NodeConverter
	comparator      Comparator
	order           int
	minKeyCount     int
	nodeCount       int
	rootBlockNumber int
}

// New creates a fresh persistent B-tree backed by the named block file.
// Keys are ordered naturally.
func New(order, nodeSize int, fileName string, cacheSize int) (*BTree, error) {
	return NewWithComparator(order, nodeSize, fileName, cacheSize, NaturalOrder)
}

// NewWithComparator creates a fresh persistent B-tree whose keys are
// ordered by the given comparator.
func NewWithComparator(order, nodeSize int, fileName string, cacheSize int, comparator Comparator) (*BTree, error) {
	converter, err := NewNodeConverter(order, nodeSize)
	if err != nil {
		return nil, err
	}
	file, err := OpenFLRAF(fileName, nodeSize)
	if err != nil {
		return nil, err
	}
	cache, err := NewCache(cacheSize, file, nil)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &BTree{
		cache:           cache,
		converter:       converter,
		comparator:      comparator,
		order:           order,
		minKeyCount:     (order+1)/2 - 1,
		rootBlockNumber: NullLink,
	}, nil
}

// Open reopens a persistent B-tree from its header sidecar. Keys are
// ordered naturally.
func Open(headerFile string, cacheSize int) (*BTree, error) {
	return OpenWithComparator(headerFile, cacheSize, NaturalOrder)
}

// OpenWithComparator reopens a persistent B-tree from its header sidecar,
// ordering keys by the given comparator. The comparator must match the
// one the tree was built with.
func OpenWithComparator(headerFile string, cacheSize int, comparator Comparator) (*BTree, error) {
	header, err := ReadHeader(headerFile)
	if err != nil {
		return nil, err
	}
	converter, err := NewNodeConverter(header.Order, header.NodeSize)
	if err != nil {
		return nil, err
	}
	file, err := OpenFLRAF(header.FileName, header.NodeSize)
	if err != nil {
		return nil, err
	}
	cache, err := NewCache(cacheSize, file, header.UnallocatedBlocks)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &BTree{
		cache:           cache,
		converter:       converter,
		comparator:      comparator,
		order:           header.Order,
		minKeyCount:     (header.Order+1)/2 - 1,
		nodeCount:       header.NodeCount,
		rootBlockNumber: header.RootBlockNumber,
	}, nil
}

// Add inserts a value into the tree and reports whether it was newly
// inserted. Duplicates are rejected.
func (t *BTree) Add(value string) (bool, error) {
	if t.IsEmpty() {
		t.rootBlockNumber = t.cache.Allocate()
		if err := t.writeNode(t.rootBlockNumber, &node{keys: []string{value}}); err != nil {
			return false, err
		}
		t.nodeCount++
		return true, t.updateHeader()
	}

	added, err := t.topDownInsert(t.rootBlockNumber, NullLink, nil, value)
	if err != nil || !added {
		return false, err
	}
	return true, t.updateHeader()
}

// topDownInsert descends from the node at blockNumber looking for the
// leaf that should receive value, splitting any full node on the way
// down.
func (t *BTree) topDownInsert(blockNumber, parentBlockNumber int, parent *node, value string) (bool, error) {
	localRoot, err := t.getNode(blockNumber)
	if err != nil {
		return false, err
	}

	// A full node is split before it is inspected, so its parent always
	// has room for the promoted key. The descent continues from the
	// parent, whose links now route around the split.
	if len(localRoot.keys) == t.order-1 {
		localRoot, blockNumber, err = t.splitNode(blockNumber, parentBlockNumber, parent)
		if err != nil {
			return false, err
		}
	}

	index := t.keyIndex(localRoot, value)
	if index < len(localRoot.keys) && t.comparator(localRoot.keys[index], value) == 0 {
		return false, nil
	}

	if localRoot.isLeaf() {
		localRoot.keys = append(localRoot.keys[:index], append([]string{value}, localRoot.keys[index:]...)...)
		return true, t.writeNode(blockNumber, localRoot)
	}
	return t.topDownInsert(localRoot.childLinks[index], blockNumber, localRoot, value)
}

// splitNode splits a full node around its median key and promotes the
// median into the parent. The left half reuses the node's block, the
// right half gets a fresh one. Splitting the root synthesizes a new root
// above it. Returns the parent and its block number; the descent
// continues from there.
func (t *BTree) splitNode(blockNumber, parentBlockNumber int, parent *node) (*node, int, error) {
	n, err := t.getNode(blockNumber)
	if err != nil {
		return nil, NullLink, err
	}

	newRoot := parent == nil
	if newRoot {
		parent = &node{childLinks: []int{blockNumber}}
	}

	midIndex := (len(n.keys)+1)/2 - 1
	keyToPromote := n.keys[midIndex]

	index := t.keyIndex(parent, keyToPromote)
	parent.keys = append(parent.keys[:index], append([]string{keyToPromote}, parent.keys[index:]...)...)

	left := &node{keys: append([]string(nil), n.keys[:midIndex]...)}
	right := &node{keys: append([]string(nil), n.keys[midIndex+1:]...)}
	if !n.isLeaf() {
		left.childLinks = append([]int(nil), n.childLinks[:midIndex+1]...)
		right.childLinks = append([]int(nil), n.childLinks[midIndex+1:]...)
	}

	leftBlockNumber := blockNumber
	rightBlockNumber := t.cache.Allocate()
	if err := t.writeNode(leftBlockNumber, left); err != nil {
		return nil, NullLink, err
	}
	if err := t.writeNode(rightBlockNumber, right); err != nil {
		return nil, NullLink, err
	}

	parent.childLinks[index] = leftBlockNumber
	parent.childLinks = append(parent.childLinks[:index+1], append([]int{rightBlockNumber}, parent.childLinks[index+1:]...)...)

	if newRoot {
		parentBlockNumber = t.cache.Allocate()
		t.rootBlockNumber = parentBlockNumber
		t.nodeCount++
	}
	if err := t.writeNode(parentBlockNumber, parent); err != nil {
		return nil, NullLink, err
	}

	t.nodeCount++
	return parent, parentBlockNumber, nil
}

// Remove deletes a value from the tree and reports whether it was
// present.
func (t *BTree) Remove(value string) (bool, error) {
	removed, err := t.delete(t.rootBlockNumber, nil, 0, value)
	if err != nil || !removed {
		return false, err
	}
	return true, t.updateHeader()
}

// delete removes value from the subtree rooted at blockNumber. parent is
// the node the subtree hangs off and childIndex its link index there;
// both are zero values at the root. The parent is mutated in memory by
// rebalancing and written back by its own recursion frame.
func (t *BTree) delete(blockNumber int, parent *node, childIndex int, value string) (bool, error) {
	localRoot, err := t.getNode(blockNumber)
	if err != nil {
		return false, err
	}
	if localRoot == nil {
		return false, nil
	}

	index := t.keyIndex(localRoot, value)

	switch {
	case index == len(localRoot.keys) || t.comparator(localRoot.keys[index], value) != 0:
		// Not in this node; a leaf ends the search.
		if localRoot.isLeaf() {
			return false, nil
		}
		removed, err := t.delete(localRoot.childLinks[index], localRoot, index, value)
		if err != nil || !removed {
			return false, err
		}
	case !localRoot.isLeaf():
		// Replace the key with its in-order predecessor and delete the
		// predecessor from the subtree it came from.
		predecessor, err := t.predecessorKey(localRoot, index)
		if err != nil {
			return false, err
		}
		localRoot.keys[index] = predecessor
		if _, err := t.delete(localRoot.childLinks[index], localRoot, index, predecessor); err != nil {
			return false, err
		}
	default:
		localRoot.keys = append(localRoot.keys[:index], localRoot.keys[index+1:]...)
	}

	if len(localRoot.keys) < t.minKeyCount {
		if err := t.redistributeKeys(localRoot, parent, childIndex); err != nil {
			return false, err
		}
	}

	if parent == nil && len(localRoot.keys) == 0 {
		// The root emptied out: a leaf leaves the tree empty, an internal
		// root hands the tree to its only remaining child.
		if localRoot.isLeaf() {
			t.rootBlockNumber = NullLink
		} else {
			t.rootBlockNumber = localRoot.childLinks[0]
		}
		t.cache.Deallocate(blockNumber)
		t.nodeCount--
		return true, nil
	}
	return true, t.writeNode(blockNumber, localRoot)
}

// predecessorKey returns the largest key in the subtree hanging off the
// node's link at index: the last key of the rightmost leaf.
func (t *BTree) predecessorKey(n *node, index int) (string, error) {
	current, err := t.getNode(n.childLinks[index])
	if err != nil {
		return "", err
	}
	for !current.isLeaf() {
		current, err = t.getNode(current.childLinks[len(current.childLinks)-1])
		if err != nil {
			return "", err
		}
	}
	return current.keys[len(current.keys)-1], nil
}

// redistributeKeys restores the minimum key count of an underfull node by
// stealing a key through the parent from a richer sibling, or failing
// that by merging with one. Merging deallocates the absorbed sibling's
// block. Sibling writes happen here; the underfull node and the parent
// are written back by their own recursion frames.
func (t *BTree) redistributeKeys(localRoot, parent *node, childIndex int) error {
	if parent == nil {
		return nil
	}

	var leftSibling, rightSibling *node
	var err error
	leftSiblingBlockNumber, rightSiblingBlockNumber := NullLink, NullLink
	if childIndex > 0 {
		leftSiblingBlockNumber = parent.childLinks[childIndex-1]
		if leftSibling, err = t.getNode(leftSiblingBlockNumber); err != nil {
			return err
		}
	}
	if childIndex < len(parent.keys) {
		rightSiblingBlockNumber = parent.childLinks[childIndex+1]
		if rightSibling, err = t.getNode(rightSiblingBlockNumber); err != nil {
			return err
		}
	}

	switch {
	case leftSibling != nil && len(leftSibling.keys) > t.minKeyCount:
		// Rotate through the parent: the separating parent key moves
		// down, the left sibling's last key moves up.
		localRoot.keys = append([]string{parent.keys[childIndex-1]}, localRoot.keys...)
		parent.keys[childIndex-1] = leftSibling.keys[len(leftSibling.keys)-1]
		leftSibling.keys = leftSibling.keys[:len(leftSibling.keys)-1]
		if !localRoot.isLeaf() {
			last := len(leftSibling.childLinks) - 1
			localRoot.childLinks = append([]int{leftSibling.childLinks[last]}, localRoot.childLinks...)
			leftSibling.childLinks = leftSibling.childLinks[:last]
		}
		return t.writeNode(leftSiblingBlockNumber, leftSibling)

	case rightSibling != nil && len(rightSibling.keys) > t.minKeyCount:
		localRoot.keys = append(localRoot.keys, parent.keys[childIndex])
		parent.keys[childIndex] = rightSibling.keys[0]
		rightSibling.keys = rightSibling.keys[1:]
		if !localRoot.isLeaf() {
			localRoot.childLinks = append(localRoot.childLinks, rightSibling.childLinks[0])
			rightSibling.childLinks = rightSibling.childLinks[1:]
		}
		return t.writeNode(rightSiblingBlockNumber, rightSibling)

	case leftSibling != nil:
		// Merge with the left sibling: its contents and the separating
		// parent key are absorbed on the left edge.
		localRoot.keys = append([]string{parent.keys[childIndex-1]}, localRoot.keys...)
		localRoot.keys = append(append([]string{}, leftSibling.keys...), localRoot.keys...)
		localRoot.childLinks = append(append([]int{}, leftSibling.childLinks...), localRoot.childLinks...)
		parent.keys = append(parent.keys[:childIndex-1], parent.keys[childIndex:]...)
		parent.childLinks = append(parent.childLinks[:childIndex-1], parent.childLinks[childIndex:]...)
		t.cache.Deallocate(leftSiblingBlockNumber)
		t.nodeCount--

	default:
		localRoot.keys = append(localRoot.keys, parent.keys[childIndex])
		localRoot.keys = append(localRoot.keys, rightSibling.keys...)
		localRoot.childLinks = append(localRoot.childLinks, rightSibling.childLinks...)
		parent.keys = append(parent.keys[:childIndex], parent.keys[childIndex+1:]...)
		parent.childLinks = append(parent.childLinks[:childIndex+1], parent.childLinks[childIndex+2:]...)
		t.cache.Deallocate(rightSiblingBlockNumber)
		t.nodeCount--
	}
	return nil
}

// Contains reports whether the value is present in the tree.
func (t *BTree) Contains(value string) (bool, error) {
	localRoot, err := t.getNode(t.rootBlockNumber)
	if err != nil || localRoot == nil {
		return false, err
	}
	for {
		index := t.keyIndex(localRoot, value)
		if index < len(localRoot.keys) && t.comparator(localRoot.keys[index], value) == 0 {
			return true, nil
		}
		if localRoot.isLeaf() {
			return false, nil
		}
		localRoot, err = t.getNode(localRoot.childLinks[index])
		if err != nil {
			return false, err
		}
	}
}

// IsEmpty reports whether the tree holds no keys.
func (t *BTree) IsEmpty() bool {
	return t.rootBlockNumber == NullLink
}

// Size returns the size of the tree in bytes.
func (t *BTree) Size() int {
	return t.nodeCount * t.converter.NodeSize()
}

// Close flushes the cache, closes the block file and rewrites the header.
func (t *BTree) Close() error {
	if err := t.cache.Close(); err != nil {
		return err
	}
	return t.updateHeader()
}

// keyIndex returns the index at which value would sit in the node's key
// list: the index of the first key not less than value.
func (t *BTree) keyIndex(n *node, value string) int {
	index := 0
	for index < len(n.keys) && t.comparator(value, n.keys[index]) > 0 {
		index++
	}
	return index
}

// getNode reads and decodes the node at the given block, or nil for
// NullLink.
func (t *BTree) getNode(blockNumber int) (*node, error) {
	if blockNumber == NullLink {
		return nil, nil
	}
	block, err := t.cache.Read(blockNumber)
	if err != nil {
		return nil, err
	}
	return t.converter.Decode(block)
}

// writeNode encodes the node and writes it to the cache at the given
// block.
func (t *BTree) writeNode(blockNumber int, n *node) error {
	block, err := t.converter.Encode(n)
	if err != nil {
		return err
	}
	return t.cache.Write(blockNumber, block)
}

func (t *BTree) updateHeader() error {
	header := &Header{
		FileName:          t.cache.File().Name(),
		Order:             t.order,
		NodeSize:          t.converter.NodeSize(),
		NodeCount:         t.nodeCount,
		TreeSize:          t.Size(),
		RootBlockNumber:   t.rootBlockNumber,
		UnallocatedBlocks: t.cache.FreeList(),
	}
	return WriteHeader(HeaderPath(t.cache.File().Name()), header)
}
