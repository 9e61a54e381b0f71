package btree

import "strings"

// Comparator orders two keys: negative if a sorts before b, zero if they
// are equal, positive if a sorts after b.
type Comparator func(a, b string) int

// NaturalOrder compares keys lexicographically by code point.
func NaturalOrder(a, b string) int {
	return strings.Compare(a, b)
}
