package morton

import "sort"

// ByOrder sorts a slice of keys by Compare (key order, then level).
type ByOrder []Key

func (s ByOrder) Len() int           { return len(s) }
func (s ByOrder) Less(i, j int) bool { return Less(s[i], s[j]) }
func (s ByOrder) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sort sorts keys in place by Compare.
func Sort(keys []Key) { sort.Sort(ByOrder(keys)) }

// IsSorted reports whether keys is strictly increasing in Morton order,
// with no duplicates. An ancestor followed by its descendant counts as
// sorted; linearity is not checked.
func IsSorted(keys []Key) bool {
	for i := 1; i < len(keys); i++ {
		if !Less(keys[i-1], keys[i]) {
			return false
		}
	}
	return true
}
