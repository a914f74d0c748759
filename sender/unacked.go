package sender

import (
	"sort"

	"github.com/zsiec/vstream/protocol"
)

// unackedMap is an ordered map from FragmentKey to FrameDatagram: keys
// sort lexicographically on (FrameID, FragID). Fragments are always
// inserted in non-decreasing key order — the sender's frame id is
// monotonic and fragments within a frame are sent in frag-id order — so
// insertion is an append in the common case and the sorted-slice
// representation stays cheap.
type unackedMap struct {
	keys []protocol.FragmentKey
	vals map[protocol.FragmentKey]*protocol.FrameDatagram
}

func newUnackedMap() *unackedMap {
	return &unackedMap{vals: make(map[protocol.FragmentKey]*protocol.FrameDatagram)}
}

func (u *unackedMap) Len() int {
	return len(u.keys)
}

func (u *unackedMap) Empty() bool {
	return len(u.keys) == 0
}

// Insert adds d, keyed by d.Key(). It is a no-op if the key already exists.
func (u *unackedMap) Insert(d *protocol.FrameDatagram) {
	k := d.Key()
	if _, ok := u.vals[k]; ok {
		return
	}
	i := sort.Search(len(u.keys), func(i int) bool { return !u.keys[i].Less(k) })
	u.keys = append(u.keys, protocol.FragmentKey{})
	copy(u.keys[i+1:], u.keys[i:])
	u.keys[i] = k
	u.vals[k] = d
}

// Get returns the entry for key, if present.
func (u *unackedMap) Get(key protocol.FragmentKey) (*protocol.FrameDatagram, bool) {
	d, ok := u.vals[key]
	return d, ok
}

// Erase removes key from the map. It is a no-op if the key is absent.
func (u *unackedMap) Erase(key protocol.FragmentKey) {
	if _, ok := u.vals[key]; !ok {
		return
	}
	delete(u.vals, key)
	i := sort.Search(len(u.keys), func(i int) bool { return !u.keys[i].Less(key) })
	if i < len(u.keys) && u.keys[i] == key {
		u.keys = append(u.keys[:i], u.keys[i+1:]...)
	}
}

// First returns the entry with the smallest key (the session's oldest
// live unacked fragment), if any.
func (u *unackedMap) First() (*protocol.FrameDatagram, bool) {
	if len(u.keys) == 0 {
		return nil, false
	}
	return u.vals[u.keys[0]], true
}

// ReverseFrom walks the map in descending key order starting at the entry
// immediately *before* key (which must itself be present) down to the
// oldest entry, invoking fn for each. key's own entry is not visited —
// this mirrors C++ reverse_iterator(it), which dereferences to *(it-1).
// Walking stops early if fn returns false.
func (u *unackedMap) ReverseFrom(key protocol.FragmentKey, fn func(d *protocol.FrameDatagram) bool) {
	i := sort.Search(len(u.keys), func(i int) bool { return !u.keys[i].Less(key) })
	if i >= len(u.keys) || u.keys[i] != key {
		return
	}
	for i--; i >= 0; i-- {
		if !fn(u.vals[u.keys[i]]) {
			return
		}
	}
}
