package cfg

import "golang.org/x/tools/container/intsets"

// UIntSet is a set of LocalIDs, used for the per-block reads/writes/dead
// sets (4.2.4) and the block-argument propagation of 4.2.5 (the alias-out
// maps of 4.2.3 are plain Go maps). Most
// instances hold well under a hundred members (one method's worth of
// locals live across one block), which is exactly the regime
// golang.org/x/tools/container/intsets.Sparse is tuned for — it is
// Sorbet's own common/UIntSet.h ported to its nearest Go ecosystem
// equivalent rather than hand-rolled, per this module's domain-stack
// policy (see DESIGN.md).
type UIntSet struct {
	s intsets.Sparse
}

// NewUIntSet returns an empty set. The capacity parameter from the
// original C++ UIntSet is unnecessary here: intsets.Sparse grows on
// demand and has no fixed upper bound to declare.
func NewUIntSet() UIntSet { return UIntSet{} }

// Clear removes all elements.
func (u *UIntSet) Clear() { u.s.Clear() }

// Add inserts item.
func (u *UIntSet) Add(item LocalID) { u.s.Insert(int(item)) }

// Remove deletes item.
func (u *UIntSet) Remove(item LocalID) { u.s.Remove(int(item)) }

// Contains reports whether item is a member.
func (u *UIntSet) Contains(item LocalID) bool { return u.s.Has(int(item)) }

// Empty reports whether the set has no members.
func (u *UIntSet) Empty() bool { return u.s.IsEmpty() }

// Len returns the number of members.
func (u *UIntSet) Len() int { return u.s.Len() }

// AddSet adds every item of other to u.
func (u *UIntSet) AddSet(other UIntSet) { u.s.UnionWith(&other.s) }

// UnionOf overwrites u with the union of a and b.
func (u *UIntSet) UnionOf(a, b UIntSet) {
	u.s.Copy(&a.s)
	u.s.UnionWith(&b.s)
}

// RemoveSet removes every item of other from u.
func (u *UIntSet) RemoveSet(other UIntSet) { u.s.DifferenceWith(&other.s) }

// Intersect mutates u to contain the intersection of u and other.
func (u *UIntSet) Intersect(other UIntSet) { u.s.IntersectionWith(&other.s) }

// Clone returns an independent copy of u.
func (u UIntSet) Clone() UIntSet {
	var out UIntSet
	out.s.Copy(&u.s)
	return out
}

// Equals reports whether u and other have the same members.
func (u UIntSet) Equals(other UIntSet) bool { return u.s.Equals(&other.s) }

// ForEach calls each for every member, in ascending order (required by
// callers, e.g. block-argument emission order, spec §4.2.5).
func (u UIntSet) ForEach(each func(LocalID)) {
	var buf [64]int
	items := u.s.AppendTo(buf[:0])
	for _, item := range items {
		each(LocalID(item))
	}
}

// Slice returns the members in ascending order.
func (u UIntSet) Slice() []LocalID {
	items := u.s.AppendTo(nil)
	out := make([]LocalID, len(items))
	for i, item := range items {
		out[i] = LocalID(item)
	}
	return out
}
