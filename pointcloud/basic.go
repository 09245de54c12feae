package pointcloud

import (
	"github.com/golang/geo/r3"
)

// PointSet is the basic point store: a dense sequence of positions with
// optional normals and tombstones. Indices are stable until Compact is called.
type PointSet struct {
	positions  []r3.Vector
	normals    []r3.Vector
	hasNormal  []bool
	removed    []bool
	numRemoved int
}

// New returns an empty PointSet.
func New() *PointSet {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointSet.
func NewWithPrealloc(size int) *PointSet {
	return &PointSet{
		positions: make([]r3.Vector, 0, size),
		normals:   make([]r3.Vector, 0, size),
		hasNormal: make([]bool, 0, size),
		removed:   make([]bool, 0, size),
	}
}

// NewFromPositions returns a PointSet holding the given positions without normals.
func NewFromPositions(points []r3.Vector) *PointSet {
	ps := NewWithPrealloc(len(points))
	for _, p := range points {
		ps.Insert(p)
	}
	return ps
}

// Len returns the size of the index range, removed points included.
func (ps *PointSet) Len() int {
	return len(ps.positions)
}

// Size returns the number of active points.
func (ps *PointSet) Size() int {
	return len(ps.positions) - ps.numRemoved
}

// Active returns the indices of all active points in ascending order.
func (ps *PointSet) Active() []int {
	out := make([]int, 0, ps.Size())
	for i, r := range ps.removed {
		if !r {
			out = append(out, i)
		}
	}
	return out
}

// Position returns the position of point i.
func (ps *PointSet) Position(i int) r3.Vector {
	return ps.positions[i]
}

// SetPosition overwrites the position of point i.
func (ps *PointSet) SetPosition(i int, p r3.Vector) {
	ps.positions[i] = p
}

// Normal returns the normal of point i, if any.
func (ps *PointSet) Normal(i int) (r3.Vector, bool) {
	return ps.normals[i], ps.hasNormal[i]
}

// SetNormal sets the normal of point i.
func (ps *PointSet) SetNormal(i int, n r3.Vector) {
	ps.normals[i] = n
	ps.hasNormal[i] = true
}

// ClearNormal returns point i to the not-yet-estimated state.
func (ps *PointSet) ClearNormal(i int) {
	ps.normals[i] = r3.Vector{}
	ps.hasNormal[i] = false
}

// ClearNormals clears every normal.
func (ps *PointSet) ClearNormals() {
	for i := range ps.normals {
		ps.ClearNormal(i)
	}
}

// HasNormals reports whether any active point carries a normal.
func (ps *PointSet) HasNormals() bool {
	for i, has := range ps.hasNormal {
		if has && !ps.removed[i] {
			return true
		}
	}
	return false
}

// Insert appends a point without a normal and returns its index.
func (ps *PointSet) Insert(p r3.Vector) int {
	ps.positions = append(ps.positions, p)
	ps.normals = append(ps.normals, r3.Vector{})
	ps.hasNormal = append(ps.hasNormal, false)
	ps.removed = append(ps.removed, false)
	return len(ps.positions) - 1
}

// InsertWithNormal appends a point with a normal and returns its index.
func (ps *PointSet) InsertWithNormal(p, n r3.Vector) int {
	i := ps.Insert(p)
	ps.SetNormal(i, n)
	return i
}

// Remove tombstones point i. Removing an already removed point does nothing.
func (ps *PointSet) Remove(i int) {
	if ps.removed[i] {
		return
	}
	ps.removed[i] = true
	ps.numRemoved++
}

// IsRemoved reports whether point i has been removed.
func (ps *PointSet) IsRemoved(i int) bool {
	return ps.removed[i]
}

// Compact physically drops removed points. The returned slice maps every old
// index to its new index, or -1 for dropped points. All previously obtained
// indices are invalidated.
func (ps *PointSet) Compact() []int {
	mapping := make([]int, len(ps.positions))
	next := 0
	for i := range ps.positions {
		if ps.removed[i] {
			mapping[i] = -1
			continue
		}
		mapping[i] = next
		ps.positions[next] = ps.positions[i]
		ps.normals[next] = ps.normals[i]
		ps.hasNormal[next] = ps.hasNormal[i]
		ps.removed[next] = false
		next++
	}
	ps.positions = ps.positions[:next]
	ps.normals = ps.normals[:next]
	ps.hasNormal = ps.hasNormal[:next]
	ps.removed = ps.removed[:next]
	ps.numRemoved = 0
	return mapping
}

// Clone returns a deep copy, tombstones included.
func (ps *PointSet) Clone() *PointSet {
	return &PointSet{
		positions:  append([]r3.Vector(nil), ps.positions...),
		normals:    append([]r3.Vector(nil), ps.normals...),
		hasNormal:  append([]bool(nil), ps.hasNormal...),
		removed:    append([]bool(nil), ps.removed...),
		numRemoved: ps.numRemoved,
	}
}

// MetaData summarizes the active points.
func (ps *PointSet) MetaData() MetaData {
	meta := NewMetaData()
	for _, i := range ps.Active() {
		meta.Merge(ps.positions[i], ps.hasNormal[i])
	}
	return meta
}
