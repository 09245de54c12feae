// Package pointcloud defines the point store the processing passes operate on
// and the small capability interfaces they depend on.
//
// Algorithms never take a concrete container. Each asks only for the accessors
// it needs (enumerate active points, read positions, read or write normals,
// remove, insert) so any container that implements them can be processed.
package pointcloud

import "github.com/golang/geo/r3"

// PointCloud enumerates active points and reads their positions.
type PointCloud interface {
	// Active returns the indices of all non-removed points in ascending order.
	Active() []int

	// Position returns the position stored at index i.
	Position(i int) r3.Vector
}

// NormalReader reads optional per-point normals. The second return is false
// when no normal has been estimated for the point yet.
type NormalReader interface {
	Normal(i int) (r3.Vector, bool)
}

// NormalWriter overwrites the normal of a point.
type NormalWriter interface {
	SetNormal(i int, n r3.Vector)
}

// PositionWriter overwrites the position of a point in place.
type PositionWriter interface {
	SetPosition(i int, p r3.Vector)
}

// Remover marks a point removed. Removed points are no longer returned by Active.
type Remover interface {
	Remove(i int)
}

// Inserter appends a new point to an output collection and returns its index.
type Inserter interface {
	Insert(p r3.Vector) int
}

// NormalCloud is a cloud whose normals can be read and written.
type NormalCloud interface {
	PointCloud
	NormalReader
	NormalWriter
}

// EditableCloud is a NormalCloud whose positions can also be overwritten.
type EditableCloud interface {
	NormalCloud
	PositionWriter
}

// RemovableCloud is a cloud that supports logical removal.
type RemovableCloud interface {
	PointCloud
	Remover
}

// NormalInserter is an output collection that receives points with normals.
type NormalInserter interface {
	Inserter
	NormalWriter
}

// Positions gathers the positions of the given indices.
func Positions(cloud PointCloud, indices []int) []r3.Vector {
	out := make([]r3.Vector, len(indices))
	for i, idx := range indices {
		out[i] = cloud.Position(idx)
	}
	return out
}
