package normals

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// OrientParams configures Orient.
type OrientParams struct {
	// K is the number of nearest neighbors each point is connected to.
	K int `json:"k"`
	// Seed is the store index orientation starts from. When nil, the point with
	// the largest z is used (lowest index on ties) and its normal is flipped to
	// point towards +z.
	Seed *int `json:"seed_index,omitempty"`
}

// OrientReport describes the outcome of Orient.
type OrientReport struct {
	// Seed is the store index propagation started from, -1 when nothing was oriented.
	Seed int
	// Oriented is the number of points whose sign was resolved.
	Oriented int
	// Flipped is the number of normals that were negated.
	Flipped int
	// Unreached lists, in ascending order, the active points that were not
	// oriented: points outside the seed's connected component and points
	// without a normal.
	Unreached []int
	// TreeEdges are the edges of the minimum spanning tree, as store indices.
	TreeEdges [][2]int
}

type orientEdge struct {
	a, b   int32
	weight float64
}

// Orient makes the normals of the cloud consistent by propagating the sign of
// the seed normal along a minimum spanning tree of the symmetrized k-nearest
// neighbor graph, weighted by 1 - |n_a·n_b|. Only the connected component of
// the seed is oriented; the report lists the rest.
func Orient(
	cloud pointcloud.NormalCloud,
	params OrientParams,
	mode utils.ConcurrencyMode,
	logger logging.Logger,
) (OrientReport, error) {
	if err := utils.CheckPositiveInt("k", params.K); err != nil {
		return OrientReport{Seed: -1}, err
	}

	active := cloud.Active()
	nodes := lo.Filter(active, func(i, _ int) bool {
		_, ok := cloud.Normal(i)
		return ok
	})
	if params.Seed != nil {
		seed := *params.Seed
		if _, found := nodePosition(nodes, seed); !found {
			return OrientReport{Seed: -1}, utils.NewInvalidParameterError("seed", seed, "an active point with a normal")
		}
	}
	if len(active) == 0 {
		return OrientReport{Seed: -1}, nil
	}
	if len(nodes) == 0 {
		return OrientReport{Seed: -1}, utils.ErrMissingNormals
	}

	normals := make([]r3.Vector, len(nodes))
	for j, i := range nodes {
		normals[j], _ = cloud.Normal(i)
	}

	edges, err := orientationGraph(pointcloud.Positions(cloud, nodes), normals, params.K, mode)
	if err != nil {
		return OrientReport{Seed: -1}, err
	}
	tree := minimumSpanningTree(len(nodes), edges)
	logger.Debugw("built orientation graph", "nodes", len(nodes), "edges", len(edges), "tree_edges", len(tree))

	seed := seedNode(cloud, nodes, params.Seed)
	flipped := make([]bool, len(nodes))
	if params.Seed == nil && normals[seed].Z < 0 {
		normals[seed] = normals[seed].Mul(-1)
		flipped[seed] = true
	}
	visited := propagate(len(nodes), tree, seed, normals, flipped)

	report := OrientReport{Seed: nodes[seed]}
	for j, i := range nodes {
		if flipped[j] {
			cloud.SetNormal(i, normals[j])
			report.Flipped++
		}
		if visited[j] {
			report.Oriented++
		}
	}
	report.Unreached = lo.Filter(active, func(i, _ int) bool {
		j, found := nodePosition(nodes, i)
		return !found || !visited[j]
	})
	report.TreeEdges = lo.Map(tree, func(e orientEdge, _ int) [2]int {
		return [2]int{nodes[e.a], nodes[e.b]}
	})

	if len(report.Unreached) > 0 {
		logger.Warnw("some normals could not be oriented", "unreached", len(report.Unreached), "oriented", report.Oriented)
	}
	return report, nil
}

// orientationGraph returns the symmetrized k-nearest neighbor graph over the
// given points, without duplicate edges, sorted by ascending weight with ties
// broken by the lower then the higher endpoint.
func orientationGraph(points, normals []r3.Vector, k int, mode utils.ConcurrencyMode) ([]orientEdge, error) {
	idx := neighbors.NewFromPositions(points)
	perNode := make([][]orientEdge, len(points))
	if err := utils.ParallelFor(mode, len(points), func(a int) {
		ns := idx.KNearestOf(a, k)
		out := make([]orientEdge, len(ns))
		for m, n := range ns {
			u, v := int32(a), int32(n.Index)
			if u > v {
				u, v = v, u
			}
			out[m] = orientEdge{a: u, b: v, weight: 1 - math.Abs(normals[a].Dot(normals[n.Index]))}
		}
		perNode[a] = out
	}); err != nil {
		return nil, err
	}

	var edges []orientEdge
	for _, es := range perNode {
		edges = append(edges, es...)
	}
	sort.Slice(edges, func(i, j int) bool {
		ei, ej := edges[i], edges[j]
		if ei.weight != ej.weight {
			return ei.weight < ej.weight
		}
		if ei.a != ej.a {
			return ei.a < ej.a
		}
		return ei.b < ej.b
	})
	return dedupeSorted(edges), nil
}

// dedupeSorted drops repeated edges; a pair found from both endpoints has the
// same weight so the copies are adjacent after sorting.
func dedupeSorted(edges []orientEdge) []orientEdge {
	out := edges[:0]
	for i, e := range edges {
		if i > 0 && e.a == edges[i-1].a && e.b == edges[i-1].b {
			continue
		}
		out = append(out, e)
	}
	return out
}

// minimumSpanningTree runs Kruskal's algorithm over edges sorted by weight and
// returns the spanning forest.
func minimumSpanningTree(numNodes int, edges []orientEdge) []orientEdge {
	parent := make([]int32, numNodes)
	rank := make([]uint8, numNodes)
	for i := range parent {
		parent[i] = int32(i)
	}
	find := func(x int32) int32 {
		root := x
		for parent[root] != root {
			root = parent[root]
		}
		for parent[x] != root {
			parent[x], x = root, parent[x]
		}
		return root
	}

	tree := make([]orientEdge, 0, numNodes)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		if ra == rb {
			continue
		}
		switch {
		case rank[ra] < rank[rb]:
			parent[ra] = rb
		case rank[ra] > rank[rb]:
			parent[rb] = ra
		default:
			parent[rb] = ra
			rank[ra]++
		}
		tree = append(tree, e)
		if len(tree) == numNodes-1 {
			break
		}
	}
	return tree
}

// nodePosition finds store index i in the sorted nodes.
func nodePosition(nodes []int, i int) (int, bool) {
	j := sort.SearchInts(nodes, i)
	return j, j < len(nodes) && nodes[j] == i
}

// seedNode returns the position in nodes of the seed point.
func seedNode(cloud pointcloud.PointCloud, nodes []int, seed *int) int {
	if seed != nil {
		j, _ := nodePosition(nodes, *seed)
		return j
	}
	best := 0
	for j := 1; j < len(nodes); j++ {
		if cloud.Position(nodes[j]).Z > cloud.Position(nodes[best]).Z {
			best = j
		}
	}
	return best
}

type orientState uint8

const (
	unvisited orientState = iota
	inFrontier
	oriented
)

// propagate walks the tree breadth first from seed, negating every normal that
// disagrees with its already oriented parent. It returns which nodes were reached.
func propagate(numNodes int, tree []orientEdge, seed int, normals []r3.Vector, flipped []bool) []bool {
	adjacency := make([][]int32, numNodes)
	for _, e := range tree {
		adjacency[e.a] = append(adjacency[e.a], e.b)
		adjacency[e.b] = append(adjacency[e.b], e.a)
	}

	state := make([]orientState, numNodes)
	state[seed] = inFrontier
	queue := []int32{int32(seed)}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		state[cur] = oriented
		for _, next := range adjacency[cur] {
			if state[next] != unvisited {
				continue
			}
			if normals[cur].Dot(normals[next]) < 0 {
				normals[next] = normals[next].Mul(-1)
				flipped[next] = !flipped[next]
			}
			state[next] = inFrontier
			queue = append(queue, next)
		}
	}
	return lo.Map(state, func(s orientState, _ int) bool { return s == oriented })
}
