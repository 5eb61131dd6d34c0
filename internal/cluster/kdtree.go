package cluster

import (
	"slices"

	"github.com/paulmach/orb"
)

// defaultLeafSize bounds the number of points scanned linearly at a leaf.
const defaultLeafSize = 16

type kdNode struct {
	start, end  int // range into kdTree.order
	left, right int32
	bound       orb.Bound
}

// kdTree is a static 2-d tree over a fixed point set, built by median split
// on alternating axes. It answers fixed-radius neighbour queries.
type kdTree struct {
	points   []orb.Point
	order    []int
	nodes    []kdNode
	leafSize int
}

// newKDTree indexes the points whose positions are listed in ids.
func newKDTree(points []orb.Point, ids []int) *kdTree {
	t := &kdTree{
		points:   points,
		order:    slices.Clone(ids),
		nodes:    make([]kdNode, 0, 2*len(ids)/defaultLeafSize+1),
		leafSize: defaultLeafSize,
	}
	if len(t.order) > 0 {
		t.buildNodes(0, len(t.order), 0)
	}
	return t
}

func (t *kdTree) buildNodes(start, end, depth int) int32 {
	if start >= end {
		return -1
	}

	nodeIdx := int32(len(t.nodes))
	t.nodes = append(t.nodes, kdNode{start: start, end: end, left: -1, right: -1})

	b := orb.Bound{Min: t.points[t.order[start]], Max: t.points[t.order[start]]}
	for _, id := range t.order[start+1 : end] {
		b = b.Extend(t.points[id])
	}
	t.nodes[nodeIdx].bound = b

	if end-start <= t.leafSize {
		return nodeIdx
	}

	axis := depth % 2
	sortRange(t.order[start:end], t.points, axis)
	median := (start + end) / 2

	left := t.buildNodes(start, median, depth+1)
	right := t.buildNodes(median, end, depth+1)
	t.nodes[nodeIdx].left = left
	t.nodes[nodeIdx].right = right
	return nodeIdx
}

func sortRange(ids []int, points []orb.Point, axis int) {
	slices.SortFunc(ids, func(a, b int) int {
		pa, pb := points[a][axis], points[b][axis]
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		default:
			return a - b
		}
	})
}

// within appends to dst the ids of all indexed points at distance <= eps from
// q, in ascending id order.
func (t *kdTree) within(dst []int, q orb.Point, eps float64) []int {
	dst = dst[:0]
	if len(t.nodes) == 0 {
		return dst
	}
	eps2 := eps * eps
	stack := []int32{0}
	for len(stack) > 0 {
		n := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if boundDist2(n.bound, q) > eps2 {
			continue
		}
		if n.left < 0 && n.right < 0 {
			for _, id := range t.order[n.start:n.end] {
				if dist2(t.points[id], q) <= eps2 {
					dst = append(dst, id)
				}
			}
			continue
		}
		if n.left >= 0 {
			stack = append(stack, n.left)
		}
		if n.right >= 0 {
			stack = append(stack, n.right)
		}
	}
	slices.Sort(dst)
	return dst
}

func dist2(a, b orb.Point) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

func boundDist2(b orb.Bound, q orb.Point) float64 {
	dx := max(b.Min[0]-q[0], 0, q[0]-b.Max[0])
	dy := max(b.Min[1]-q[1], 0, q[1]-b.Max[1])
	return dx*dx + dy*dy
}
