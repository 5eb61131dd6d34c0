// Package cluster groups point observations into density clusters and derives
// their boundaries, then sub-clusters nearby secondary entities per cluster.
package cluster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Noise is the label given to points that belong to no cluster.
const Noise = -1

// ErrNoInput is returned when there is nothing to cluster. Callers treat it
// as zero clusters rather than a failure.
var ErrNoInput = errors.New("no input points")

// Params configures DBSCAN.
//
// Eps is in coordinate units. On raw WGS84 input that means degrees, so the
// ground distance it covers shrinks with latitude.
type Params struct {
	Eps        float64
	MinSamples int
}

// Validate rejects parameters DBSCAN cannot run with.
func (p Params) Validate() error {
	if math.IsNaN(p.Eps) || math.IsInf(p.Eps, 0) || p.Eps <= 0 {
		return fmt.Errorf("eps must be a positive number, got %v", p.Eps)
	}
	if p.MinSamples < 1 {
		return fmt.Errorf("min samples must be at least 1, got %d", p.MinSamples)
	}
	return nil
}

// Labels runs DBSCAN over coords and returns one label per input point.
//
// A point is core when at least MinSamples points, itself included, lie
// within Eps of it. Clusters grow from core points through core points;
// a border point takes the label of the first cluster that reaches it.
// Labels are 0-based and numbered in the order clusters are first met while
// scanning the input; unreachable points get Noise. Non-finite coordinates
// are always noise.
func Labels(coords []orb.Point, p Params) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	labels := make([]int, len(coords))
	ids := make([]int, 0, len(coords))
	for i, c := range coords {
		labels[i] = Noise
		if finite(c) {
			ids = append(ids, i)
		}
	}
	if len(ids) == 0 {
		return labels, nil
	}

	tree := newKDTree(coords, ids)

	core := make([]bool, len(coords))
	var buf []int
	for _, i := range ids {
		buf = tree.within(buf, coords[i], p.Eps)
		core[i] = len(buf) >= p.MinSamples
	}

	next := 0
	var stack []int
	for _, seed := range ids {
		if labels[seed] != Noise || !core[seed] {
			continue
		}
		stack = append(stack[:0], seed)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if labels[i] != Noise {
				continue
			}
			labels[i] = next
			if !core[i] {
				continue
			}
			buf = tree.within(buf, coords[i], p.Eps)
			for j := len(buf) - 1; j >= 0; j-- {
				if labels[buf[j]] == Noise {
					stack = append(stack, buf[j])
				}
			}
		}
		next++
	}
	return labels, nil
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) && !math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}
