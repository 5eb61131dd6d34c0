package cluster

import (
	"github.com/paulmach/orb"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/geometry"
)

// ClusterPoints groups observations with DBSCAN and summarizes each cluster:
// boundary hull, member count, time range and maximum magnitude. Noise is
// dropped. Returns ErrNoInput when points is empty.
func ClusterPoints(points []domain.PointObservation, p Params, partition string) ([]domain.PrimaryCluster, error) {
	if len(points) == 0 {
		return nil, ErrNoInput
	}

	coords := make([]orb.Point, len(points))
	for i, pt := range points {
		coords[i] = pt.Location
	}
	labels, err := Labels(coords, p)
	if err != nil {
		return nil, err
	}

	groups := groupByLabel(labels)
	clusters := make([]domain.PrimaryCluster, 0, len(groups))
	for id, members := range groups {
		c := domain.PrimaryCluster{
			ID:        id,
			NumPoints: len(members),
			Partition: partition,
		}
		hullPts := make([]orb.Point, len(members))
		for k, idx := range members {
			obs := points[idx]
			hullPts[k] = obs.Location
			extendTimeRange(&c, obs)
			if obs.Magnitude > c.MaxMagnitude {
				c.MaxMagnitude = obs.Magnitude
			}
		}
		c.Boundary = geometry.RepairHull(hullPts)
		c.Severity = domain.DeriveSeverity(c.MaxMagnitude)
		clusters = append(clusters, c)
	}
	return clusters, nil
}

// NoiseCount is the number of input points not covered by clusters.
func NoiseCount(total int, clusters []domain.PrimaryCluster) int {
	n := total
	for _, c := range clusters {
		n -= c.NumPoints
	}
	return n
}

// groupByLabel returns member indices per label; the slice index is the label.
func groupByLabel(labels []int) [][]int {
	n := 0
	for _, l := range labels {
		if l+1 > n {
			n = l + 1
		}
	}
	groups := make([][]int, n)
	for i, l := range labels {
		if l == Noise {
			continue
		}
		groups[l] = append(groups[l], i)
	}
	return groups
}

func extendTimeRange(c *domain.PrimaryCluster, obs domain.PointObservation) {
	start, end := obs.Start, obs.End
	switch {
	case start.IsZero() && end.IsZero():
		return
	case start.IsZero():
		start = end
	case end.IsZero():
		end = start
	}
	if c.Start.IsZero() || start.Before(c.Start) {
		c.Start = start
	}
	if c.End.IsZero() || end.After(c.End) {
		c.End = end
	}
}
