package cluster

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
	"github.com/paulheiniger/storm-event-leads/internal/geometry"
)

// searchSegments is the polygon resolution of the candidate search region.
const searchSegments = 64

// CandidateFetcher returns secondary entities that may lie inside region.
// It may over-return; ClusterNearby filters by exact distance.
type CandidateFetcher func(ctx context.Context, region orb.Polygon) ([]domain.SecondaryEntity, error)

// SearchRegion is the polygon handed to the fetcher: a circle around center
// whose edges circumscribe the disc of radius bufferRadius.
func SearchRegion(center orb.Point, bufferRadius float64) orb.Polygon {
	return geometry.Circle(center, bufferRadius/math.Cos(math.Pi/searchSegments), searchSegments)
}

// ClusterNearby sub-clusters the secondary entities within bufferRadius of
// the primary cluster's centroid. Sub-cluster IDs restart at 0 for every
// primary cluster. No candidates yields an empty result.
func ClusterNearby(ctx context.Context, primary domain.PrimaryCluster, fetch CandidateFetcher, bufferRadius float64, p Params) ([]domain.SecondaryCluster, error) {
	if math.IsNaN(bufferRadius) || bufferRadius <= 0 {
		return nil, fmt.Errorf("buffer radius must be positive, got %v", bufferRadius)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	center := geometry.Centroid(primary.Boundary)
	candidates, err := fetch(ctx, SearchRegion(center, bufferRadius))
	if err != nil {
		return nil, fmt.Errorf("fetch candidates for cluster %d: %w", primary.ID, err)
	}

	nearby := make([]domain.SecondaryEntity, 0, len(candidates))
	for _, e := range candidates {
		if finite(e.Location) && geometry.Distance(center, e.Location) <= bufferRadius {
			nearby = append(nearby, e)
		}
	}
	if len(nearby) == 0 {
		return nil, nil
	}

	coords := make([]orb.Point, len(nearby))
	for i, e := range nearby {
		coords[i] = e.Location
	}
	labels, err := Labels(coords, p)
	if err != nil {
		return nil, err
	}

	groups := groupByLabel(labels)
	out := make([]domain.SecondaryCluster, 0, len(groups))
	for id, members := range groups {
		pts := make([]orb.Point, len(members))
		ids := make([]string, len(members))
		for k, idx := range members {
			pts[k] = nearby[idx].Location
			ids[k] = nearby[idx].ID
		}
		out = append(out, domain.SecondaryCluster{
			PrimaryID:  primary.ID,
			ID:         id,
			Hull:       geometry.RepairHull(pts),
			NumMembers: len(members),
			MemberIDs:  ids,
		})
	}
	return out, nil
}

// ClusterAllNearby runs ClusterNearby for each primary cluster in order and
// concatenates the results.
func ClusterAllNearby(ctx context.Context, primaries []domain.PrimaryCluster, fetch CandidateFetcher, bufferRadius float64, p Params) ([]domain.SecondaryCluster, error) {
	var all []domain.SecondaryCluster
	for _, pc := range primaries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sub, err := ClusterNearby(ctx, pc, fetch, bufferRadius, p)
		if err != nil {
			return nil, err
		}
		all = append(all, sub...)
	}
	return all, nil
}
