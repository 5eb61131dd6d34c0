package domain

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb/planar"
)

// EnrichWithPlaceNames reverse geocodes each cluster's centroid into a place
// name. A nil geocoder or a failed lookup leaves the cluster unchanged.
func EnrichWithPlaceNames(ctx context.Context, clusters []PrimaryCluster, geocoder Geocoder, logger *slog.Logger) []PrimaryCluster {
	if geocoder == nil {
		return clusters
	}

	out := make([]PrimaryCluster, len(clusters))
	for i, c := range clusters {
		out[i] = c
		if len(c.Boundary) == 0 {
			continue
		}
		centroid, _ := planar.CentroidArea(c.Boundary)
		result, err := geocoder.ReverseGeocode(ctx, centroid.Lat(), centroid.Lon())
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"cluster_id", c.ID,
				"partition", c.Partition,
				"lat", centroid.Lat(),
				"lon", centroid.Lon(),
				"error", err,
			)
			continue
		}
		switch {
		case result.PlaceName != "":
			out[i].PlaceName = result.PlaceName
		case result.FormattedAddress != "":
			out[i].PlaceName = result.FormattedAddress
		}
	}
	return out
}
