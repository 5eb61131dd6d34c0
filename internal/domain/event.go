package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// PointObservation is a single geo-located hail detection.
// Start and End are zero when the source carries no time; Magnitude is 0 when unmeasured.
type PointObservation struct {
	ID        string    `json:"id"`
	Location  orb.Point `json:"location"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
	Magnitude float64   `json:"magnitude,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// HasTime reports whether the observation carries at least a start time.
func (p PointObservation) HasTime() bool {
	return !p.Start.IsZero() || !p.End.IsZero()
}

// SecondaryEntity is a point of interest (an address) that may fall near a storm cluster.
type SecondaryEntity struct {
	ID       string    `json:"id"`
	Location orb.Point `json:"location"`
	Label    string    `json:"label,omitempty"`
}

// PrimaryCluster is one density cluster of observations with its boundary polygon.
// ID is unique within one run of one partition.
type PrimaryCluster struct {
	ID           int         `json:"cluster_id"`
	Boundary     orb.Polygon `json:"boundary"`
	NumPoints    int         `json:"num_points"`
	Start        time.Time   `json:"start_time,omitempty"`
	End          time.Time   `json:"end_time,omitempty"`
	MaxMagnitude float64     `json:"max_magnitude,omitempty"`
	Severity     string      `json:"severity,omitempty"`
	Partition    string      `json:"partition"`

	// Filled by optional reverse geocoding at export time.
	PlaceName string `json:"place_name,omitempty"`
}

// SecondaryCluster groups secondary entities near one primary cluster.
// ID is unique only within its PrimaryID.
type SecondaryCluster struct {
	PrimaryID  int         `json:"hail_cluster_id"`
	ID         int         `json:"address_cluster_id"`
	Hull       orb.Polygon `json:"hull"`
	NumMembers int         `json:"num_addresses"`
	MemberIDs  []string    `json:"member_ids,omitempty"`
}
