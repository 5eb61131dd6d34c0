// Package domain models NOAA Severe Weather Data Inventory (SWDI) hail
// detections and the storm-event clusters derived from them.
//
// # Data Source
//
// Observations come from the SWDI web services at
// https://www.ncdc.noaa.gov/swdiws. The nx3hail dataset carries one record per
// NEXRAD hail signature: a point location, a detection time, the estimated
// maximum hail size in inches and the probability of severe hail.
//
// # SWDI Conventions
//
// Shape:
//
//	WKT point in lon/lat order, e.g. "POINT (-84.39 33.75)".
//
// Time:
//
//	ZTIME is a UTC timestamp, e.g. "2024-05-01T21:14:03Z". A detection is an
//	instant, so start and end are the same time.
//
// Magnitude:
//
//	MAXSIZE is the estimated maximum hail size in inches. Zero or missing
//	means the radar did not estimate a size.
//
// Severity classification:
//
//	Hail:    <0.75" minor | <1.5" moderate | <2.5" severe | ≥2.5" extreme
//
// # Partitions and Output Names
//
// A partition is one region (a bounding box with a short code such as "GA")
// over one half-open time window. Every output the pipeline writes is named
// after its partition so that reruns find and skip completed work:
//
//	swdi_<dataset>_<region>_<YYYYMMDD>_<YYYYMMDD>_chunk  one acquired sub-chunk
//	swdi_<dataset>_<region>_<start>_<end>            combined view
//	hail_cluster_boundaries_<region>_<start>_<end>   primary clusters
//	hail_cluster_boundaries_<region>                 stable alias
//	address_clusters_<region>_<start>_<end>          secondary clusters
//
// # ID Generation
//
// Observation IDs are deterministic SHA-256 hashes of
// radar|cell|time|lon|lat. Refetching the same window yields the same IDs.
// See [generateID].
package domain
