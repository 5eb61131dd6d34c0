// Package geometry provides the planar polygon helpers used to turn clustered
// points into boundaries. Coordinates are lon/lat degrees treated as a plane.
package geometry

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// HullEpsilon is the buffer radius, in degrees, used to give degenerate hulls an area.
const HullEpsilon = 1e-6

// DefaultSegments is the number of edges used to approximate a circle.
const DefaultSegments = 32

// ConvexHull returns the convex hull vertices of points in counter-clockwise
// order, without repeating the first vertex. Non-finite points and duplicates
// are dropped. Collinear input yields its two extreme points.
func ConvexHull(points []orb.Point) []orb.Point {
	pts := make([]orb.Point, 0, len(points))
	for _, p := range points {
		if finitePoint(p) {
			pts = append(pts, p)
		}
	}
	slices.SortFunc(pts, comparePoints)
	pts = slices.Compact(pts)

	if len(pts) < 3 {
		return pts
	}

	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// RepairHull returns a valid polygon enclosing points. A hull that collapses
// to a point or a segment is buffered by HullEpsilon. It never fails: with no
// usable input it returns a small circle around the centroid, or the origin.
func RepairHull(points []orb.Point) orb.Polygon {
	hull := ConvexHull(points)

	if len(hull) >= 3 {
		if poly := ringPolygon(hull); Valid(poly) {
			return poly
		}
	}

	if len(hull) > 0 {
		buffered := make([]orb.Point, 0, len(hull)*DefaultSegments)
		for _, v := range hull {
			buffered = append(buffered, Circle(v, HullEpsilon, DefaultSegments)[0]...)
		}
		if outer := ConvexHull(buffered); len(outer) >= 3 {
			if poly := ringPolygon(outer); Valid(poly) {
				return poly
			}
		}
	}

	center := orb.Point{}
	if c, ok := meanPoint(points); ok {
		center = c
	}
	if poly := Circle(center, HullEpsilon, DefaultSegments); Valid(poly) {
		return poly
	}
	return Circle(orb.Point{}, HullEpsilon, DefaultSegments)
}

// Circle approximates a disc of radius around center with a closed CCW ring.
func Circle(center orb.Point, radius float64, segments int) orb.Polygon {
	if segments < 3 {
		segments = DefaultSegments
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{
			center[0] + radius*math.Cos(theta),
			center[1] + radius*math.Sin(theta),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Centroid returns the area centroid of poly, or the mean of its outer ring
// when the area is zero.
func Centroid(poly orb.Polygon) orb.Point {
	if len(poly) == 0 {
		return orb.Point{}
	}
	c, area := planar.CentroidArea(poly)
	if area != 0 && finitePoint(c) {
		return c
	}
	m, _ := meanPoint(poly[0])
	return m
}

// Area is the absolute planar area of poly.
func Area(poly orb.Polygon) float64 {
	return math.Abs(planar.Area(poly))
}

// Distance is the planar distance between two points.
func Distance(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// Valid reports whether poly has a closed outer ring of at least three
// distinct finite vertices and a positive area.
func Valid(poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	ring := poly[0]
	if len(ring) < 4 || !ring.Closed() {
		return false
	}
	for _, p := range ring {
		if !finitePoint(p) {
			return false
		}
	}
	a := Area(poly)
	return a > 0 && !math.IsInf(a, 0) && !math.IsNaN(a)
}

func ringPolygon(hull []orb.Point) orb.Polygon {
	ring := make(orb.Ring, 0, len(hull)+1)
	ring = append(ring, hull...)
	ring = append(ring, hull[0])
	return orb.Polygon{ring}
}

func meanPoint(points []orb.Point) (orb.Point, bool) {
	var sx, sy float64
	n := 0
	for _, p := range points {
		if !finitePoint(p) {
			continue
		}
		sx += p[0]
		sy += p[1]
		n++
	}
	if n == 0 {
		return orb.Point{}, false
	}
	return orb.Point{sx / float64(n), sy / float64(n)}, true
}

// cross is the z component of (b-a) x (c-a); positive for a left turn.
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func comparePoints(a, b orb.Point) int {
	switch {
	case a[0] < b[0]:
		return -1
	case a[0] > b[0]:
		return 1
	case a[1] < b[1]:
		return -1
	case a[1] > b[1]:
		return 1
	default:
		return 0
	}
}

func finitePoint(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) && !math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}
