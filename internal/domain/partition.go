package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// DateLayout is the compact date format used in output names.
const DateLayout = "20060102"

// Region is a named bounding box that partitions acquisition.
type Region struct {
	Code string
	BBox orb.Bound
}

// BBoxParam renders the bounding box as "minLon,minLat,maxLon,maxLat".
func (r Region) BBoxParam() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.BBox.Min.Lon(), r.BBox.Min.Lat(), r.BBox.Max.Lon(), r.BBox.Max.Lat())
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || !finite(f) {
			return orb.Bound{}, fmt.Errorf("bbox %q: invalid coordinate %q", s, p)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min.Lon() >= b.Max.Lon() || b.Min.Lat() >= b.Max.Lat() {
		return orb.Bound{}, fmt.Errorf("bbox %q: min must be below max", s)
	}
	return b, nil
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ErrEmptyWindow is returned when a window does not have Start before End.
var ErrEmptyWindow = errors.New("window start must be before end")

// Validate checks that the window is non-empty.
func (w TimeWindow) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%s..%s: %w", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly), ErrEmptyWindow)
	}
	return nil
}

// Suffix renders the window as "<YYYYMMDD>_<YYYYMMDD>".
func (w TimeWindow) Suffix() string {
	return w.Start.Format(DateLayout) + "_" + w.End.Format(DateLayout)
}

func (w TimeWindow) String() string {
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}

// SplitWindow cuts w into consecutive, non-overlapping sub-windows of at most
// chunkDays days. The last sub-window may be shorter.
func SplitWindow(w TimeWindow, chunkDays int) ([]TimeWindow, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if chunkDays < 1 {
		return nil, fmt.Errorf("chunk days must be at least 1, got %d", chunkDays)
	}
	var out []TimeWindow
	for cur := w.Start; cur.Before(w.End); {
		next := cur.AddDate(0, 0, chunkDays)
		if next.After(w.End) {
			next = w.End
		}
		out = append(out, TimeWindow{Start: cur, End: next})
		cur = next
	}
	return out, nil
}

// Partition is one region over one time window for one upstream dataset.
type Partition struct {
	Dataset string
	Region  Region
	Window  TimeWindow
}

// Key identifies the partition in the run log, e.g. "GA_20240101_20240301".
func (p Partition) Key() string {
	return strings.ToUpper(p.Region.Code) + "_" + p.Window.Suffix()
}

func (p Partition) regionTag() string {
	return strings.ToLower(p.Region.Code)
}

// ChunkName is the output name for one acquired sub-window. The "_chunk"
// suffix keeps it distinct from CombinedName when one chunk covers the window.
func (p Partition) ChunkName(w TimeWindow) string {
	return fmt.Sprintf("swdi_%s_%s_%s_chunk", strings.ToLower(p.Dataset), p.regionTag(), w.Suffix())
}

// CombinedName is the name of the view over all acquired sub-chunks.
func (p Partition) CombinedName() string {
	return fmt.Sprintf("swdi_%s_%s_%s", strings.ToLower(p.Dataset), p.regionTag(), p.Window.Suffix())
}

// PrimaryName is the dated primary cluster output.
func (p Partition) PrimaryName() string {
	return fmt.Sprintf("hail_cluster_boundaries_%s_%s", p.regionTag(), p.Window.Suffix())
}

// AliasName is the stable alias that always points at the latest PrimaryName.
func (p Partition) AliasName() string {
	return "hail_cluster_boundaries_" + p.regionTag()
}

// SecondaryName is the dated secondary cluster output.
func (p Partition) SecondaryName() string {
	return fmt.Sprintf("address_clusters_%s_%s", p.regionTag(), p.Window.Suffix())
}

// ExportName is the base name of the exported artifact.
func (p Partition) ExportName() string {
	return fmt.Sprintf("%s_clusters_%s", p.regionTag(), p.Window.Suffix())
}
