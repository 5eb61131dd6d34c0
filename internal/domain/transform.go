package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/encoding/wkt"
)

// SWDIRecord is one element of the "result" array returned by the SWDI JSON
// service. All fields arrive as strings.
type SWDIRecord struct {
	Shape   string `json:"SHAPE"`
	ZTime   string `json:"ZTIME"`
	MaxSize string `json:"MAXSIZE"`
	SevProb string `json:"SEVPROB"`
	Prob    string `json:"PROB"`
	WSRID   string `json:"WSR_ID"`
	CellID  string `json:"CELL_ID"`
}

// ErrMissingShape is returned when a record has no usable point geometry.
var ErrMissingShape = errors.New("record has no point shape")

var zTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseSWDIRecord converts a raw SWDI record into a PointObservation.
func ParseSWDIRecord(rec SWDIRecord) (PointObservation, error) {
	shape := strings.TrimSpace(rec.Shape)
	if shape == "" {
		return PointObservation{}, ErrMissingShape
	}
	pt, err := wkt.UnmarshalPoint(shape)
	if err != nil {
		return PointObservation{}, fmt.Errorf("parse shape %q: %w", shape, err)
	}
	if !finite(pt[0]) || !finite(pt[1]) {
		return PointObservation{}, fmt.Errorf("parse shape %q: %w", shape, ErrMissingShape)
	}

	ts := parseZTime(rec.ZTime)
	magnitude := parseFloatOrZero(rec.MaxSize)

	return PointObservation{
		ID:        generateID(rec.WSRID, rec.CellID, rec.ZTime, pt[0], pt[1]),
		Location:  pt,
		Start:     ts,
		End:       ts,
		Magnitude: magnitude,
		Severity:  DeriveSeverity(magnitude),
		Source:    sourceTag(rec.WSRID, rec.CellID),
	}, nil
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
// SWDI uses negative values as "not estimated".
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || !finite(v) {
		return 0
	}
	return v
}

func parseZTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range zTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func sourceTag(radar, cell string) string {
	radar = strings.TrimSpace(radar)
	cell = strings.TrimSpace(cell)
	switch {
	case radar == "":
		return cell
	case cell == "":
		return radar
	default:
		return radar + "/" + cell
	}
}

// generateID produces a deterministic ID from the detection's key fields so
// that refetching a window yields the same IDs.
func generateID(radar, cell, ztime string, lon, lat float64) string {
	input := fmt.Sprintf("%s|%s|%s|%.5f|%.5f", radar, cell, ztime, lon, lat)
	hash := sha256.Sum256([]byte(input))
	return "hail-" + hex.EncodeToString(hash[:8])
}

// DeriveSeverity maps a hail size in inches to a severity label:
// <0.75in minor, <1.5in moderate, <2.5in severe, else extreme.
// Returns "" when the size is unmeasured.
func DeriveSeverity(magnitude float64) string {
	switch {
	case magnitude <= 0:
		return ""
	case magnitude < 0.75:
		return "minor"
	case magnitude < 1.5:
		return "moderate"
	case magnitude < 2.5:
		return "severe"
	default:
		return "extreme"
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
