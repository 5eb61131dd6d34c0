// Package commands implements the stormleads CLI subcommands.
package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulheiniger/storm-event-leads/internal/config"
	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// DefaultDataset is the SWDI dataset acquired when --dataset is not given.
const DefaultDataset = "nx3hail"

var dateLayouts = []string{time.DateOnly, domain.DateLayout}

// parseDate accepts YYYY-MM-DD or YYYYMMDD and returns midnight UTC.
func parseDate(flag, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("--%s is required", flag)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q (want YYYY-MM-DD)", flag, s)
}

func parseWindow(start, end string) (domain.TimeWindow, error) {
	s, err := parseDate("start", start)
	if err != nil {
		return domain.TimeWindow{}, err
	}
	e, err := parseDate("end", end)
	if err != nil {
		return domain.TimeWindow{}, err
	}
	w := domain.TimeWindow{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return domain.TimeWindow{}, err
	}
	return w, nil
}

// splitList splits comma separated flag values, dropping blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// buildPartitions crosses regions with the window into one partition each.
func buildPartitions(catalog *config.Catalog, regions []string, dataset string, window domain.TimeWindow) ([]domain.Partition, error) {
	codes := splitList(regions)
	if len(codes) == 0 {
		return nil, errors.New("at least one region is required")
	}
	resolved, err := catalog.ResolveRegions(codes)
	if err != nil {
		return nil, err
	}
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		dataset = DefaultDataset
	}

	seen := make(map[string]bool, len(resolved))
	parts := make([]domain.Partition, 0, len(resolved))
	for _, r := range resolved {
		if seen[r.Code] {
			continue
		}
		seen[r.Code] = true
		parts = append(parts, domain.Partition{Dataset: dataset, Region: r, Window: window})
	}
	return parts, nil
}
