package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// DefaultRegions are the built-in bounding boxes, minLon,minLat,maxLon,maxLat.
var DefaultRegions = map[string]string{
	"GA": "-85.61,30.36,-80.84,35.00",
	"IN": "-88.10,37.70,-84.79,41.76",
	"OH": "-84.82,38.40,-80.52,41.98",
	"KY": "-89.57,36.49,-81.97,39.15",
}

// Catalog declares the regions and store column mapping, resolved once at startup.
type Catalog struct {
	Regions map[string]string `yaml:"regions"`
	Schema  Schema            `yaml:"schema"`
}

// Schema names the columns the store reads and writes.
type Schema struct {
	Observations ObservationColumns `yaml:"observations"`
	Entities     EntitySource       `yaml:"entities"`
}

// ObservationColumns maps PointObservation fields to columns of acquired tables.
type ObservationColumns struct {
	Geometry  string `yaml:"geometry"`
	ID        string `yaml:"id"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	Magnitude string `yaml:"magnitude"`
	Severity  string `yaml:"severity"`
	Source    string `yaml:"source"`
}

// EntitySource locates the secondary entity (address) table.
type EntitySource struct {
	Table    string `yaml:"table"`
	ID       string `yaml:"id"`
	Geometry string `yaml:"geometry"`
	Label    string `yaml:"label"`
}

// DefaultCatalog returns the built-in regions and column names.
func DefaultCatalog() *Catalog {
	regions := make(map[string]string, len(DefaultRegions))
	for k, v := range DefaultRegions {
		regions[k] = v
	}
	return &Catalog{
		Regions: regions,
		Schema: Schema{
			Observations: ObservationColumns{
				Geometry:  "geom",
				ID:        "id",
				Start:     "start_time",
				End:       "end_time",
				Magnitude: "max_size",
				Severity:  "severity",
				Source:    "source",
			},
			Entities: EntitySource{
				Table:    "addresses",
				ID:       "id",
				Geometry: "geom",
				Label:    "full_address",
			},
		},
	}
}

// LoadCatalog overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read PIPELINE_CATALOG: %w", err)
	}
	var file Catalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse PIPELINE_CATALOG %s: %w", path, err)
	}

	for code, bbox := range file.Regions {
		cat.Regions[strings.ToUpper(code)] = bbox
	}
	mergeString(&cat.Schema.Observations.Geometry, file.Schema.Observations.Geometry)
	mergeString(&cat.Schema.Observations.ID, file.Schema.Observations.ID)
	mergeString(&cat.Schema.Observations.Start, file.Schema.Observations.Start)
	mergeString(&cat.Schema.Observations.End, file.Schema.Observations.End)
	mergeString(&cat.Schema.Observations.Magnitude, file.Schema.Observations.Magnitude)
	mergeString(&cat.Schema.Observations.Severity, file.Schema.Observations.Severity)
	mergeString(&cat.Schema.Observations.Source, file.Schema.Observations.Source)
	mergeString(&cat.Schema.Entities.Table, file.Schema.Entities.Table)
	mergeString(&cat.Schema.Entities.ID, file.Schema.Entities.ID)
	mergeString(&cat.Schema.Entities.Geometry, file.Schema.Entities.Geometry)
	mergeString(&cat.Schema.Entities.Label, file.Schema.Entities.Label)

	if _, err := cat.ResolveRegions(cat.RegionCodes()); err != nil {
		return nil, fmt.Errorf("PIPELINE_CATALOG %s: %w", path, err)
	}
	return cat, nil
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// RegionCodes lists the configured region codes in sorted order.
func (c *Catalog) RegionCodes() []string {
	codes := make([]string, 0, len(c.Regions))
	for code := range c.Regions {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// ResolveRegions looks up each code (case-insensitive) and parses its bounding box.
func (c *Catalog) ResolveRegions(codes []string) ([]domain.Region, error) {
	out := make([]domain.Region, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		raw, ok := c.Regions[code]
		if !ok {
			return nil, fmt.Errorf("unknown region %q (known: %s)", code, strings.Join(c.RegionCodes(), ", "))
		}
		bbox, err := domain.ParseBBox(raw)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", code, err)
		}
		out = append(out, domain.Region{Code: code, BBox: bbox})
	}
	return out, nil
}
