// Package export renders cluster collections to GeoJSON files.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb/geojson"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

const (
	LayerPrimary   = "hail_cluster"
	LayerSecondary = "address_cluster"

	extPlain      = ".geojson"
	extCompressed = ".geojson.zst"
)

// Exporter writes one FeatureCollection per partition into a directory.
type Exporter struct {
	dir      string
	compress bool
	logger   *slog.Logger
}

// NewExporter returns an exporter writing into dir. With compress set,
// artifacts are zstd encoded.
func NewExporter(dir string, compress bool, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, compress: compress, logger: logger}
}

// Path is where the artifact for name is written.
func (e *Exporter) Path(name string) string {
	ext := extPlain
	if e.compress {
		ext = extCompressed
	}
	return filepath.Join(e.dir, name+ext)
}

// Exists reports whether the artifact for name is already on disk.
func (e *Exporter) Exists(name string) (bool, error) {
	_, err := os.Stat(e.Path(name))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat artifact %s: %w", name, err)
	}
}

// Render writes primary and secondary clusters as a single collection and
// returns the artifact path. The file is replaced atomically.
func (e *Exporter) Render(ctx context.Context, name string, primary []domain.PrimaryCluster, secondary []domain.SecondaryCluster) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := FeatureCollection(primary, secondary).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal feature collection: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := e.Path(name)
	if err := e.writeAtomic(path, data); err != nil {
		return "", err
	}

	e.logger.Info("artifact written",
		"path", path,
		"primary", len(primary),
		"secondary", len(secondary),
		"bytes", len(data),
	)
	return path, nil
}

func (e *Exporter) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := e.encode(tmp, data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

func (e *Exporter) encode(w io.Writer, data []byte) error {
	buf := bufio.NewWriter(w)
	if !e.compress {
		if _, err := buf.Write(data); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		return buf.Flush()
	}

	enc, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return buf.Flush()
}

// FeatureCollection converts both cluster layers into GeoJSON features.
// Primary features come first, in input order.
func FeatureCollection(primary []domain.PrimaryCluster, secondary []domain.SecondaryCluster) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range primary {
		f := geojson.NewFeature(c.Boundary)
		f.Properties["layer"] = LayerPrimary
		f.Properties["partition"] = c.Partition
		f.Properties["cluster_id"] = c.ID
		f.Properties["num_points"] = c.NumPoints
		f.Properties["max_magnitude"] = c.MaxMagnitude
		if c.Severity != "" {
			f.Properties["severity"] = c.Severity
		}
		if c.PlaceName != "" {
			f.Properties["place_name"] = c.PlaceName
		}
		setTime(f.Properties, "start_time", c.Start)
		setTime(f.Properties, "end_time", c.End)
		fc.Append(f)
	}
	for _, s := range secondary {
		f := geojson.NewFeature(s.Hull)
		f.Properties["layer"] = LayerSecondary
		f.Properties["hail_cluster_id"] = s.PrimaryID
		f.Properties["address_cluster_id"] = s.ID
		f.Properties["num_addresses"] = s.NumMembers
		fc.Append(f)
	}
	return fc
}

func setTime(props geojson.Properties, key string, t time.Time) {
	if !t.IsZero() {
		props[key] = t.UTC().Format(time.RFC3339)
	}
}
