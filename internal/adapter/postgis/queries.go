package postgis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// LoadObservations reads every point of a chunk table or combined view.
func (s *Store) LoadObservations(ctx context.Context, source string) ([]domain.PointObservation, error) {
	c := s.schema.Observations
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s::text, ST_AsBinary(%s), %s, %s, COALESCE(%s, 0)::double precision,
			COALESCE(%s::text, ''), COALESCE(%s::text, '')
		FROM %s`,
		ident(c.ID), ident(c.Geometry), ident(c.Start), ident(c.End), ident(c.Magnitude),
		ident(c.Severity), ident(c.Source), ident(source)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}
	defer rows.Close()

	var out []domain.PointObservation
	for rows.Next() {
		var (
			p          domain.PointObservation
			geom       []byte
			start, end *time.Time
		)
		if err := rows.Scan(&p.ID, &geom, &start, &end, &p.Magnitude, &p.Severity, &p.Source); err != nil {
			return nil, fmt.Errorf("scan %s: %w", source, err)
		}
		if p.Location, err = decodePoint(geom); err != nil {
			return nil, fmt.Errorf("decode %s row %s: %w", source, p.ID, err)
		}
		if start != nil {
			p.Start = start.UTC()
		}
		if end != nil {
			p.End = end.UTC()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadPrimaryClusters reads a primary cluster table or its alias.
func (s *Store) LoadPrimaryClusters(ctx context.Context, name string) ([]domain.PrimaryCluster, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT cluster_id, ST_AsBinary(geom), num_points, start_time, end_time, max_magnitude,
			COALESCE(severity, ''), partition_key
		FROM %s
		ORDER BY cluster_id`, ident(name)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer rows.Close()

	var out []domain.PrimaryCluster
	for rows.Next() {
		var (
			c          domain.PrimaryCluster
			geom       []byte
			start, end *time.Time
		)
		if err := rows.Scan(&c.ID, &geom, &c.NumPoints, &start, &end, &c.MaxMagnitude,
			&c.Severity, &c.Partition); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		if c.Boundary, err = decodePolygon(geom); err != nil {
			return nil, fmt.Errorf("decode %s cluster %d: %w", name, c.ID, err)
		}
		if start != nil {
			c.Start = start.UTC()
		}
		if end != nil {
			c.End = end.UTC()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadSecondaryClusters reads a secondary cluster table.
func (s *Store) LoadSecondaryClusters(ctx context.Context, name string) ([]domain.SecondaryCluster, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT primary_id, cluster_id, ST_AsBinary(geom), num_members, member_ids
		FROM %s
		ORDER BY primary_id, cluster_id`, ident(name)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer rows.Close()

	var out []domain.SecondaryCluster
	for rows.Next() {
		var (
			c    domain.SecondaryCluster
			geom []byte
		)
		if err := rows.Scan(&c.PrimaryID, &c.ID, &geom, &c.NumMembers, &c.MemberIDs); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		if c.Hull, err = decodePolygon(geom); err != nil {
			return nil, fmt.Errorf("decode %s cluster %d/%d: %w", name, c.PrimaryID, c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveAlias returns the table alias points at, or "" when the alias or
// its view is missing.
func (s *Store) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var target string
	err := s.pool.QueryRow(ctx, `
		SELECT target FROM pipeline_aliases
		WHERE alias = $1 AND to_regclass($2) IS NOT NULL
	`, alias, ident(alias)).Scan(&target)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve alias %s: %w", alias, err)
	}
	return target, nil
}

// QueryEntities returns the secondary entities intersecting region.
func (s *Store) QueryEntities(ctx context.Context, region orb.Polygon) ([]domain.SecondaryEntity, error) {
	e := s.schema.Entities
	geom, err := wkb.Marshal(region)
	if err != nil {
		return nil, fmt.Errorf("encode search region: %w", err)
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s::text, ST_AsBinary(%s), COALESCE(%s::text, '')
		FROM %s
		WHERE ST_Intersects(%s, ST_GeomFromWKB($1, %d))`,
		ident(e.ID), ident(e.Geometry), ident(e.Label), ident(e.Table), ident(e.Geometry), SRID), geom)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", e.Table, err)
	}
	defer rows.Close()

	var out []domain.SecondaryEntity
	for rows.Next() {
		var (
			ent domain.SecondaryEntity
			raw []byte
		)
		if err := rows.Scan(&ent.ID, &raw, &ent.Label); err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.Table, err)
		}
		if ent.Location, err = decodePoint(raw); err != nil {
			return nil, fmt.Errorf("decode %s row %s: %w", e.Table, ent.ID, err)
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

func decodePoint(b []byte) (orb.Point, error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return orb.Point{}, err
	}
	p, ok := g.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("want Point, got %s", g.GeoJSONType())
	}
	return p, nil
}

func decodePolygon(b []byte) (orb.Polygon, error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	p, ok := g.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("want Polygon, got %s", g.GeoJSONType())
	}
	return p, nil
}
