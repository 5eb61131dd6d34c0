package postgis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// fillFunc inserts rows into table inside tx.
type fillFunc func(ctx context.Context, tx pgx.Tx, table string) error

// writeTable (re)creates name with columns and fills it according to mode.
// replace-staging builds a staging table and swaps it in within one
// transaction, so readers see either the old or the new table.
func (s *Store) writeTable(ctx context.Context, name, columns, geomCol string, mode domain.WriteMode, fill fillFunc) error {
	switch mode {
	case domain.WriteAppend:
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+ident(name)+" "+columns); err != nil {
				return fmt.Errorf("create %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, createIndexSQL(name, geomCol, true)); err != nil {
				return fmt.Errorf("index %s: %w", name, err)
			}
			return fill(ctx, tx, name)
		})

	case domain.WriteReplaceDrop:
		if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+ident(name)+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return createAndFill(ctx, tx, name, columns, geomCol, fill)
		})

	default:
		stg := stagingName(name)
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return createAndFill(ctx, tx, stg, columns, geomCol, fill)
		})
		if err != nil {
			s.dropStaging(ctx, stg)
			return err
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident(name)+" CASCADE"); err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, "ALTER TABLE "+ident(stg)+" RENAME TO "+ident(name)); err != nil {
				return fmt.Errorf("swap %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, "ALTER INDEX "+ident(indexName(stg))+" RENAME TO "+ident(indexName(name))); err != nil {
				return fmt.Errorf("rename index of %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			s.dropStaging(ctx, stg)
		}
		return err
	}
}

// dropStaging removes a staging table left by a failed fill or swap. It runs
// even when ctx is already cancelled.
func (s *Store) dropStaging(ctx context.Context, stg string) {
	if _, err := s.pool.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+ident(stg)); err != nil {
		s.logger.Warn("drop staging table", "table", stg, "error", err)
	}
}

func createAndFill(ctx context.Context, tx pgx.Tx, table, columns, geomCol string, fill fillFunc) error {
	if _, err := tx.Exec(ctx, "CREATE TABLE "+ident(table)+" "+columns); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	if err := fill(ctx, tx, table); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, createIndexSQL(table, geomCol, false)); err != nil {
		return fmt.Errorf("index %s: %w", table, err)
	}
	return nil
}

func stagingName(name string) string {
	return name + "_stg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func indexName(table string) string {
	return table + "_gix"
}

func createIndexSQL(table, geomCol string, ifNotExists bool) string {
	clause := ""
	if ifNotExists {
		clause = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE INDEX %s%s ON %s USING GIST (%s)", clause, ident(indexName(table)), ident(table), ident(geomCol))
}

// WriteObservations stores acquired points under name.
func (s *Store) WriteObservations(ctx context.Context, name string, points []domain.PointObservation, mode domain.WriteMode) error {
	c := s.schema.Observations
	insert := fmt.Sprintf(
		"INSERT INTO %%s (%s, %s, %s, %s, %s, %s, %s) VALUES ($1, ST_GeomFromWKB($2, %d), $3, $4, $5, $6, $7)",
		ident(c.ID), ident(c.Geometry), ident(c.Start), ident(c.End), ident(c.Magnitude), ident(c.Severity), ident(c.Source), SRID)

	return s.writeTable(ctx, name, observationDDL(c), c.Geometry, mode, func(ctx context.Context, tx pgx.Tx, table string) error {
		batch := &pgx.Batch{}
		sql := fmt.Sprintf(insert, ident(table))
		for _, p := range points {
			geom, err := wkb.Marshal(p.Location)
			if err != nil {
				return fmt.Errorf("encode %s: %w", p.ID, err)
			}
			batch.Queue(sql, p.ID, geom, nullTime(p.Start), nullTime(p.End), p.Magnitude, nullString(p.Severity), nullString(p.Source))
		}
		return sendBatch(ctx, tx, batch, table)
	})
}

// WritePrimaryClusters stores cluster boundaries under name.
func (s *Store) WritePrimaryClusters(ctx context.Context, name string, clusters []domain.PrimaryCluster, mode domain.WriteMode) error {
	return s.writeTable(ctx, name, primaryDDL, "geom", mode, func(ctx context.Context, tx pgx.Tx, table string) error {
		batch := &pgx.Batch{}
		sql := fmt.Sprintf(`INSERT INTO %s (cluster_id, geom, num_points, start_time, end_time, max_magnitude, severity, partition_key)
			VALUES ($1, ST_GeomFromWKB($2, %d), $3, $4, $5, $6, $7, $8)`, ident(table), SRID)
		for _, c := range clusters {
			geom, err := wkb.Marshal(c.Boundary)
			if err != nil {
				return fmt.Errorf("encode cluster %d: %w", c.ID, err)
			}
			batch.Queue(sql, c.ID, geom, c.NumPoints, nullTime(c.Start), nullTime(c.End), c.MaxMagnitude,
				nullString(c.Severity), c.Partition)
		}
		return sendBatch(ctx, tx, batch, table)
	})
}

// WriteSecondaryClusters stores sub-cluster hulls under name.
func (s *Store) WriteSecondaryClusters(ctx context.Context, name string, clusters []domain.SecondaryCluster, mode domain.WriteMode) error {
	return s.writeTable(ctx, name, secondaryDDL, "geom", mode, func(ctx context.Context, tx pgx.Tx, table string) error {
		batch := &pgx.Batch{}
		sql := fmt.Sprintf(`INSERT INTO %s (primary_id, cluster_id, geom, num_members, member_ids)
			VALUES ($1, $2, ST_GeomFromWKB($3, %d), $4, $5)`, ident(table), SRID)
		for _, c := range clusters {
			geom, err := wkb.Marshal(c.Hull)
			if err != nil {
				return fmt.Errorf("encode cluster %d/%d: %w", c.PrimaryID, c.ID, err)
			}
			members := c.MemberIDs
			if members == nil {
				members = []string{}
			}
			batch.Queue(sql, c.PrimaryID, c.ID, geom, c.NumMembers, members)
		}
		return sendBatch(ctx, tx, batch, table)
	})
}

// CreateUnionView replaces the view name with the UNION ALL of sources.
func (s *Store) CreateUnionView(ctx context.Context, name string, sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("create view %s: no sources", name)
	}
	selects := make([]string, len(sources))
	for i, src := range sources {
		selects[i] = "SELECT * FROM " + ident(src)
	}
	sql := "CREATE OR REPLACE VIEW " + ident(name) + " AS " + strings.Join(selects, " UNION ALL ")
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create view %s: %w", name, err)
	}
	return nil
}

// CreateAlias points alias at target with a view and records the mapping.
func (s *Store) CreateAlias(ctx context.Context, alias, target string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// the old target may have different columns; replace rather than alter
		if _, err := tx.Exec(ctx, "DROP VIEW IF EXISTS "+ident(alias)); err != nil {
			return fmt.Errorf("drop alias %s: %w", alias, err)
		}
		if _, err := tx.Exec(ctx, "CREATE VIEW "+ident(alias)+" AS SELECT * FROM "+ident(target)); err != nil {
			return fmt.Errorf("alias %s -> %s: %w", alias, target, err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO pipeline_aliases (alias, target, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (alias) DO UPDATE SET
				target     = EXCLUDED.target,
				updated_at = EXCLUDED.updated_at
		`, alias, target)
		return err
	})
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, table string) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
