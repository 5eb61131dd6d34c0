// Package postgis implements the spatial store gateway and run log on
// PostgreSQL with the PostGIS extension.
package postgis

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/paulheiniger/storm-event-leads/internal/config"
)

// SRID of every geometry column.
const SRID = 4326

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS pipeline_run_log (
    id            BIGSERIAL PRIMARY KEY,
    run_id        TEXT NOT NULL,
    partition_key TEXT NOT NULL,
    step          TEXT NOT NULL,
    status        TEXT NOT NULL,
    note          TEXT NOT NULL DEFAULT '',
    ts            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pipeline_run_log_partition ON pipeline_run_log (partition_key, id DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_run_log_run ON pipeline_run_log (run_id);

CREATE TABLE IF NOT EXISTS pipeline_aliases (
    alias      TEXT PRIMARY KEY,
    target     TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// ident quotes a table or column name.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// observationDDL is the column list of an acquired chunk table.
func observationDDL(c config.ObservationColumns) string {
	return fmt.Sprintf(`(
    %s TEXT NOT NULL,
    %s geometry(Point, %d) NOT NULL,
    %s TIMESTAMPTZ,
    %s TIMESTAMPTZ,
    %s DOUBLE PRECISION NOT NULL DEFAULT 0,
    %s TEXT,
    %s TEXT
)`, ident(c.ID), ident(c.Geometry), SRID, ident(c.Start), ident(c.End), ident(c.Magnitude), ident(c.Severity), ident(c.Source))
}

const primaryDDL = `(
    cluster_id    INTEGER NOT NULL,
    geom          geometry(Polygon, 4326) NOT NULL,
    num_points    INTEGER NOT NULL,
    start_time    TIMESTAMPTZ,
    end_time      TIMESTAMPTZ,
    max_magnitude DOUBLE PRECISION NOT NULL,
    severity      TEXT,
    partition_key TEXT NOT NULL
)`

const secondaryDDL = `(
    primary_id  INTEGER NOT NULL,
    cluster_id  INTEGER NOT NULL,
    geom        geometry(Polygon, 4326) NOT NULL,
    num_members INTEGER NOT NULL,
    member_ids  TEXT[] NOT NULL
)`
