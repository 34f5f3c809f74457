/*
Copyright (C) 2026  coldshard contributors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// cmd/migrate-demo is one example migration.Driver (spec.md §6/§9): rows
// older than a watermark, read from a SQL source table, are drained
// through migration.Pack and packed into shards. The watermark itself —
// where it is stored, how it advances — is entirely this driver's concern;
// migration.Pack never reads or writes it, matching spec.md §9's
// "migration orchestrator coupling" redesign away from the teacher's
// storage package occasionally importing DB code directly
// (storage/mysql_import.go).
//
// This is a demonstration of the contract, not source-database migration
// logic belonging in the core (spec.md §1 Non-goal: "the source-database
// migration orchestrator's SQL glue").
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/coldshard/des/backend"
	"github.com/coldshard/des/migration"
	"github.com/coldshard/des/planner"
)

// sqlDriver reads the rows whose created_at is past the caller's
// watermark from one SQL table and yields them as
// migration.ManifestEntry values in created_at order. It owns and
// advances its own watermark column after Pack succeeds; the core never
// sees it.
type sqlDriver struct {
	db         *sql.DB
	dialect    dialect
	table      string
	watermark  time.Time
	batchSize  int
	rows       *sql.Rows
	lastSeenAt time.Time
}

// dialect papers over the one real difference between the two database/sql
// drivers this demo supports: placeholder syntax and upsert syntax. Neither
// mysql nor lib/pq abstracts this; callers of database/sql never do.
type dialect struct {
	name      string
	placehold func(n int) string // nth bind parameter, 1-based
	upsertSQL string             // watermark upsert; binds table name, then watermark
}

var dialects = map[string]dialect{
	"mysql": {
		name:      "mysql",
		placehold: func(int) string { return "?" },
		upsertSQL: `INSERT INTO archive_watermark (table_name, watermark) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE watermark = VALUES(watermark)`,
	},
	"postgres": {
		name:      "postgres",
		placehold: func(n int) string { return fmt.Sprintf("$%d", n) },
		upsertSQL: `INSERT INTO archive_watermark (table_name, watermark) VALUES ($1, $2)
			ON CONFLICT (table_name) DO UPDATE SET watermark = EXCLUDED.watermark`,
	},
}

func newSQLDriver(db *sql.DB, d dialect, table string, watermark time.Time, batchSize int) (*sqlDriver, error) {
	query := fmt.Sprintf(`SELECT uid, created_at, payload, meta FROM %s WHERE created_at > %s ORDER BY created_at ASC LIMIT %s`,
		table, d.placehold(1), d.placehold(2))
	rows, err := db.Query(query, watermark, batchSize)
	if err != nil {
		return nil, fmt.Errorf("migrate-demo: querying %s: %w", table, err)
	}
	return &sqlDriver{db: db, dialect: d, table: table, watermark: watermark, batchSize: batchSize, rows: rows}, nil
}

// Next implements migration.Driver.
func (d *sqlDriver) Next(ctx context.Context) (migration.ManifestEntry, error) {
	if !d.rows.Next() {
		if err := d.rows.Err(); err != nil {
			return migration.ManifestEntry{}, fmt.Errorf("migrate-demo: scanning %s: %w", d.table, err)
		}
		return migration.ManifestEntry{}, io.EOF
	}

	var uid string
	var createdAt time.Time
	var payload []byte
	var meta []byte
	if err := d.rows.Scan(&uid, &createdAt, &payload, &meta); err != nil {
		return migration.ManifestEntry{}, fmt.Errorf("migrate-demo: scanning row: %w", err)
	}
	d.lastSeenAt = createdAt

	return migration.ManifestEntry{
		UID:       []byte(uid),
		CreatedAt: createdAt,
		SizeBytes: int64(len(payload)),
		Meta:      meta,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(string(payload))), nil
		},
	}, nil
}

// advanceWatermark is called by main after migration.Pack returns
// successfully; this is the one piece of cutoff bookkeeping spec.md §6
// places entirely outside the core ("the driver is responsible for
// advancing its own cutoff marker after pack returns successfully").
func (d *sqlDriver) advanceWatermark(ctx context.Context) error {
	if d.lastSeenAt.IsZero() {
		return nil
	}
	_, err := d.db.ExecContext(ctx, d.dialect.upsertSQL, d.table, d.lastSeenAt)
	return err
}

func main() {
	driverName := flag.String("driver", "mysql", "mysql or postgres")
	dsn := flag.String("dsn", "", "database/sql data source name")
	table := flag.String("table", "", "source table with (uid, created_at, payload, meta) columns")
	localPath := flag.String("local-path", "./des-data", "local backend base path for the packed shards")
	batchSize := flag.Int("batch-size", 10000, "rows to read per Pack call")
	flag.Parse()

	if *dsn == "" || *table == "" {
		log.Fatal("migrate-demo: -dsn and -table are required")
	}

	d, ok := dialects[*driverName]
	if !ok {
		log.Fatalf("migrate-demo: unknown -driver %q (want mysql or postgres)", *driverName)
	}

	db, err := sql.Open(d.name, *dsn)
	if err != nil {
		log.Fatalf("migrate-demo: opening %s: %v", d.name, err)
	}
	defer db.Close()

	watermark, err := readWatermark(db, d, *table)
	if err != nil {
		log.Fatalf("migrate-demo: reading watermark: %v", err)
	}

	drv, err := newSQLDriver(db, d, *table, watermark, *batchSize)
	if err != nil {
		log.Fatalf("migrate-demo: %v", err)
	}

	be, err := backend.NewLocalBackend(*localPath)
	if err != nil {
		log.Fatalf("migrate-demo: opening local backend: %v", err)
	}

	result, err := migration.Pack(context.Background(), be, planner.DefaultConfig(), drv)
	if err != nil {
		log.Fatalf("migrate-demo: packing: %v", err)
	}

	if err := drv.advanceWatermark(context.Background()); err != nil {
		log.Fatalf("migrate-demo: advancing watermark: %v", err)
	}

	fmt.Printf("migrate-demo: packed %d shards, %d files from %s past watermark %s\n",
		len(result.Shards), len(result.Files), *table, watermark.Format(time.RFC3339))
}

func readWatermark(db *sql.DB, d dialect, table string) (time.Time, error) {
	query := fmt.Sprintf(`SELECT watermark FROM archive_watermark WHERE table_name = %s`, d.placehold(1))
	var t time.Time
	err := db.QueryRow(query, table).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Unix(0, 0).UTC(), nil
	}
	return t, err
}
