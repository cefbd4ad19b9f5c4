// Package catalog records processed products in a SQLite database so they can
// be listed by site and looked up by id.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// ErrNotFound is returned by Get for an unknown product id.
var ErrNotFound = errors.New("product not found")

const (
	createTableTmpl = `CREATE TABLE IF NOT EXISTS products (
		"ID"           TEXT NOT NULL PRIMARY KEY,
		"Site"         TEXT NOT NULL,
		"ScanTime"     INTEGER NOT NULL,
		"RadarFile"    TEXT NOT NULL,
		"Sounding"     TEXT NOT NULL,
		"OutputPath"   TEXT NOT NULL,
		"Rays"         INTEGER,
		"Gates"        INTEGER,
		"GateCounts"   TEXT,
		"RainGates"    INTEGER,
		"RainMean"     REAL,
		"RainMax"      REAL,
		"ProcessedAt"  INTEGER NOT NULL
	);`
	createIndexTmpl = `CREATE INDEX IF NOT EXISTS products_site_scan ON products (Site, ScanTime);`

	upsertProductTmpl = `INSERT OR REPLACE INTO products(
		ID,
		Site,
		ScanTime,
		RadarFile,
		Sounding,
		OutputPath,
		Rays,
		Gates,
		GateCounts,
		RainGates,
		RainMean,
		RainMax,
		ProcessedAt
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	selectColumns = `SELECT ID, Site, ScanTime, RadarFile, Sounding, OutputPath, Rays, Gates,
		GateCounts, RainGates, RainMean, RainMax, ProcessedAt FROM products`
)

// Catalog is a SQLite-backed product store.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path. ":memory:"
// gives a private in-memory catalog.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite DB %q: %w", path, err)
	}
	// One connection keeps a ":memory:" database shared across calls.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{createTableTmpl, createIndexTmpl} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create catalog schema: %w", err)
		}
	}
	return &Catalog{db: db}, nil
}

// Record upserts events in one transaction.
func (c *Catalog) Record(ctx context.Context, events []domain.ProductEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertProductTmpl)
	if err != nil {
		return fmt.Errorf("prepare catalog insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		counts, err := json.Marshal(ev.GateCounts)
		if err != nil {
			return fmt.Errorf("encode gate counts: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.Site, ev.ScanTime.UnixMilli(), ev.RadarFile, ev.SoundingSource, ev.OutputPath,
			ev.Rays, ev.Gates, string(counts),
			ev.RainRate.Gates, ev.RainRate.Mean, ev.RainRate.Max,
			ev.ProcessedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert product %s: %w", ev.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

// Get returns the product with id.
func (c *Catalog) Get(ctx context.Context, id string) (domain.ProductEvent, error) {
	row := c.db.QueryRowContext(ctx, selectColumns+` WHERE ID = ?`, id)
	ev, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductEvent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev, err
}

// List returns up to limit products for site, most recent scan first.
func (c *Catalog) List(ctx context.Context, site string, limit int) ([]domain.ProductEvent, error) {
	rows, err := c.db.QueryContext(ctx, selectColumns+` WHERE Site = ? ORDER BY ScanTime DESC, ID LIMIT ?`, site, limit)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.ProductEvent
	for rows.Next() {
		ev, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (domain.ProductEvent, error) {
	var ev domain.ProductEvent
	var counts sql.NullString
	var scanMs, processedMs int64
	err := s.Scan(&ev.ID, &ev.Site, &scanMs, &ev.RadarFile, &ev.SoundingSource, &ev.OutputPath,
		&ev.Rays, &ev.Gates, &counts,
		&ev.RainRate.Gates, &ev.RainRate.Mean, &ev.RainRate.Max, &processedMs)
	if err != nil {
		return domain.ProductEvent{}, err
	}
	ev.ScanTime = time.UnixMilli(scanMs).UTC()
	ev.ProcessedAt = time.UnixMilli(processedMs).UTC()
	ev.GateCounts = map[string]int{}
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &ev.GateCounts); err != nil {
			return domain.ProductEvent{}, fmt.Errorf("decode gate counts for %s: %w", ev.ID, err)
		}
	}
	return ev, nil
}
