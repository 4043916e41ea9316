package spatialite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tobyn/gaiaq/schema"
)

// ApplySchema registers every geometry column the set declares, creating
// tables and spatial indexes as needed. Safe to run repeatedly: columns
// already registered are left alone, subject to the agreement checks
// EnsureReady performs.
func (c *Conn) ApplySchema(ctx context.Context, set *schema.Set) error {
	if err := c.EnsureReady(ctx); err != nil {
		return err
	}
	if set == nil {
		return nil
	}

	cols := set.Columns()
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Table != cols[j].Table {
			return cols[i].Table < cols[j].Table
		}
		return cols[i].Name < cols[j].Name
	})

	for _, col := range cols {
		if err := c.applyColumn(ctx, col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) applyColumn(ctx context.Context, col schema.Column) error {
	key := col.Table + "." + col.Name

	// AddGeometryColumn needs the table to exist first. The id column
	// aliases rowid, which selects order by.
	createTable := "CREATE TABLE IF NOT EXISTS " + quoteIdent(col.Table) + " (id INTEGER PRIMARY KEY)"
	if _, err := c.db.ExecContext(ctx, createTable); err != nil {
		return eris.Wrapf(err, "spatialite: create table %s", col.Table)
	}

	var indexed sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT spatial_index_enabled FROM geometry_columns
		 WHERE f_table_name = ? AND f_geometry_column = ?`,
		schema.Canonical(col.Table), schema.Canonical(col.Name),
	).Scan(&indexed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var ok int
		addErr := c.db.QueryRowContext(ctx,
			"SELECT AddGeometryColumn(?, ?, ?, ?, ?)",
			col.Table, col.Name, col.SRID, col.Type.String(), col.Dims,
		).Scan(&ok)
		if addErr != nil {
			return eris.Wrapf(addErr, "spatialite: add geometry column %s", key)
		}
		if ok != 1 {
			return fmt.Errorf("spatialite: AddGeometryColumn(%s) returned %d", key, ok)
		}
		c.log.Debug("added geometry column",
			zap.String("column", key),
			zap.Stringer("type", col.Type),
			zap.Int32("srid", col.SRID))
	case err != nil:
		return eris.Wrapf(err, "spatialite: look up geometry column %s", key)
	}

	if col.Index && !(indexed.Valid && indexed.Int64 != 0) {
		var ok int
		err := c.db.QueryRowContext(ctx,
			"SELECT CreateSpatialIndex(?, ?)",
			col.Table, col.Name,
		).Scan(&ok)
		if err != nil {
			return eris.Wrapf(err, "spatialite: create spatial index on %s", key)
		}
		if ok != 1 {
			return fmt.Errorf("spatialite: CreateSpatialIndex(%s) returned %d", key, ok)
		}
		c.log.Debug("created spatial index", zap.String("column", key))
	}

	c.mu.Lock()
	c.state.Columns[key] = col.SRID
	c.mu.Unlock()
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
