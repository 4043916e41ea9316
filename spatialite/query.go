package spatialite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tobyn/gaiaq/filterir"
	"github.com/tobyn/gaiaq/filtersql"
	"github.com/tobyn/gaiaq/geo"
)

// Query describes one table read.
type Query struct {
	Table string
	// Columns to project; empty means rowid plus the table's declared
	// geometry columns.
	Columns []string
	// Filter restricts the rows when non-nil.
	Filter filterir.Predicate
	// Limit caps the row count when positive.
	Limit int
}

// Row is one result row keyed by column name. Geometry columns hold
// geo.Geometry; everything else keeps the driver's scalar types.
type Row map[string]any

// Select compiles and runs a query. EnsureReady runs first; its error,
// if any, is returned unchanged.
func (c *Conn) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := c.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if c.schema == nil {
		return nil, errors.New("spatialite: no schema attached, open with WithSchema")
	}

	compiled, err := filtersql.NewCompiler(c.schema, q.Table).CompileSelect(filtersql.Select{
		Columns: q.Columns,
		Filter:  q.Filter,
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug("select",
		zap.String("table", q.Table),
		zap.String("sql", compiled.SQL),
		zap.Int("params", len(compiled.Params)),
		zap.Bool("index_usable", compiled.IndexUsable))

	rows, err := c.db.QueryContext(ctx, compiled.SQL, compiled.Params...)
	if err != nil {
		return nil, eris.Wrap(err, "spatialite: query")
	}
	defer rows.Close()

	out, err := c.scanRows(rows, q.Table)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "spatialite: iterate rows")
	}
	return out, nil
}

// scanRows reads every row generically and decodes geometry columns
// through the codec.
func (c *Conn) scanRows(rows *sql.Rows, table string) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "spatialite: read columns")
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "spatialite: scan row")
		}

		row := make(Row, len(columns))
		for i, name := range columns {
			v := values[i]
			if _, isGeom := c.schema.Column(table, name); isGeom && v != nil {
				g, err := decodeGeometryValue(v)
				if err != nil {
					return nil, fmt.Errorf("decode column %s: %w", name, err)
				}
				row[name] = g
				continue
			}
			row[name] = v
		}
		out = append(out, row)
	}
	return out, nil
}

// decodeGeometryValue turns a scanned geometry column into a Geometry.
// AsEWKB yields hexadecimal text, read back here as the bytes of that
// text; raw EWKB is recognized by its byte-order marker, which no hex
// digit shares.
func decodeGeometryValue(v any) (geo.Geometry, error) {
	switch data := v.(type) {
	case []byte:
		if len(data) > 0 && (data[0] == 0x00 || data[0] == 0x01) {
			return geo.Decode(data)
		}
		raw, err := hex.DecodeString(string(data))
		if err != nil {
			return geo.Geometry{}, fmt.Errorf("geometry column is neither EWKB nor hex: %w", err)
		}
		return geo.Decode(raw)
	case string:
		raw, err := hex.DecodeString(data)
		if err != nil {
			return geo.Geometry{}, fmt.Errorf("geometry column is neither EWKB nor hex: %w", err)
		}
		return geo.Decode(raw)
	default:
		return geo.Geometry{}, fmt.Errorf("geometry column scanned as %T", v)
	}
}
