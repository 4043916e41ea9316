package filtersql

import (
	"fmt"
	"strings"

	"github.com/tobyn/gaiaq/filterir"
)

// Select describes a full query against the compiler's table.
type Select struct {
	// Columns to project. Geometry columns declared in the schema are
	// wrapped in CAST (AsEWKB(col) AS BLOB) so rows come back in the wire
	// format. Empty means rowid plus every declared geometry column.
	Columns []string
	Filter  filterir.Predicate
	// Limit caps the row count when positive. The cap is bound as a
	// parameter like any other value.
	Limit int
}

// CompileSelect builds a complete SELECT statement. Every statement
// orders by rowid so results are deterministic across runs.
func (c *Compiler) CompileSelect(q Select) (Compiled, error) {
	table, ok := c.Schema.Table(c.Table)
	if !ok {
		return Compiled{}, fmt.Errorf("unknown table %q", c.Table)
	}

	columns := q.Columns
	if len(columns) == 0 {
		columns = make([]string, 0, 1+len(table.Geometry))
		columns = append(columns, "rowid")
		for _, col := range table.Geometry {
			columns = append(columns, col.Name)
		}
	}

	parts := make([]string, 0, len(columns))
	for _, name := range columns {
		if name == "rowid" {
			parts = append(parts, "rowid")
			continue
		}
		if _, isGeom := c.Schema.Column(c.Table, name); isGeom {
			parts = append(parts, "CAST (AsEWKB("+quoteIdent(name)+") AS BLOB) AS "+quoteIdent(name))
			continue
		}
		parts = append(parts, quoteIdent(name))
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(parts, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(quoteIdent(table.Name))

	var params []any
	usable := false
	if q.Filter != nil {
		frag, err := c.compilePredicate(q.Filter)
		if err != nil {
			return Compiled{}, fmt.Errorf("compile filter: %w", err)
		}
		sql.WriteString(" WHERE ")
		sql.WriteString(frag.sql)
		params = frag.params
		usable = frag.indexUsable
	}

	sql.WriteString(" ORDER BY rowid")

	if q.Limit > 0 {
		sql.WriteString(" LIMIT ?")
		params = append(params, int64(q.Limit))
	}

	return Compiled{SQL: sql.String(), Params: params, IndexUsable: usable}, nil
}
