package filtersql

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyn/gaiaq/catalog"
	"github.com/tobyn/gaiaq/cql"
	"github.com/tobyn/gaiaq/filterir"
	"github.com/tobyn/gaiaq/geo"
	"github.com/tobyn/gaiaq/schema"
)

// decodeHexParam reads a bound geometry parameter back through the codec.
func decodeHexParam(t *testing.T, p any) geo.Geometry {
	t.Helper()
	text, ok := p.(string)
	require.True(t, ok, "geometry parameter should be hex text, got %T", p)
	raw, err := hex.DecodeString(text)
	require.NoError(t, err)
	g, err := geo.Decode(raw)
	require.NoError(t, err)
	return g
}

func testSet(t *testing.T) *schema.Set {
	t.Helper()
	set, err := schema.Compile([]byte(`
		tables: places: {
			geometry: geom: {type: "POINT", srid: 4326, index: true}
		}
	`), "places.cue")
	require.NoError(t, err)
	return set
}

func crossSet(t *testing.T) *schema.Set {
	t.Helper()
	set, err := schema.Compile([]byte(`
		tables: places: {
			geometry: {
				geom:      {type: "POINT", srid: 4326, index: true}
				footprint: {type: "POLYGON", srid: 3857}
			}
		}
	`), "places.cue")
	require.NoError(t, err)
	return set
}

func lit(t *testing.T, wkt string) filterir.GeometryLiteral {
	t.Helper()
	g, err := geo.ParseWKT(wkt)
	require.NoError(t, err)
	return filterir.GeometryLiteral{Geom: g}
}

func intersectsGeom(t *testing.T) filterir.Spatial {
	t.Helper()
	return filterir.Spatial{
		Op:    "intersects",
		Left:  filterir.Column{Name: "geom"},
		Right: lit(t, "POINT (13.4 52.5)"),
	}
}

func TestCompile_IntersectsShape(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(intersectsGeom(t))
	require.NoError(t, err)

	assert.Equal(t, `Intersects("geom", GeomFromEWKB(?))`, got.SQL)
	require.Len(t, got.Params, 1)

	// The literal travels as one encoded parameter, already tagged with
	// the column's reference system.
	g := decodeHexParam(t, got.Params[0])
	assert.Equal(t, int32(4326), g.SRID())
	assert.Equal(t, geo.TypePoint, g.Type())
}

func TestCompile_LiteralKeepsOwnSRID(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Spatial{
		Op:    "intersects",
		Left:  filterir.Column{Name: "geom"},
		Right: lit(t, "SRID=4326;POINT (1 2)"),
	})
	require.NoError(t, err)

	g := decodeHexParam(t, got.Params[0])
	assert.Equal(t, int32(4326), g.SRID())
}

func TestCompile_SridMismatch(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Spatial{
		Op:    "within",
		Left:  filterir.Column{Name: "geom"},
		Right: lit(t, "SRID=3857;POINT (1 2)"),
	})

	require.Error(t, err)
	require.True(t, IsSridMismatch(err))
	var mismatch *SridMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "geom", mismatch.Column)
	assert.Equal(t, int32(4326), mismatch.ColumnSRID)
	assert.Equal(t, int32(3857), mismatch.LiteralSRID)
	assert.Equal(t, "within", mismatch.Operation)
}

func TestCompile_SridMismatchBetweenColumns(t *testing.T) {
	c := NewCompiler(crossSet(t), "places")

	_, err := c.Compile(filterir.Spatial{
		Op:    "intersects",
		Left:  filterir.Column{Name: "geom"},
		Right: filterir.Column{Name: "footprint"},
	})

	require.Error(t, err)
	var mismatch *SridMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "footprint", mismatch.Column)
	assert.Equal(t, int32(3857), mismatch.ColumnSRID)
	assert.Equal(t, int32(4326), mismatch.LiteralSRID)
}

func TestCompile_TransformBridgesSystems(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Spatial{
		Op: "within",
		Left: filterir.FuncCall{
			Op:   "transform",
			Args: []filterir.Expr{filterir.Column{Name: "geom"}, filterir.Literal{Value: 3857}},
		},
		Right: lit(t, "SRID=3857;POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))"),
	})

	require.NoError(t, err)
	assert.Equal(t, `Within(Transform("geom", ?), GeomFromEWKB(?))`, got.SQL)
	require.Len(t, got.Params, 2)
	assert.Equal(t, int64(3857), got.Params[0])
}

func TestCompile_TransformNeedsLiteralSRID(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Spatial{
		Op: "within",
		Left: filterir.FuncCall{
			Op:   "transform",
			Args: []filterir.Expr{filterir.Column{Name: "geom"}, filterir.Column{Name: "srid"}},
		},
		Right: lit(t, "POINT (1 2)"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "literal")
}

func TestCompile_TransformRejectsUnknownSource(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Spatial{
		Op: "within",
		Left: filterir.FuncCall{
			Op:   "transform",
			Args: []filterir.Expr{lit(t, "POINT (1 2)"), filterir.Literal{Value: 3857}},
		},
		Right: lit(t, "SRID=3857;POINT (1 2)"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "source reference system")
}

func TestCompile_BufferedLiteralInheritsColumnSRID(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Spatial{
		Op:   "intersects",
		Left: filterir.Column{Name: "geom"},
		Right: filterir.FuncCall{
			Op:   "buffer",
			Args: []filterir.Expr{lit(t, "POINT (1 2)"), filterir.Literal{Value: 10.0}},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, `Intersects("geom", Buffer(GeomFromEWKB(?), ?))`, got.SQL)
	require.Len(t, got.Params, 2)

	g := decodeHexParam(t, got.Params[0])
	assert.Equal(t, int32(4326), g.SRID())
	assert.Equal(t, 10.0, got.Params[1])
}

func TestCompile_EnvelopeOfColumn(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Spatial{
		Op:    "contains",
		Left:  filterir.FuncCall{Op: "envelope", Args: []filterir.Expr{filterir.Column{Name: "geom"}}},
		Right: lit(t, "POINT (1 2)"),
	})

	require.NoError(t, err)
	assert.Equal(t, `Contains(Envelope("geom"), GeomFromEWKB(?))`, got.SQL)
}

func TestCompile_DistanceComparison(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Compare{
		Op: filterir.CompareLe,
		Left: filterir.FuncCall{
			Op:   "distance",
			Args: []filterir.Expr{filterir.Column{Name: "geom"}, lit(t, "POINT (0 0)")},
		},
		Right: filterir.Literal{Value: 1000.0},
	})

	require.NoError(t, err)
	assert.Equal(t, `Distance("geom", GeomFromEWKB(?)) <= ?`, got.SQL)
	require.Len(t, got.Params, 2)
	assert.Equal(t, 1000.0, got.Params[1])
}

func TestCompile_DistanceWithin(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Spatial{
		Op:    "distance_lte",
		Left:  filterir.Column{Name: "geom"},
		Right: lit(t, "POINT (0 0)"),
		Extra: []filterir.Expr{filterir.Literal{Value: 500.0}},
	})

	require.NoError(t, err)
	assert.Equal(t, `PtDistWithin("geom", GeomFromEWKB(?), ?)`, got.SQL)
	assert.Equal(t, 500.0, got.Params[1])
}

func TestCompile_BeyondNegates(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Spatial{
		Op:    "beyond",
		Left:  filterir.Column{Name: "geom"},
		Right: lit(t, "POINT (0 0)"),
		Extra: []filterir.Expr{filterir.Literal{Value: 500.0}},
	})

	require.NoError(t, err)
	assert.Equal(t, `NOT PtDistWithin("geom", GeomFromEWKB(?), ?)`, got.SQL)
	assert.False(t, got.IndexUsable)
}

func TestCompile_UnknownOperation(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Spatial{
		Op:    "knn",
		Left:  filterir.Column{Name: "geom"},
		Right: lit(t, "POINT (0 0)"),
	})

	require.Error(t, err)
	assert.True(t, catalog.IsUnsupportedOperation(err))
}

func TestCompile_UnknownGeometryColumn(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Spatial{
		Op:    "intersects",
		Left:  filterir.Column{Name: "shape"},
		Right: lit(t, "POINT (0 0)"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a declared geometry column")
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	dangerous := "'; DROP TABLE places; --"
	got, err := c.Compile(filterir.Compare{
		Op:    filterir.CompareEq,
		Left:  filterir.Column{Name: "name"},
		Right: filterir.Literal{Value: dangerous},
	})
	require.NoError(t, err)

	assert.NotContains(t, got.SQL, dangerous,
		"value must not be interpolated into SQL")
	assert.Equal(t, `"name" = ?`, got.SQL)
	assert.Equal(t, []any{dangerous}, got.Params)
}

func TestCompile_AndOrdersIndexUsableFirst(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.And{
		Predicates: []filterir.Predicate{
			filterir.Compare{
				Op:    filterir.CompareEq,
				Left:  filterir.Column{Name: "name"},
				Right: filterir.Literal{Value: "market"},
			},
			filterir.Spatial{
				Op:    "bbox",
				Left:  filterir.Column{Name: "geom"},
				Right: lit(t, "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))"),
			},
		},
	})
	require.NoError(t, err)

	// The bounding-box leaf moves in front, and its parameter moves with
	// it so placeholders and values stay aligned.
	assert.Equal(t, `MbrIntersects("geom", GeomFromEWKB(?)) AND "name" = ?`, got.SQL)
	require.Len(t, got.Params, 2)
	g := decodeHexParam(t, got.Params[0])
	assert.Equal(t, geo.TypePolygon, g.Type())
	assert.Equal(t, "market", got.Params[1])
	assert.True(t, got.IndexUsable)
}

func TestCompile_AndKeepsRelativeOrder(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.And{
		Predicates: []filterir.Predicate{
			filterir.Compare{Op: filterir.CompareEq, Left: filterir.Column{Name: "a"}, Right: filterir.Literal{Value: 1}},
			filterir.Compare{Op: filterir.CompareEq, Left: filterir.Column{Name: "b"}, Right: filterir.Literal{Value: 2}},
			filterir.Compare{Op: filterir.CompareEq, Left: filterir.Column{Name: "c"}, Right: filterir.Literal{Value: 3}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, `"a" = ? AND "b" = ? AND "c" = ?`, got.SQL)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got.Params)
	assert.False(t, got.IndexUsable)
}

func TestCompile_OrUsableOnlyWhenAllBranchesAre(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	bbox := filterir.Spatial{
		Op:    "bbox",
		Left:  filterir.Column{Name: "geom"},
		Right: lit(t, "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))"),
	}
	attr := filterir.Compare{
		Op:    filterir.CompareEq,
		Left:  filterir.Column{Name: "name"},
		Right: filterir.Literal{Value: "x"},
	}

	allBox, err := c.Compile(filterir.Or{Predicates: []filterir.Predicate{bbox, bbox}})
	require.NoError(t, err)
	assert.True(t, allBox.IndexUsable)

	mixed, err := c.Compile(filterir.Or{Predicates: []filterir.Predicate{bbox, attr}})
	require.NoError(t, err)
	assert.False(t, mixed.IndexUsable)
}

func TestCompile_NotStripsIndexUsability(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Not{
		Predicate: filterir.Spatial{
			Op:    "bbox",
			Left:  filterir.Column{Name: "geom"},
			Right: lit(t, "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, `NOT (MbrIntersects("geom", GeomFromEWKB(?)))`, got.SQL)
	assert.False(t, got.IndexUsable)
}

func TestCompile_PrecedenceGrouping(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	eq := func(col string, v int) filterir.Predicate {
		return filterir.Compare{Op: filterir.CompareEq, Left: filterir.Column{Name: col}, Right: filterir.Literal{Value: v}}
	}

	got, err := c.Compile(filterir.And{
		Predicates: []filterir.Predicate{
			eq("a", 1),
			filterir.Or{Predicates: []filterir.Predicate{eq("b", 2), eq("c", 3)}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, `"a" = ? AND ("b" = ? OR "c" = ?)`, got.SQL)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got.Params)
}

func TestCompile_PointerNodes(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	spatial := intersectsGeom(t)
	got, err := c.Compile(&filterir.And{
		Predicates: []filterir.Predicate{
			&spatial,
			&filterir.Compare{
				Op:    filterir.CompareGt,
				Left:  &filterir.Column{Name: "height"},
				Right: &filterir.Literal{Value: 5},
			},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, got.SQL, `Intersects("geom", GeomFromEWKB(?))`)
	assert.Contains(t, got.SQL, `"height" > ?`)
	assert.Equal(t, int64(5), got.Params[1])
}

func TestCompile_ScalarPredicates(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	testCases := []struct {
		name       string
		pred       filterir.Predicate
		wantSQL    string
		wantParams []any
	}{
		{
			name: "between",
			pred: filterir.Between{
				Expr: filterir.Column{Name: "height"},
				Low:  filterir.Literal{Value: 1},
				High: filterir.Literal{Value: 10},
			},
			wantSQL:    `"height" BETWEEN ? AND ?`,
			wantParams: []any{int64(1), int64(10)},
		},
		{
			name: "not between",
			pred: filterir.Between{
				Expr: filterir.Column{Name: "height"},
				Low:  filterir.Literal{Value: 1},
				High: filterir.Literal{Value: 10},
				Not:  true,
			},
			wantSQL:    `"height" NOT BETWEEN ? AND ?`,
			wantParams: []any{int64(1), int64(10)},
		},
		{
			name: "like",
			pred: filterir.Like{
				Expr:    filterir.Column{Name: "name"},
				Pattern: filterir.Literal{Value: "Berlin%"},
			},
			wantSQL:    `"name" LIKE ?`,
			wantParams: []any{"Berlin%"},
		},
		{
			name: "ilike",
			pred: filterir.Like{
				Expr:            filterir.Column{Name: "name"},
				Pattern:         filterir.Literal{Value: "berlin%"},
				CaseInsensitive: true,
			},
			wantSQL:    `LOWER("name") LIKE LOWER(?)`,
			wantParams: []any{"berlin%"},
		},
		{
			name: "not like",
			pred: filterir.Like{
				Expr:    filterir.Column{Name: "name"},
				Pattern: filterir.Literal{Value: "%test%"},
				Not:     true,
			},
			wantSQL:    `"name" NOT LIKE ?`,
			wantParams: []any{"%test%"},
		},
		{
			name: "in",
			pred: filterir.In{
				Expr: filterir.Column{Name: "category"},
				List: []filterir.Expr{filterir.Literal{Value: "park"}, filterir.Literal{Value: "plaza"}},
			},
			wantSQL:    `"category" IN (?, ?)`,
			wantParams: []any{"park", "plaza"},
		},
		{
			name: "not in",
			pred: filterir.In{
				Expr: filterir.Column{Name: "category"},
				List: []filterir.Expr{filterir.Literal{Value: "park"}},
				Not:  true,
			},
			wantSQL:    `"category" NOT IN (?)`,
			wantParams: []any{"park"},
		},
		{
			name:       "is null",
			pred:       filterir.IsNull{Expr: filterir.Column{Name: "name"}},
			wantSQL:    `"name" IS NULL`,
			wantParams: nil,
		},
		{
			name:       "is not null",
			pred:       filterir.IsNull{Expr: filterir.Column{Name: "name"}, Not: true},
			wantSQL:    `"name" IS NOT NULL`,
			wantParams: nil,
		},
		{
			name: "arithmetic",
			pred: filterir.Compare{
				Op: filterir.CompareGt,
				Left: filterir.Arith{
					Op:    filterir.ArithAdd,
					Left:  filterir.Column{Name: "width"},
					Right: filterir.Literal{Value: 2},
				},
				Right: filterir.Literal{Value: 10},
			},
			wantSQL:    `("width" + ?) > ?`,
			wantParams: []any{int64(2), int64(10)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Compile(tc.pred)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, got.SQL)
			assert.Equal(t, tc.wantParams, got.Params)
		})
	}
}

func TestCompile_Vacuous(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	nilPred, err := c.Compile(nil)
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", nilPred.SQL)
	assert.Empty(t, nilPred.Params)

	emptyAnd, err := c.Compile(filterir.And{})
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", emptyAnd.SQL)

	emptyOr, err := c.Compile(filterir.Or{})
	require.NoError(t, err)
	assert.Equal(t, "0 = 1", emptyOr.SQL)

	emptyIn, err := c.Compile(filterir.In{Expr: filterir.Column{Name: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "0 = 1", emptyIn.SQL)

	emptyNotIn, err := c.Compile(filterir.In{Expr: filterir.Column{Name: "x"}, Not: true})
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", emptyNotIn.SQL)
}

func TestCompile_QuotedIdentifierEscapes(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	got, err := c.Compile(filterir.Compare{
		Op:    filterir.CompareEq,
		Left:  filterir.Column{Name: `na"me`},
		Right: filterir.Literal{Value: "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, `"na""me" = ?`, got.SQL)
}

func TestCompile_RejectsBadLiterals(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Compare{
		Op:    filterir.CompareEq,
		Left:  filterir.Column{Name: "name"},
		Right: filterir.Literal{Value: []int{1, 2}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported literal type")

	_, err = c.Compile(filterir.Compare{
		Op:    filterir.CompareEq,
		Left:  filterir.Column{Name: "name"},
		Right: lit(t, "POINT (1 2)"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spatial operation")
}

func TestCompile_BooleanOpIsNotAValue(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Compare{
		Op: filterir.CompareEq,
		Left: filterir.FuncCall{
			Op:   "intersects",
			Args: []filterir.Expr{filterir.Column{Name: "geom"}, lit(t, "POINT (0 0)")},
		},
		Right: filterir.Literal{Value: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition")
}

func TestCompile_GeometryOpIsNotACondition(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	_, err := c.Compile(filterir.Spatial{
		Op:    "buffer",
		Left:  filterir.Column{Name: "geom"},
		Right: filterir.Literal{Value: 10.0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition")
}

func TestCompile_GoldenSQL(t *testing.T) {
	set := testSet(t)
	c := NewCompiler(set, "places")

	point := lit(t, "POINT (13.4 52.5)")
	box := lit(t, "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))")

	testCases := []struct {
		name  string
		build func() (Compiled, error)
	}{
		{
			name: "intersects literal",
			build: func() (Compiled, error) {
				return c.Compile(filterir.Spatial{Op: "intersects", Left: filterir.Column{Name: "geom"}, Right: point})
			},
		},
		{
			name: "conjunction reorders bbox first",
			build: func() (Compiled, error) {
				return c.Compile(filterir.And{Predicates: []filterir.Predicate{
					filterir.Compare{Op: filterir.CompareEq, Left: filterir.Column{Name: "name"}, Right: filterir.Literal{Value: "patio"}},
					filterir.Spatial{Op: "bbox", Left: filterir.Column{Name: "geom"}, Right: box},
				}})
			},
		},
		{
			name: "distance within",
			build: func() (Compiled, error) {
				return c.Compile(filterir.Spatial{
					Op: "distance_lte", Left: filterir.Column{Name: "geom"}, Right: point,
					Extra: []filterir.Expr{filterir.Literal{Value: 1000.0}},
				})
			},
		},
		{
			name: "beyond negates",
			build: func() (Compiled, error) {
				return c.Compile(filterir.Spatial{
					Op: "beyond", Left: filterir.Column{Name: "geom"}, Right: point,
					Extra: []filterir.Expr{filterir.Literal{Value: 1000.0}},
				})
			},
		},
		{
			name: "transform retargets",
			build: func() (Compiled, error) {
				return c.Compile(filterir.Spatial{
					Op: "within",
					Left: filterir.FuncCall{
						Op:   "transform",
						Args: []filterir.Expr{filterir.Column{Name: "geom"}, filterir.Literal{Value: 3857}},
					},
					Right: lit(t, "SRID=3857;POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))"),
				})
			},
		},
		{
			name: "negation wraps",
			build: func() (Compiled, error) {
				return c.Compile(filterir.Not{Predicate: filterir.Spatial{Op: "disjoint", Left: filterir.Column{Name: "geom"}, Right: point}})
			},
		},
		{
			name: "scalar predicates",
			build: func() (Compiled, error) {
				return c.Compile(filterir.Or{Predicates: []filterir.Predicate{
					filterir.Compare{Op: filterir.CompareGt, Left: filterir.Column{Name: "quantity"}, Right: filterir.Literal{Value: 5}},
					filterir.Between{Expr: filterir.Column{Name: "height"}, Low: filterir.Literal{Value: 1}, High: filterir.Literal{Value: 10}},
				}})
			},
		},
		{
			name: "full select",
			build: func() (Compiled, error) {
				return c.CompileSelect(Select{
					Filter: filterir.Spatial{Op: "intersects", Left: filterir.Column{Name: "geom"}, Right: point},
					Limit:  10,
				})
			},
		},
	}

	var buf bytes.Buffer
	for _, tc := range testCases {
		got, err := tc.build()
		require.NoError(t, err, tc.name)
		fmt.Fprintf(&buf, "-- %s\n%s\nparams: %d\n\n", tc.name, got.SQL, len(got.Params))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "filters", buf.Bytes())
}

func TestCompile_FromCQL(t *testing.T) {
	c := NewCompiler(testSet(t), "places")

	testCases := []struct {
		name    string
		input   string
		wantSQL string
		params  int
	}{
		{
			name:    "intersects",
			input:   "INTERSECTS(geom, POINT (13.4 52.5))",
			wantSQL: `Intersects("geom", GeomFromEWKB(?))`,
			params:  1,
		},
		{
			name:    "bbox moves ahead of scalar",
			input:   "name = 'patio' AND BBOX(geom, 0, 0, 1, 1)",
			wantSQL: `MbrIntersects("geom", GeomFromEWKB(?)) AND "name" = ?`,
			params:  2,
		},
		{
			name:    "dwithin in kilometers",
			input:   "DWITHIN(geom, POINT (13.4 52.5), 1, kilometers)",
			wantSQL: `PtDistWithin("geom", GeomFromEWKB(?), ?)`,
			params:  2,
		},
		{
			name:    "negated disjoint in a disjunction",
			input:   "NOT DISJOINT(geom, POINT (1 2)) OR height > 10",
			wantSQL: `NOT (Disjoint("geom", GeomFromEWKB(?))) OR "height" > ?`,
			params:  2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pred, err := cql.Parse(tc.input)
			require.NoError(t, err)

			got, err := c.Compile(pred)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, got.SQL)
			assert.Len(t, got.Params, tc.params)
		})
	}

	t.Run("parsed literal inherits column srid", func(t *testing.T) {
		pred, err := cql.Parse("BBOX(geom, 0, 0, 1, 1)")
		require.NoError(t, err)

		got, err := c.Compile(pred)
		require.NoError(t, err)
		require.Len(t, got.Params, 1)
		g := decodeHexParam(t, got.Params[0])
		assert.Equal(t, geo.TypePolygon, g.Type())
		assert.Equal(t, int32(4326), g.SRID())
	})

	t.Run("converted distance is in meters", func(t *testing.T) {
		pred, err := cql.Parse("DWITHIN(geom, POINT (1 2), 2, kilometers)")
		require.NoError(t, err)

		got, err := c.Compile(pred)
		require.NoError(t, err)
		require.Len(t, got.Params, 2)
		assert.Equal(t, 2000.0, got.Params[1])
	})
}
