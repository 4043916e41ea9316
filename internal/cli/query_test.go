package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobyn/gaiaq/geo"
	"github.com/tobyn/gaiaq/schema"
	"github.com/tobyn/gaiaq/spatialite"
)

func TestQueryRequiresDB(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"height > 5", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "--db is required")
}

func TestQueryParseErrorBeforeOpen(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", DB: filepath.Join(t.TempDir(), "q.db")}
	cmd := NewQueryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"name =", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "parse_error")
}

func TestOutputValue(t *testing.T) {
	g, err := geo.NewPoint(4326, 1, 2)
	require.NoError(t, err)

	rendered := outputValue(g)
	s, ok := rendered.(string)
	require.True(t, ok)
	assert.Contains(t, s, "SRID=4326")
	assert.Contains(t, s, "POINT")

	assert.Equal(t, "hello", outputValue([]byte("hello")))
	assert.Equal(t, int64(7), outputValue(int64(7)))
	assert.Nil(t, outputValue(nil))
}

func TestRowsForOutput(t *testing.T) {
	g, err := geo.NewPoint(4326, 1, 2)
	require.NoError(t, err)

	rows := []spatialite.Row{
		{"rowid": int64(1), "geom": g, "name": []byte("berlin")},
	}
	out := rowsForOutput(rows)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0]["rowid"])
	assert.Equal(t, "berlin", out[0]["name"])
	assert.Contains(t, out[0]["geom"], "POINT")
}

func TestColumnOrder(t *testing.T) {
	set, err := schema.Compile([]byte(`
tables: places: {
	geometry: {
		geom: {type: "POINT", srid: 4326}
		area: {type: "POLYGON", srid: 4326}
	}
}
`), "places.cue")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "geom"}, columnOrder(set, "places", []string{"name", "geom"}))

	order := columnOrder(set, "places", nil)
	require.NotEmpty(t, order)
	assert.Equal(t, "rowid", order[0])
	assert.ElementsMatch(t, []string{"geom", "area"}, order[1:])
}
