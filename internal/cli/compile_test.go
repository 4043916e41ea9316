package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.cue")
	src := `tables: places: {
	geometry: geom: {type: "POINT", srid: 4326, index: true}
}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestCompileIntersects(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"INTERSECTS(geom, POINT (1 2))", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled filter for places")
	assert.Contains(t, output, `Intersects("geom", GeomFromEWKB(?))`)
	assert.Contains(t, output, "?1 = ")
	assert.Contains(t, output, "index usable: false")
}

func TestCompileBBoxIsIndexUsable(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"BBOX(geom, -10, 40, 10, 60)", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "MbrIntersects")
	assert.Contains(t, output, "index usable: true")
}

func TestCompileJSON(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"INTERSECTS(geom, POINT (1 2))", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "places", data["table"])
	assert.Contains(t, data["sql"], "Intersects")
	assert.Len(t, data["params"], 1)
	assert.Equal(t, false, data["index_usable"])
}

func TestCompileParseError(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"name =", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "parse_error")
}

func TestCompileSridMismatch(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"INTERSECTS(geom, SRID=3857;POINT (1 2))", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "srid_mismatch")
	assert.Contains(t, output, "3857")
}

func TestCompileUnknownColumn(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"INTERSECTS(shape, POINT (1 2))", "--schema", schemaPath, "--table", "places"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "not a declared geometry column")
}

func TestCompileMissingSchemaFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"name = 5", "--schema", "/nonexistent/places.cue", "--table", "places"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileWithBindFile(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	bindPath := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(bindPath, []byte(
		"area: POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))\nlimit: 3\n"), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"INTERSECTS(geom, ${area})", "--schema", schemaPath, "--table", "places", "--bind", bindPath})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `Intersects("geom", GeomFromEWKB(?))`)
}
