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

func TestSchemaValidate(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewSchemaCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"validate", schemaPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ 1 table(s), 1 geometry column(s)")
	assert.Contains(t, output, "places.geom")
	assert.Contains(t, output, "POINT")
	assert.Contains(t, output, "srid=4326")
	assert.Contains(t, output, "indexed")
}

func TestSchemaValidateJSON(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewSchemaCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"validate", schemaPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	cols, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, cols, 1)

	col := cols[0].(map[string]interface{})
	assert.Equal(t, "places", col["table"])
	assert.Equal(t, "geom", col["column"])
	assert.Equal(t, "POINT", col["type"])
	assert.Equal(t, float64(4326), col["srid"])
	assert.Equal(t, "XY", col["dims"])
	assert.Equal(t, true, col["index"])
}

func TestSchemaValidateBadDeclaration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	src := `tables: places: {
	geometry: geom: {type: "POINT"}
}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewSchemaCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"validate", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "schema_error")
	assert.Contains(t, output, "srid is required")
}

func TestSchemaValidateMissingFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewSchemaCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"validate", "/nonexistent/places.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSchemaApplyRequiresDB(t *testing.T) {
	schemaPath := writeSchemaFile(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewSchemaCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"apply", schemaPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "--db is required")
}
