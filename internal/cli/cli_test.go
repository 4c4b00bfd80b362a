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

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		// флаги пакетного уровня сохраняются между вызовами
		typesDir, checkDir, checkProbe, lintVerbose = "", "", false, false
	})
	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

const customYAML = `
type: statuspage
display_name: Statuspage
fields:
  - name: api_key
    required: true
    sensitive: true
scopes:
  - name: read:incidents
    mandatory: true
mapping:
  source: statuspage
  id:
    keys: [id]
  fingerprint_fields: [id]
`

func TestTypesCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "statuspage.yaml"), []byte(customYAML), 0o600))

	out, err := run(t, "types", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "n8n")
	assert.Contains(t, out, "webhook,api")
	assert.Contains(t, out, "read:cases*,read:assignments")
	assert.Contains(t, out, "statuspage")
}

func TestLintCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "statuspage.yaml"), []byte(customYAML), 0o600))

	out, err := run(t, "lint", "--verbose", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok  statuspage (alerts)")
	assert.Contains(t, out, "1 definition(s) valid")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pega.yaml"), []byte("type: pega\nscopes: [{name: x, mandatory: true}]\n"), 0o600))
	_, err = run(t, "lint", dir)
	assert.ErrorContains(t, err, "duplicate connector type")
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "check", "alkami", "api_key=secret")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "alkami", report["type"])
	config := report["config"].(map[string]any)
	assert.Equal(t, "********", config["api_key"])
	assert.Equal(t, "https://api.alkami.com", config["api_url"])

	_, err = run(t, "check", "alkami")
	assert.ErrorContains(t, err, `missing required field "api_key"`)

	_, err = run(t, "check", "alkami", "api_key")
	assert.ErrorContains(t, err, "expected field=value")

	_, err = run(t, "check", "nope")
	assert.ErrorContains(t, err, "unknown connector type")
}

func TestCheckCommand_ProbeWithoutEndpoint(t *testing.T) {
	out, err := run(t, "check", "--probe", "alkami", "api_key=secret")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, map[string]any{"read:alerts": true}, report["scopes"])
}
