package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"
)

func TestFlagName(t *testing.T) {
	ty := reflect.TypeOf(Generate{})
	for field, want := range map[string]string{
		"GIR":          "gir",
		"IncludeDir":   "include-dir",
		"AllowPartial": "allow-partial",
		"Format":       "summary-format",
	} {
		f, ok := ty.FieldByName(field)
		require.True(t, ok, field)
		assert.Equal(t, want, flagName(f))
	}
}

func TestConfigInitJSON(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "generate.json")
	require.NoError(t, (&ConfigInit{Command: "generate", Format: "json", Output: dest}).Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, "./bindings", cfg["output"])
	assert.Equal(t, []any{"/usr/share/gir-1.0"}, cfg["include-dir"])
	assert.Equal(t, false, cfg["strict"])
	assert.Equal(t, "text", cfg["summary-format"])

	err = (&ConfigInit{Command: "generate", Format: "json", Output: dest}).Run()
	assert.ErrorContains(t, err, "--force")
	assert.NoError(t, (&ConfigInit{Command: "generate", Format: "json", Output: dest, Force: true}).Run())
}

func TestConfigInitYAML(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "generate.yaml")
	require.NoError(t, (&ConfigInit{Command: "generate", Format: "yml", Output: dest}).Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, 0, cfg["jobs"])
	assert.Contains(t, cfg, "overrides")
}

func TestConfigInitTOML(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "generate.toml")
	require.NoError(t, (&ConfigInit{Command: "generate", Format: "toml", Output: dest}).Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "summary-format")
	assert.Contains(t, string(data), "/usr/share/gir-1.0")
}

func TestConfigInitRejectsUnknownFormat(t *testing.T) {
	err := (&ConfigInit{Command: "generate", Format: "ini", Output: filepath.Join(t.TempDir(), "x")}).Run()
	assert.ErrorContains(t, err, "unsupported format")
}
