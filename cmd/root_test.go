package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"hiring-data-sync/internal/display"
)

// execute runs the root command with args and captures both streams
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("S3_BUCKET_NAME", "")

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "today", "abc", "go1.25")
	defer SetVersionInfo("dev", "unknown", "unknown", "unknown")

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hiring-data-sync version 1.2.3")
	assert.Contains(t, out, "Commit: abc")
}

func TestConfigCommand_PrintsDefaults(t *testing.T) {
	out, _, err := execute(t, "config")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	for _, section := range []string{"database", "snapshot", "migration", "logging", "lock", "display"} {
		assert.Contains(t, doc, section)
	}
	assert.Contains(t, out, "DATABASE_URL")
}

func TestConfigValidate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "database:\n  host: db\n  username: loader\n  database: hiring\n" +
		"snapshot:\n  storage:\n    provider: local\n    local:\n      base_path: " + t.TempDir() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	out, _, err := execute(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "loader@db:3306/hiring")
}

func TestConfigValidate_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  hostname: db\n"), 0600))

	_, errOut, err := execute(t, "config", "validate", path)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, errOut, "cannot parse config file")
}

func TestMigrate_RequiresTableOrAll(t *testing.T) {
	_, _, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --table or --all is required")
}

func TestRestore_RequiresTable(t *testing.T) {
	_, _, err := execute(t, "restore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table")
}

func TestSampleConfig_Loads(t *testing.T) {
	data, err := sampleConfig()
	require.NoError(t, err)

	var dc struct {
		Display display.DisplayConfig `yaml:"display"`
	}
	require.NoError(t, yaml.Unmarshal(data, &dc))
	assert.Equal(t, display.FormatTable, dc.Display.OutputFormat)
	assert.True(t, dc.Display.ColorEnabled)
}
