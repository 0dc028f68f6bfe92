package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/inatfetch/internal/config"
)

func parseCLI(t *testing.T, args ...string) *CLI {
	t.Helper()
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, nil, 0o644))

	var cli CLI
	parser, err := kong.New(&cli, defaultVars())
	require.NoError(t, err)
	_, err = parser.Parse(append([]string{"--env-file", envFile}, args...))
	require.NoError(t, err)
	return &cli
}

func TestFetchDefaultsMatchConfig(t *testing.T) {
	cli := parseCLI(t, "fetch")

	got := cli.Fetch.config(cli)
	assert.Equal(t, config.Default(), got)
	assert.NoError(t, got.Validate())
}

func TestFetchFlagsOverrideDefaults(t *testing.T) {
	cli := parseCLI(t, "fetch", "--species", "Rubus ursinus", "--value-id", "13", "--format", "xlsx", "--observations-ttl", "1m")

	got := cli.Fetch.config(cli)
	assert.Equal(t, "Rubus ursinus", got.SpeciesName)
	assert.Equal(t, int64(13), got.ValueID)
	assert.Equal(t, []string{"xlsx"}, got.Formats)
	assert.Equal(t, "1m0s", got.ObservationsTTL.String())
	assert.Equal(t, config.DefaultPlace, got.PlaceName)
}
