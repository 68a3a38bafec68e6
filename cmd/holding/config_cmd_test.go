// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/holding-console/holding/internal/config"
)

func TestConfigSchemaCommand(t *testing.T) {
	out, err := execute(t, "", "config", "schema")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, config.SchemaID, doc["$id"])
}

func TestConfigShowCommand(t *testing.T) {
	isolateEnv(t)
	t.Setenv(config.EnvDatabaseURL, "postgres://holding:s3cret@db:5432/holding")

	path := filepath.Join(t.TempDir(), "holding.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\nmetrics:\n  addr: 127.0.0.1:9100\n"), 0o600))

	out, err := execute(t, "", "--config", path, "config", "show", "--addr", "127.0.0.1:8080")
	require.NoError(t, err)

	assert.Contains(t, out, "# source: "+path)
	assert.NotContains(t, out, "s3cret")

	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "postgres", shown.Store.Driver)
	assert.Equal(t, "127.0.0.1:8080", shown.HTTP.Addr)
	assert.Equal(t, "127.0.0.1:9100", shown.Metrics.Addr)
	assert.Contains(t, shown.Store.PostgresURL, "holding:xxxxx@db:5432")
}

func TestConfigShowCommand_InvalidConfig(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "", "config", "show", "--store", "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.postgres_url is required")
}
