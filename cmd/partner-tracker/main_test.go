package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingConfigReturnsError(t *testing.T) {
	err := run(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "load configuration")
}

func TestRun_UnreachableStoreReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
participants:
  self: {name: Ruth, slot: ruthlocation}
  partner: {name: Femi, slot: femilocation}
store:
  backend: nats
  nats: {url: "nats://127.0.0.1:1"}
location:
  maps_api_key: test-key
`), 0o600))

	err := run(path)
	assert.ErrorContains(t, err, "open nats slot store")
}
