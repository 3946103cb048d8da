package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupConfig writes a config pointing at a fresh SQLite file.
func setupConfig(t *testing.T, extra string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "platectl.yaml")
	body := "tenant: tenant-a\n" +
		"store:\n" +
		"  driver: sqlite\n" +
		"  dsn: file:" + filepath.Join(dir, "plate.db") + "\n" +
		extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// execute runs platectl with args and returns stdout.
func execute(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	root := newRootCmd(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, cfg string, args ...string) map[string]any {
	t.Helper()
	out, err := execute(t, cfg, args...)
	require.NoError(t, err, "platectl %v", args)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestRootShowsHelp(t *testing.T) {
	out := new(bytes.Buffer)
	root := newRootCmd(out)
	root.SetOut(out)
	root.SetArgs(nil)

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "reserve")
}

func TestMigrate(t *testing.T) {
	cfg := setupConfig(t, "")
	got := mustExecute(t, cfg, "migrate")
	assert.Equal(t, "migrated", got["status"])
}

func TestLifecycle(t *testing.T) {
	cfg := setupConfig(t, "")

	created := mustExecute(t, cfg, "create",
		"--product", "sku-1", "--warehouse", "wh-1", "--qty", "100", "--uom", "ea", "--qa", "passed")
	lpID, _ := created["id"].(string)
	require.NotEmpty(t, lpID)
	assert.Equal(t, "available", created["status"])

	reserved := mustExecute(t, cfg, "reserve", lpID, "--demand", "so-1", "--qty", "40")
	rsv, _ := reserved["reservation"].(map[string]any)
	require.NotNil(t, rsv)
	rsvID, _ := rsv["id"].(string)
	require.NotEmpty(t, rsvID)

	split := mustExecute(t, cfg, "split", lpID, "--qty", "25")
	newPlate, _ := split["new"].(map[string]any)
	require.NotNil(t, newPlate)

	consumed := mustExecute(t, cfg, "consume", rsvID)
	plate, _ := consumed["license_plate"].(map[string]any)
	require.NotNil(t, plate)
	assert.Equal(t, "35", plate["quantity"])

	trace := mustExecute(t, cfg, "trace", lpID)
	nodes, _ := trace["nodes"].([]any)
	assert.Len(t, nodes, 1)
}

func TestReserveRejectsOverCommit(t *testing.T) {
	cfg := setupConfig(t, "")

	created := mustExecute(t, cfg, "create",
		"--product", "sku-1", "--warehouse", "wh-1", "--qty", "10", "--uom", "ea", "--qa", "passed")
	lpID := created["id"].(string)

	_, err := execute(t, cfg, "reserve", lpID, "--demand", "so-1", "--qty", "11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXCEEDS_AVAILABLE_QUANTITY")
}

func TestSplitDisabledByConfig(t *testing.T) {
	cfg := setupConfig(t, "split_merge:\n  split: false\n")

	created := mustExecute(t, cfg, "create",
		"--product", "sku-1", "--warehouse", "wh-1", "--qty", "10", "--uom", "ea", "--qa", "passed")

	_, err := execute(t, cfg, "split", created["id"].(string), "--qty", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPLIT_MERGE_DISABLED")
}

func TestRequiresTenant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600))

	_, err := execute(t, path, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tenant")

	out, err := execute(t, path, "--tenant", "tenant-b", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated")
}

func TestInvalidArguments(t *testing.T) {
	cfg := setupConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"bad plate id", []string{"get", "rsv_01h455vb4pex5vsknk084sn02q"}},
		{"bad quantity", []string{"create", "--product", "p", "--warehouse", "w", "--qty", "ten", "--uom", "ea"}},
		{"bad date", []string{"create", "--product", "p", "--warehouse", "w", "--qty", "1", "--uom", "ea", "--expiry", "01/02/2025"}},
		{"bad direction", []string{"trace", "lp_01h455vb4pex5vsknk084sn02q", "--direction", "sideways"}},
		{"merge needs two", []string{"merge", "lp_01h455vb4pex5vsknk084sn02q"}},
		{"unknown policy", []string{"--config", writeConfig(t, "tenant: t\nstore:\n  driver: memory\nover_commit_policy: maybe\n"), "migrate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, cfg, tt.args...)
			assert.Error(t, err)
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "platectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
