package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/domain/signal"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCatalogValidateBuiltin(t *testing.T) {
	out, err := execute(t, "catalog", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
}

func TestCatalogValidateRejectsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"x\"\nthemes: []\n"), 0o600))

	_, err := execute(t, "catalog", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "theme catalog is empty")
}

func TestIngestAndPurge(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "brandpulse.db")
	batch := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(batch, []byte(`[
		{"platform":"reddit","source_id":"r1","text":"Gusto payroll is too expensive","created_at":"2024-06-03T10:00:00Z"},
		{"platform":"twitter","source_id":"t1","text":"Gusto is so easy to use","created_at":"2024-06-03T11:00:00Z"},
		{"platform":"twitter","source_id":"t2","created_at":"2024-06-03T11:00:00Z"}
	]`), 0o600))

	out, err := execute(t, "--sqlite", db, "--output", "json", "ingest", batch)
	require.NoError(t, err)

	var report signal.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Received)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Processed)

	out, err = execute(t, "--sqlite", db, "purge", signal.PostID("reddit", "r1"))
	require.NoError(t, err)
	assert.Contains(t, out, "Purged post")

	_, err = execute(t, "--sqlite", db, "purge", signal.PostID("reddit", "r1"))
	assert.ErrorIs(t, err, signal.ErrNotFound)
}

func TestReprocessValidatesRange(t *testing.T) {
	_, err := execute(t, "reprocess", "--from", "2024-06-08", "--to", "2024-06-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--from must be before --to")

	_, err = execute(t, "reprocess", "--from", "June")
	require.Error(t, err)
}

func TestIngestRejectsMissingFile(t *testing.T) {
	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
