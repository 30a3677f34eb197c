package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-backend/internal/bootstrap"
	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/shared/config"
	"maintenance-backend/internal/staging"
)

const submission = `{
  "checklistId": "chk-77",
  "assetId": "PUMP-01",
  "assetName": "Bomba principal",
  "priorityMode": "global",
  "globalPriority": "Media",
  "items": [
    {"id": "i-1", "description": "Fuga de aceite", "status": "fail"},
    {"id": "i-2", "description": "Correa floja", "status": "flag"}
  ]
}`

func useTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	app, err := bootstrap.Build(config.Config{Env: "test", LocalStoreDir: t.TempDir()})
	require.NoError(t, err)
	prev := buildApp
	buildApp = func() (*bootstrap.App, error) { return app, nil }
	t.Cleanup(func() { buildApp = prev })
	return app
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateFromStdin(t *testing.T) {
	useTestApp(t)

	out, err := run(t, submission, "generate", "-")
	require.NoError(t, err)

	var result consolidation.SubmissionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.NewWorkOrders)
	assert.Zero(t, result.Failed)
}

func TestCheckAfterGenerateFindsMatch(t *testing.T) {
	useTestApp(t)
	_, err := run(t, submission, "generate", "-")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "check.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"assetId":"PUMP-01","items":[{"id":"n-1","description":"Fuga de aceite en motor","status":"fail"}]}`), 0o600))

	out, err := run(t, "", "check", path)
	require.NoError(t, err)

	var resp consolidation.CheckSimilarResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1)
	assert.Len(t, resp.Results[0].Matches, 1)
	assert.True(t, resp.Results[0].ConsolidationRecommended)
}

func TestStageThenReplay(t *testing.T) {
	app := useTestApp(t)

	out, err := run(t, submission, "stage", "-")
	require.NoError(t, err)
	var receipt staging.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	assert.Equal(t, "submissions/chk-77.json", receipt.StorageKey)
	assert.False(t, receipt.Enqueued)

	out, err = run(t, "", "replay", "chk-77", "--request-id", "req-1")
	require.NoError(t, err)
	var result consolidation.SubmissionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.NewWorkOrders)

	list, err := app.ConsolidationService.ListWorkOrders(t.Context(), "PUMP-01")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestValidationErrorListsFields(t *testing.T) {
	useTestApp(t)

	_, err := run(t, `{"assetId":"PUMP-01","items":[]}`, "generate", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items")
}

func TestListRequiresAsset(t *testing.T) {
	useTestApp(t)

	_, err := run(t, "", "list")
	require.Error(t, err)
}

func TestMigrateWithoutDatabase(t *testing.T) {
	useTestApp(t)

	_, err := run(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
