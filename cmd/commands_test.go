package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/assessment-cli/internal/api"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/store"
)

// cliEnv points the CLI at a fresh SQLite file through the environment and
// returns its path.
func cliEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	dsn := filepath.Join(dir, "cli.db")
	t.Setenv("ASSESS_STORE_DRIVER", "sqlite")
	t.Setenv("ASSESS_STORE_DATABASE_URL", dsn)
	t.Setenv("ASSESS_LOG_LEVEL", "error")
	return dsn
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedCLI(t *testing.T, dsn string, status model.Status) *model.Assessment {
	t.Helper()
	st, err := store.NewSQLite(dsn)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	a := &model.Assessment{
		UserID: "owner-1",
		Type:   model.TypeInterviewPrep,
		Tier:   model.TierBasic,
		Status: status,
	}
	require.NoError(t, st.CreateAssessment(context.Background(), a))
	require.NoError(t, st.RecordAttempt(context.Background(), &model.Attempt{
		AssessmentID: a.ID,
		Number:       1,
		Backend:      "assistant",
		Outcome:      model.AttemptTransient,
	}))
	return a
}

func TestMigrateCommand(t *testing.T) {
	cliEnv(t)
	_, err := runCLI(t, "migrate")
	require.NoError(t, err)
}

func TestStatusCommand(t *testing.T) {
	dsn := cliEnv(t)
	a := seedCLI(t, dsn, model.StatusSubmitted)

	out, err := runCLI(t, "status", a.ID)
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "submitted", view["status"])
	assert.NotContains(t, view, "attempts")
}

func TestStatusCommand_WithAttempts(t *testing.T) {
	dsn := cliEnv(t)
	a := seedCLI(t, dsn, model.StatusError)

	out, err := runCLI(t, "status", a.ID, "--attempts")
	statusAttempts = false
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "error", view["status"])
	attempts, ok := view["attempts"].([]any)
	require.True(t, ok)
	assert.Len(t, attempts, 1)
}

func TestStatusCommand_NotFound(t *testing.T) {
	cliEnv(t)
	_, err := runCLI(t, "status", "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestRequeueCommand_NeedsRedis(t *testing.T) {
	cliEnv(t)
	_, err := runCLI(t, "requeue")
	assert.ErrorContains(t, err, "queue.driver=redis")
}

func TestTokenCommand(t *testing.T) {
	cliEnv(t)
	t.Setenv("ASSESS_AUTH_JWT_SECRET", "cli-secret")

	out, err := runCLI(t, "token", "user-42")
	require.NoError(t, err)

	claims, err := api.NewAuthenticator("cli-secret", "").Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
}

func TestTokenCommand_NeedsSecret(t *testing.T) {
	cliEnv(t)
	_, err := runCLI(t, "token", "user-42")
	assert.ErrorContains(t, err, "jwt_secret")
}
