package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "worker", "analyze", "status", "requeue", "migrate", "token"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "assessment-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	for _, name := range []string{"no-workers", "check-interval", "stale-after", "sweep-stale"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), "serve should have --%s", name)
	}
}

func TestWorkerCommand_Flags(t *testing.T) {
	flag := workerCmd.Flags().Lookup("metrics-addr")
	require.NotNil(t, flag)
	assert.Equal(t, ":9090", flag.DefValue)

	flag = workerCmd.Flags().Lookup("sweep-stale")
	require.NotNil(t, flag)
	assert.Equal(t, "true", flag.DefValue)
}

func TestRequeueCommand_Flags(t *testing.T) {
	flag := requeueCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)

	flag = requeueCmd.Flags().Lookup("min-age")
	require.NotNil(t, flag)
	assert.Equal(t, "5m0s", flag.DefValue)
}

func TestArgsValidation(t *testing.T) {
	assert.Error(t, analyzeCmd.Args(analyzeCmd, nil))
	assert.NoError(t, analyzeCmd.Args(analyzeCmd, []string{"id"}))
	assert.Error(t, statusCmd.Args(statusCmd, []string{"a", "b"}))
	assert.Error(t, tokenCmd.Args(tokenCmd, nil))
}
