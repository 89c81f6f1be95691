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

	expected := []string{"import", "enrich", "email", "followup", "campaign", "job", "maintenance", "status", "usage", "migrate", "serve", "worker"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "recruit-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.True(t, rootCmd.SilenceUsage)
	for _, name := range []string{"import", "enrich", "campaign", "followup", "worker", "serve", "status"} {
		assert.Contains(t, rootCmd.Long, name)
	}
}

func TestGroupCommands_HaveSubcommands(t *testing.T) {
	cases := map[string][]string{
		"enrich":      {"queue", "run"},
		"email":       {"run", "add-sender"},
		"campaign":    {"create", "launch", "followups", "set-status"},
		"maintenance": {"reset-stuck"},
		"job":         {"create"},
	}
	for parent, children := range cases {
		cmd, _, err := rootCmd.Find([]string{parent})
		require.NoError(t, err, parent)
		names := make(map[string]bool)
		for _, c := range cmd.Commands() {
			names[c.Name()] = true
		}
		for _, child := range children {
			assert.True(t, names[child], "%s should have subcommand %q", parent, child)
		}
	}
}

func TestFlags_Defaults(t *testing.T) {
	flag := resetStuckCmd.Flags().Lookup("older-than")
	require.NotNil(t, flag)
	assert.Equal(t, "30m0s", flag.DefValue)

	flag = serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)

	flag = importCmd.Flags().Lookup("strategy")
	require.NotNil(t, flag)
	assert.Equal(t, "merge_best", flag.DefValue)

	for _, name := range []string{"temporal", "once"} {
		assert.NotNil(t, workerCmd.Flags().Lookup(name), "worker should have --%s", name)
	}
}
