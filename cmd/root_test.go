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

	for _, name := range []string{"harmonize", "retrieve", "batch", "serve", "sections", "corpus", "migrate", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "aalabel", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestHarmonizeCommand_Flags(t *testing.T) {
	for _, name := range []string{"product", "jurisdictions", "sections", "report", "embedding-model", "model", "top-k", "threshold"} {
		require.NotNil(t, harmonizeCmd.Flags().Lookup(name), "harmonize should have --%s", name)
	}
	assert.Equal(t, "-1", harmonizeCmd.Flags().Lookup("threshold").DefValue)
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("manifest")
	require.NotNil(t, flag)
	assert.Equal(t, "products.yaml", flag.DefValue)
	require.NotNil(t, batchCmd.Flags().Lookup("fail-fast"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCorpusCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range corpusCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["load"])
	assert.True(t, names["stats"])
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
	assert.True(t, names["check"])
	require.NotNil(t, runsCheckCmd.Flags().Lookup("notify"))
}
