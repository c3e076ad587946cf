package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "reconcile"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
	assert.NotNil(t, rootCmd.RunE, "root should serve by default")
}

func TestFlags(t *testing.T) {
	cfgFlag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "config.json", cfgFlag.DefValue)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))

	guildFlag := reconcileCmd.Flags().Lookup("guild")
	require.NotNil(t, guildFlag)
	assert.Equal(t, "", guildFlag.DefValue)
}
