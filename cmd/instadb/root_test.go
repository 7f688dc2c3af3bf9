package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKnownCommand(t *testing.T) {
	assert.True(t, isKnownCommand(rootCmd, "scrape"))
	assert.True(t, isKnownCommand(rootCmd, "config"))
	assert.False(t, isKnownCommand(rootCmd, "natgeo"))
}

func TestAccountAliasRunsScrape(t *testing.T) {
	rootCmd.SetArgs([]string{"not/a valid name"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid account name")
	assert.Equal(t, 1, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 130, exitCode(context.Canceled))
	assert.Equal(t, 130, exitCode(fmt.Errorf("fetching page 2: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(fmt.Errorf("boom")))
}
