package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetDemoFlagsForTest restores demo's flag-related globals and marks
// every relevant flag as unchanged, the state applyFileConfig expects
// to see before a command-line flag has been parsed.
func resetDemoFlagsForTest(t *testing.T) {
	t.Helper()
	logLevel, logJSON = "info", false
	demoIdentityTTL, demoCredentialTTL = 24*time.Hour, time.Hour
	demoPolicyAttr, demoPolicyValue = "role", "operator"

	for _, name := range []string{"log-level", "log-json"} {
		f := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f)
		f.Changed = false
	}
	for _, name := range []string{"identity-ttl", "credential-ttl", "policy-attribute", "policy-value"} {
		f := demoCmd.Flags().Lookup(name)
		require.NotNil(t, f)
		f.Changed = false
	}
}

func TestApplyFileConfigOverridesUnchangedFlags(t *testing.T) {
	resetDemoFlagsForTest(t)
	t.Cleanup(func() { resetDemoFlagsForTest(t) })

	applyFileConfig(fileConfig{
		LogLevel:      "debug",
		LogJSON:       true,
		IdentityTTL:   time.Minute,
		CredentialTTL: 2 * time.Minute,
		PolicyAttr:    "team",
		PolicyValue:   "sre",
	})

	assert.Equal(t, "debug", logLevel)
	assert.True(t, logJSON)
	assert.Equal(t, time.Minute, demoIdentityTTL)
	assert.Equal(t, 2*time.Minute, demoCredentialTTL)
	assert.Equal(t, "team", demoPolicyAttr)
	assert.Equal(t, "sre", demoPolicyValue)
}

func TestApplyFileConfigNeverOverridesAnExplicitFlag(t *testing.T) {
	resetDemoFlagsForTest(t)
	t.Cleanup(func() { resetDemoFlagsForTest(t) })

	logLevel = "warn"
	rootCmd.PersistentFlags().Lookup("log-level").Changed = true

	applyFileConfig(fileConfig{LogLevel: "debug"})

	assert.Equal(t, "warn", logLevel, "a flag the user set explicitly must win over the config file")
}

func TestApplyFileConfigIgnoresZeroDurationsAndEmptyStrings(t *testing.T) {
	resetDemoFlagsForTest(t)
	t.Cleanup(func() { resetDemoFlagsForTest(t) })

	applyFileConfig(fileConfig{})

	assert.Equal(t, 24*time.Hour, demoIdentityTTL)
	assert.Equal(t, time.Hour, demoCredentialTTL)
	assert.Equal(t, "role", demoPolicyAttr)
	assert.Equal(t, "operator", demoPolicyValue)
}
