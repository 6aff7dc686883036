package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tally", cmd.Use)
	assert.Contains(t, cmd.Long, "append-only record streams")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"init"}, {"stats"}, {"digest"}, {"scan"}, {"validate"}, {"test"},
		{"credential", "issue"}, {"credential", "list"}, {"credential", "verify"}, {"credential", "stats"},
		{"message", "send"}, {"message", "read"}, {"message", "list"}, {"message", "unread"}, {"message", "stats"},
		{"reward", "record"}, {"reward", "show"}, {"reward", "history"}, {"reward", "claim"},
		{"trade", "execute"}, {"trade", "list"}, {"trade", "stats"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	defaults := map[string]string{
		"format":    "text",
		"db":        "tally.db",
		"backend":   "sqlite",
		"schemas":   "",
		"metrics":   "",
		"as":        "",
		"challenge": "",
		"signature": "",
	}
	for name, def := range defaults {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "flag --%s", name)
		assert.Equal(t, def, flag.DefValue, "flag --%s", name)
	}
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path []string
		flag string
		def  string
	}{
		{[]string{"scan"}, "limit", "0"},
		{[]string{"scan"}, "actor", ""},
		{[]string{"credential", "issue"}, "level", "1"},
		{[]string{"credential", "issue"}, "metadata-uri", ""},
		{[]string{"message", "list"}, "limit", "0"},
		{[]string{"reward", "history"}, "limit", "0"},
		{[]string{"trade", "execute"}, "buy", "false"},
		{[]string{"test"}, "update", "false"},
		{[]string{"test"}, "golden", ""},
	}

	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		flag := sub.Flags().Lookup(tt.flag)
		require.NotNil(t, flag, "%v --%s", tt.path, tt.flag)
		assert.Equal(t, tt.def, flag.DefValue)
	}

	credential, _, err := cmd.Find([]string{"credential"})
	require.NoError(t, err)
	assert.NotNil(t, credential.PersistentFlags().Lookup("issuers"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "digest"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestInvalidBackend(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "redis", "digest"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid backend "redis"`)
}

func TestSignatureRequiresAs(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--signature", "0x00", "digest"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--signature requires --as")
}
