package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *cobra.Command {
	logger := log.New(log.ConsoleWriter{Out: os.Stderr})
	opts := NewOptions(WithContext(context.Background()), WithLogger(logger))

	return NewCommand(opts)
}

func TestNewCommand(t *testing.T) {
	cmd := newTestCommand()

	require.Equal(t, "ktally", cmd.Name())
	require.Contains(t, cmd.Short, "Kernel event")
	require.NotEmpty(t, cmd.Long)
	require.True(t, cmd.DisableAutoGenTag)
	require.True(t, cmd.HasSubCommands())
}

func TestCommandPersistentFlags(t *testing.T) {
	cmd := newTestCommand()

	tests := []struct {
		name     string
		typ      string
		defValue string
	}{
		{"log-level", "string", "info"},
		{"probe-dir", "string", "output"},
		{"metrics-addr", "string", ""},
		{"trace-pipe", "bool", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, flag)
			require.Equal(t, tt.typ, flag.Value.Type())
			require.Equal(t, tt.defValue, flag.DefValue)
		})
	}
}

func TestCommandSubcommands(t *testing.T) {
	cmd := newTestCommand()

	actual := make([]string, 0)
	for _, sub := range cmd.Commands() {
		actual = append(actual, sub.Name())
	}
	require.Contains(t, actual, "syscount")
	require.Contains(t, actual, "critstat")
}

func TestCommandHelp(t *testing.T) {
	cmd := newTestCommand()

	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	help := output.String()
	require.Contains(t, help, "ktally")
	require.Contains(t, help, "Available Commands:")
	require.Contains(t, help, "syscount")
	require.Contains(t, help, "critstat")
}

func TestCommandInvalidFlag(t *testing.T) {
	cmd := newTestCommand()

	var output bytes.Buffer
	cmd.SetErr(&output)
	cmd.SetArgs([]string{"--invalid-flag"})

	require.Error(t, cmd.Execute())
	require.Contains(t, output.String(), "unknown flag")
}

func TestCommandLogLevelFlag(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		wantErr  bool
	}{
		{"trace level", "trace", false},
		{"debug level", "debug", false},
		{"info level", "info", false},
		{"warn level", "warn", false},
		{"error level", "error", false},
		{"invalid level", "invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTestCommand()

			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			// --list never loads a probe, so only the log level can fail.
			cmd.SetArgs([]string{"--log-level", tt.logLevel, "syscount", "--list"})

			err := cmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSubcommandSeesPersistentFlags(t *testing.T) {
	opts := NewOptions(WithContext(context.Background()))
	cmd := NewCommand(opts)

	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--probe-dir", "/tmp/probes", "critstat", "--ebpf"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, "/tmp/probes", opts.ProbeDir)
	require.Equal(t, "/tmp/probes/critstat.bpf.o", opts.ProbePath("critstat.bpf.o"))
}

func TestCommandContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cmd := newTestCommand()
	cmd.SetContext(ctx)
	require.Equal(t, ctx, cmd.Context())
}

func TestCommandExecutionWithoutSubcommand(t *testing.T) {
	cmd := newTestCommand()

	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	require.Contains(t, output.String(), "Available Commands:")
}
