package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
		if flag := rootCmd.PersistentFlags().Lookup("config"); flag != nil {
			_ = flag.Value.Set(flag.DefValue)
			flag.Changed = false
		}
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "hash-password", "create-user"} {
		require.True(t, names[want], "missing %s command", want)
	}
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	require.Equal(t, "c", flag.Shorthand)
	require.NotNil(t, migrateCmd.Flags().Lookup("down"))
}

func TestHashPasswordFromArgument(t *testing.T) {
	out, err := execute(t, "", "hash-password", "correct-horse")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct-horse")))
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := execute(t, "battery-staple\n", "hash-password")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("battery-staple")))
}

func TestHashPasswordRejectsShortOrEmpty(t *testing.T) {
	_, err := execute(t, "", "hash-password", "short")
	require.Error(t, err)

	_, err = execute(t, "\n", "hash-password")
	require.EqualError(t, err, "password is required")
}

func TestLoadConfigReadsFlagFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposaldesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9911\"\ncors_origin: https://desk.example\n"), 0o600))

	cmd := &cobra.Command{Use: "probe"}
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Set("config", path))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, ":9911", cfg.Addr)
	require.Equal(t, "https://desk.example", cfg.CORSOrigin)
	require.Equal(t, path, cfg.ConfigFile)
}

func TestLoadConfigReportsMissingFile(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Set("config", filepath.Join(t.TempDir(), "absent.yaml")))

	_, err := loadConfig(cmd)
	require.Error(t, err)
}
