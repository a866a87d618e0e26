package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "mutrun", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.Equal(t, rootLongDescription, cmd.Long)

	for _, name := range []string{outputFlagName, verboseFlagName, storeDriverFlagName, storeCatalogFlagName, storeDSNFlagName} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	cmd, out := newTestRoot(t)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "mutation-testing work")
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"run", "score", "trace", "list", "view", "merge", "init", "version"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestRebindSharedFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "bare"}

	err := rebindSharedFlag(cmd, traceDirFlagName, traceDirKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bare")
}

func TestUnsupportedStoreDriver(t *testing.T) {
	cmd, _ := newTestRoot(t, newListCmd())
	cmd.SetArgs([]string{"list", "--" + storeDriverFlagName, "sqlite"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported store driver "sqlite"`)
}

func TestCloseQuietly(t *testing.T) {
	closed := false

	closeQuietly("nil", nil)
	closeQuietly("ok", closerFunc(func() error {
		closed = true
		return nil
	}))
	closeQuietly("failing", closerFunc(func() error { return errors.New("boom") }))

	assert.True(t, closed)
}

func TestExecute_ProcessLevel_Success(t *testing.T) {
	if os.Getenv("MUTRUN_TEST_EXECUTE") == "1" {
		originalRootCmd := rootCmd
		rootCmd = &cobra.Command{
			Use: "test",
			RunE: func(*cobra.Command, []string) error {
				fmt.Println("success")
				return nil
			},
		}
		rootCmd.SetArgs([]string{})
		defer func() { rootCmd = originalRootCmd }()

		Execute()

		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExecute_ProcessLevel_Success$")
	cmd.Env = append(os.Environ(), "MUTRUN_TEST_EXECUTE=1")
	output, err := cmd.CombinedOutput()

	require.NoError(t, err, "output: %s", output)
	assert.Contains(t, string(output), "success")
}

func TestExecute_ProcessLevel_Failure(t *testing.T) {
	if os.Getenv("MUTRUN_TEST_EXECUTE_FAIL") == "1" {
		rootCmd = &cobra.Command{
			Use: "test",
			RunE: func(*cobra.Command, []string) error {
				return errors.New("command failed")
			},
		}
		rootCmd.SetArgs([]string{})

		Execute()

		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExecute_ProcessLevel_Failure$")
	cmd.Env = append(os.Environ(), "MUTRUN_TEST_EXECUTE_FAIL=1")
	output, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, string(output), "command failed")
}
