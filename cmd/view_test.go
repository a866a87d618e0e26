package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/mutrun/internal/adapter"
)

func TestViewCmd(t *testing.T) {
	catalog := writeCatalog(t,
		withRecordedResult(sampleMutation(1, "Foo", "bar"), true, false),
		sampleMutation(2, "Foo", "baz"),
	)

	cmd, out := newTestRoot(t, newViewCmd())
	cmd.SetArgs([]string{"view", "1", "2", "--" + storeCatalogFlagName, catalog})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "verdict: survived")
	assert.Contains(t, out.String(), "verdict: -")
}

func TestViewCmd_Errors(t *testing.T) {
	catalog := writeCatalog(t, sampleMutation(1, "Foo", "bar"))

	cmd, _ := newTestRoot(t, newViewCmd())
	cmd.SetArgs([]string{"view", "x1", "--" + storeCatalogFlagName, catalog})
	require.Error(t, cmd.Execute())

	cmd, _ = newTestRoot(t, newViewCmd())
	cmd.SetArgs([]string{"view", "42", "--" + storeCatalogFlagName, catalog})
	require.ErrorIs(t, cmd.Execute(), adapter.ErrMutationNotFound)
}
