package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCmd(t *testing.T) {
	catalog := writeCatalog(t,
		withRecordedResult(sampleMutation(1, "Foo", "bar"), true, true),
		sampleMutation(2, "Foo", "baz"),
		sampleMutation(3, "Bar", "qux"),
	)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{"pending", nil, []string{"baz", "qux", "2 mutation(s)"}, []string{"killed"}},
		{"limit", []string{"--limit", "1"}, []string{"baz", "1 mutation(s)"}, []string{"qux"}},
		{"all", []string{"--all"}, []string{"killed", "3 mutation(s)"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, out := newTestRoot(t, newListCmd())
			cmd.SetArgs(append([]string{"list", "--" + storeCatalogFlagName, catalog}, tt.args...))

			require.NoError(t, cmd.Execute())

			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}

			for _, notWant := range tt.notWant {
				assert.NotContains(t, out.String(), notWant)
			}
		})
	}
}
