package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gooze.dev/pkg/mutrun/internal/controller"
	m "gooze.dev/pkg/mutrun/internal/model"
)

const listLongDescription = `List the mutations a run would select: every pending mutation, up to
--limit. With --all the whole catalog is listed with recorded verdicts.`

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	var (
		all   bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending or catalogued mutations",
		Long:  listLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closer, err := openMutationStore()
			if err != nil {
				return fmt.Errorf("open mutation store: %w", err)
			}
			defer closeQuietly("mutation store", closer)

			var mutations []m.Mutation

			if all {
				err = store.Catalog(cmd.Context(), func(mutation *m.Mutation) error {
					if mutation != nil {
						mutations = append(mutations, *mutation)
					}

					return nil
				})
			} else {
				mutations, err = store.PendingMutations(cmd.Context(), limit)
			}

			if err != nil {
				return err
			}

			cmd.Print(controller.RenderMutationList(mutations))

			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list the whole catalog instead of pending mutations")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pending mutations listed (0: all)")

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}
