package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gooze.dev/pkg/mutrun/internal/controller"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view ID...",
		Short: "Show recorded results of mutations",
		Long:  "Show each mutation with its recorded verdict and per-test outcomes.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))

			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid mutation id %q: %w", arg, err)
				}

				ids = append(ids, id)
			}

			store, closer, err := openMutationStore()
			if err != nil {
				return fmt.Errorf("open mutation store: %w", err)
			}
			defer closeQuietly("mutation store", closer)

			mutations, err := store.MutationsByID(cmd.Context(), ids)
			if err != nil {
				return err
			}

			for i, mutation := range mutations {
				if i > 0 {
					cmd.Println()
				}

				cmd.Print(controller.RenderMutationDetail(mutation))
			}

			return nil
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
