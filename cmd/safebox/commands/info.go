package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/drivers"
)

func newDfCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "df",
		Short: "Show how full the store is",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				p, err := m.Usage(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.1f%%\n", p)
				return nil
			})
		},
	}
}

func newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List the storage drivers compiled into this binary",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range drivers.List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
