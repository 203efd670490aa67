package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nuln/safebox"
)

// readInput reads args[1] if present, stdin otherwise.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 1 && args[1] != "-" {
		return os.ReadFile(args[1])
	}
	return io.ReadAll(cmd.InOrStdin())
}

func newPutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put NAME [FILE]",
		Short: "Save a file, replacing any previous content",
		Long:  "Save FILE (or stdin) under the logical name NAME.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				return m.Save(cmd.Context(), args[0], data)
			})
		},
	}
}

func newAppendCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "append NAME [FILE]",
		Short: "Append to a file, creating it if needed",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				return m.Append(cmd.Context(), args[0], data)
			})
		},
	}
}

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print a file",
		Long:  "Print the content of NAME. In hash mode the content is only printed if it matches its stored hash.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				data, err := m.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newExistsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exists NAME",
		Short: "Report whether a file exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				ok, err := m.Exists(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func newRmCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "rm NAME",
		Aliases: []string{"delete"},
		Short:   "Delete a file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				return m.Delete(cmd.Context(), args[0])
			})
		},
	}
}

func dirArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newLsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [DIR]",
		Short: "List the files directly inside a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				names, err := m.List(cmd.Context(), dirArg(args))
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newCountCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count [DIR]",
		Short: "Count the files directly inside a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				n, err := m.Count(cmd.Context(), dirArg(args))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func newPurgeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "purge [DIR]",
		Short: "Delete every file directly inside a directory",
		Long:  "Delete every file directly inside DIR, stopping at the first failure.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(m *safebox.Manipulator) error {
				n, err := m.DeleteAll(cmd.Context(), dirArg(args))
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
				return err
			})
		},
	}
}
