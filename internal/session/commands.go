package session

import (
	"strconv"
	"strings"

	"github.com/siderolabs/gen/xerrors"
	"github.com/spf13/cobra"

	"partix/internal/units"
)

// userArgs tags argument validation failures as user input errors.
func userArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return xerrors.NewTaggedf[UserInputError]("%s: %w", cmd.Name(), err)
		}

		return nil
	}
}

// commands builds the command tree for one input line. exit is set by the
// exit command.
func (s *Session) commands(exit *bool) *cobra.Command {
	root := &cobra.Command{
		Use:           "partix",
		Short:         "Inspect and edit GPT partition tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.SetOut(s.out)
	root.SetErr(s.out)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return xerrors.NewTaggedf[UserInputError]("%w", err)
	})

	root.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "List partitions of the selected device, or of every GPT device",
			Args:  userArgs(cobra.NoArgs),
			RunE: func(*cobra.Command, []string) error {
				return s.Show()
			},
		},
		&cobra.Command{
			Use:   "select <device>",
			Short: "Select the device to operate on",
			Args:  userArgs(cobra.ExactArgs(1)),
			RunE: func(_ *cobra.Command, args []string) error {
				return s.Select(args[0])
			},
		},
		&cobra.Command{
			Use:                "delete <index>",
			Short:              "Delete a partition from the selected device",
			Args:               userArgs(cobra.ExactArgs(1)),
			DisableFlagParsing: true,
			RunE: func(_ *cobra.Command, args []string) error {
				index, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return xerrors.NewTaggedf[UserInputError]("invalid partition index %q", args[0])
				}

				return s.Delete(uint32(index))
			},
		},
		&cobra.Command{
			Use:   "unit [" + strings.Join(units.Names(), "|") + "]",
			Short: "Set or show the size display unit",
			Args:  userArgs(cobra.MaximumNArgs(1)),
			RunE: func(_ *cobra.Command, args []string) error {
				if len(args) == 0 {
					s.ShowUnit()

					return nil
				}

				return s.SetUnit(args[0])
			},
		},
		&cobra.Command{
			Use:   "exit",
			Short: "Leave partix",
			Args:  userArgs(cobra.NoArgs),
			Run: func(*cobra.Command, []string) {
				*exit = true
			},
		},
	)

	root.InitDefaultHelpCmd()

	return root
}

// Execute runs one input line and reports whether the session should end.
// Command errors are printed, never returned.
func (s *Session) Execute(line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}

	var exit bool

	root := s.commands(&exit)

	if cmd, _, err := root.Find(args); err != nil || cmd == root {
		s.report(ErrUnknownCommand)

		return false
	}

	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		s.report(err)
	}

	return exit
}
