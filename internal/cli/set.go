package cli

import (
	"github.com/spf13/cobra"

	"github.com/cellflow/cellflow/internal/engine"
	"github.com/cellflow/cellflow/internal/external"
	"github.com/cellflow/cellflow/internal/formula"
)

// NewSetCommand creates the set command, which writes a literal or
// formula to a cell and recalculates its dependents.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <sheet> <cell> <value>",
		Short: "Write a literal or formula to a cell",
		Long: `Write a value to a cell and recalculate everything that depends on it.

Values starting with = are formulas:

  cellflow set budget total '=rent + food'
  cellflow set budget rent 1200`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			f := &OutputFormatter{
				Format: opts.Format,
				Writer: cmd.OutOrStdout(),
			}

			cell, err := a.engine.SetCell(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				_ = f.Error(writeErrorCode(err), err.Error())
				return WrapExitError(ExitFailure, "write rejected", err)
			}
			return f.Success(toCellOutput(cell))
		},
	}
}

// writeErrorCode maps a rejected write onto a stable code string.
func writeErrorCode(err error) string {
	if code := engine.RecalcCode(err); code != "" {
		return string(code)
	}
	if code := formula.EvalCode(err); code != "" {
		return string(code)
	}
	if code := external.FetchCode(err); code != "" {
		return string(code)
	}
	if formula.IsParseError(err) {
		return "PARSE_ERROR"
	}
	return "ERROR"
}
