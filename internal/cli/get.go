package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cellflow/cellflow/internal/store"
)

// cellOutput is the CLI shape for one cell.
type cellOutput struct {
	SheetID string `json:"sheet_id"`
	CellID  string `json:"cell_id"`
	Value   string `json:"value"`
	Result  string `json:"result"`
}

func (o cellOutput) String() string {
	return fmt.Sprintf("%s!%s = %s", o.SheetID, o.CellID, o.Result)
}

// sheetOutput is the CLI shape for a whole sheet.
type sheetOutput []cellOutput

func (o sheetOutput) String() string {
	lines := make([]string, len(o))
	for i, cell := range o {
		lines[i] = cell.String()
	}
	return strings.Join(lines, "\n")
}

func toCellOutput(cell store.Cell) cellOutput {
	return cellOutput{
		SheetID: cell.SheetID,
		CellID:  cell.CellID,
		Value:   cell.Value,
		Result:  cell.Result,
	}
}

// NewGetCommand creates the get command, which reads a sheet or a
// single cell from the database.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <sheet> [cell]",
		Short: "Read a sheet or a single cell",
		Args:  cobra.RangeArgs(1, 2),
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

			if len(args) == 2 {
				cell, err := a.engine.GetCell(cmd.Context(), args[0], args[1])
				if errors.Is(err, store.ErrNotFound) {
					_ = f.Error("NOT_FOUND", fmt.Sprintf("no cell %s in sheet %s", args[1], args[0]))
					return NewExitError(ExitFailure, "cell not found")
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "read cell", err)
				}
				return f.Success(toCellOutput(cell))
			}

			cells, err := a.engine.GetSheet(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				_ = f.Error("NOT_FOUND", fmt.Sprintf("no cells in sheet %s", args[0]))
				return NewExitError(ExitFailure, "sheet not found")
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "read sheet", err)
			}
			out := make(sheetOutput, len(cells))
			for i, cell := range cells {
				out[i] = toCellOutput(cell)
			}
			return f.Success(out)
		},
	}
}
