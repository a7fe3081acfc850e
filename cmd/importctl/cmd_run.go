package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

var runFlags struct {
	mappings []string
	auto     bool
}

var runCmd = &cobra.Command{
	Use:   "run IMPORTER FILE",
	Short: "Import a file",
	Long: "Import FILE with IMPORTER. The proposed mapping is used unless --auto=false;\n" +
		"--map COLUMN=FIELD overrides one column, where COLUMN is a header or a\n" +
		"zero-based column index and an empty FIELD ignores the column.",
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVar(&runFlags.mappings, "map", nil, "column mapping COLUMN=FIELD (repeatable)")
	f.BoolVar(&runFlags.auto, "auto", true, "start from the proposed mapping")
}

func runRun(cmd *cobra.Command, args []string) error {
	importer, file := args[0], args[1]

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	base := core.ColumnMapping{}
	if runFlags.auto {
		p, err := e.service.Preview(cmd.Context(), importer, file)
		if err != nil {
			return err
		}
		base = p.Proposed
	}
	mapping, err := applyMappings(base, runFlags.mappings)
	if err != nil {
		return err
	}

	res := e.service.Run(cmd.Context(), importer, file, mapping, capabilities())
	out := cmd.OutOrStdout()
	if rootFlags.jsonOut {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else {
		printResult(out, res)
	}
	if !res.OK() {
		return fmt.Errorf("import failed: %s", core.FormatUserError(res.Err))
	}
	return nil
}
