package main

import (
	"github.com/spf13/cobra"
)

var matchFlags struct {
	candidates int
}

var matchCmd = &cobra.Command{
	Use:   "match IMPORTER HEADER...",
	Short: "Rank the fields each header could map to",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().IntVar(&matchFlags.candidates, "candidates", 3, "candidates shown per header")
}

func runMatch(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	suggestions, err := e.service.Suggest(args[0], args[1:])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if rootFlags.jsonOut {
		return printJSON(out, suggestions)
	}
	printSuggestions(out, suggestions, matchFlags.candidates)
	return nil
}
