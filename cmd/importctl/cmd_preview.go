package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview IMPORTER FILE",
	Short: "Show a file's headers, first rows and proposed mapping",
	Args:  cobra.ExactArgs(2),
	RunE:  runPreview,
}

func runPreview(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.service.Preview(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if rootFlags.jsonOut {
		return printJSON(out, p)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, h := range p.Headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range p.Rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			if v != nil {
				fmt.Fprint(tw, v)
			}
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Proposed mapping:")
	printMapping(out, p.Headers, p.Proposed)
	return nil
}
