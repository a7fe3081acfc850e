package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available importers",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	infos := e.service.Importers()
	out := cmd.OutOrStdout()
	if rootFlags.jsonOut {
		return printJSON(out, infos)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFIELDS\tDESCRIPTION")
	for _, info := range infos {
		fields := make([]string, len(info.Attributes))
		for i, a := range info.Attributes {
			fields[i] = a.Key
			if a.Required {
				fields[i] += "*"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, strings.Join(fields, ", "), info.Description)
	}
	return tw.Flush()
}
