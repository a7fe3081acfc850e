package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// applyMappings copies base and applies COLUMN=FIELD overrides. The last
// "=" separates the pair, so headers may contain one.
func applyMappings(base core.ColumnMapping, pairs []string) (core.ColumnMapping, error) {
	out := make(core.ColumnMapping, len(base)+len(pairs))
	for k, v := range base {
		out[k] = v
	}
	for _, p := range pairs {
		i := strings.LastIndex(p, "=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid --map %q: want COLUMN=FIELD", p)
		}
		out[p[:i]] = strings.TrimSpace(p[i+1:])
	}
	return out, nil
}

func printMapping(w io.Writer, headers []string, m core.ColumnMapping) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, h := range headers {
		attr, ok := m[h]
		switch {
		case !ok:
			continue
		case attr == "":
			attr = "(ignored)"
		}
		fmt.Fprintf(tw, "  %s\t-> %s\n", h, attr)
	}
	_ = tw.Flush()
}

func printSuggestions(w io.Writer, suggestions []core.HeaderSuggestion, limit int) {
	for _, s := range suggestions {
		proposed := s.Proposed
		if proposed == "" {
			proposed = "(ignored)"
		}
		fmt.Fprintf(w, "%s -> %s\n", s.Header, proposed)
		for i, c := range s.Candidates {
			if limit > 0 && i >= limit {
				break
			}
			name := c.Attribute
			if c.Ignore {
				name = "(ignore)"
			}
			fmt.Fprintf(w, "    %-20s %.2f\n", name, c.Similarity)
		}
	}
}

func printResult(w io.Writer, res core.RunResult) {
	status := "done"
	switch {
	case !res.OK():
		status = "failed"
	case res.Cancelled:
		status = "cancelled"
	case res.Handled:
		status = "failed (handled)"
	}
	fmt.Fprintf(w, "Run %s: %s\n", res.RunID, status)
	fmt.Fprintf(w, "  rows read:    %d\n", res.RowsRead)
	fmt.Fprintf(w, "  rows skipped: %d\n", res.RowsSkipped)
	fmt.Fprintf(w, "  records:      %d in %d batches\n", res.RecordsProcessed, res.Batches)
	fmt.Fprintf(w, "  duration:     %s\n", res.Duration.Round(time.Millisecond))
	if res.FailedIn != "" {
		fmt.Fprintf(w, "  failed in:    %s\n", res.FailedIn)
	}
}
