// Package repl is an interactive shell over a *recordb.Database: read a
// line of SQL, run it, print the result as a table.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/leengari/recordb"
)

// Start runs the read-query-print loop against db, reading lines from
// in and writing prompts/results/errors to out, until in is exhausted
// or a line is "exit" or "\q".
func Start(db *recordb.Database, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "recordb> type 'exit' or '\\q' to quit.")

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}
		if line == "exit" || line == "\\q" {
			return
		}

		result, err := db.Query(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		PrintResult(out, result)
	}
}

// PrintResult renders a query result as a tab-aligned table.
func PrintResult(w io.Writer, res *recordb.QueryResult) {
	if len(res.Columns) == 0 {
		fmt.Fprintln(w, "(no columns)")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))

	separators := make([]string, len(res.Columns))
	for i := range separators {
		separators[i] = "---"
	}
	fmt.Fprintln(tw, strings.Join(separators, "\t"))

	for _, row := range res.Rows {
		values := make([]string, len(res.Columns))
		for i, col := range res.Columns {
			if v, ok := row[col]; ok {
				values[i] = fmt.Sprintf("%v", v)
			} else {
				values[i] = "NULL"
			}
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
}
