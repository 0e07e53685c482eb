package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

// printRows renders a slice of records in the format the --format flag
// selected: a tab-aligned table, a JSON array, or plain space-separated
// fields (scriptable, spec §6).
func printRows(headers []string, rows [][]string, full any) error {
	switch flagFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(full)
	case "plain":
		for _, row := range rows {
			for i, col := range row {
				if i > 0 {
					fmt.Print(" ")
				}
				fmt.Print(col)
			}
			fmt.Println()
		}
		return nil
	default: // table
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, tabJoin(headers))
		for _, row := range rows {
			fmt.Fprintln(w, tabJoin(row))
		}
		return nil
	}
}

func tabJoin(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += "\t"
		}
		out += c
	}
	return out
}

func printObject(full any) error {
	switch flagFormat {
	case "plain":
		fmt.Printf("%+v\n", full)
		return nil
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(full)
	}
}
