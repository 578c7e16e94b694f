package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/loykin/everlast/pkg/client"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func printTable(w io.Writer, list []client.ChildInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "INDEX\tID\tSTATE\tPID\tRESTARTS\tEXIT")
	for _, ci := range list {
		exit := fmt.Sprint(ci.ExitCode)
		if ci.Signal != "" {
			exit = ci.Signal
		}
		pid := "-"
		if ci.PID > 0 {
			pid = fmt.Sprint(ci.PID)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", ci.Index, ci.ID, ci.State, pid, ci.Restarts, exit)
	}
	_ = tw.Flush()
}
