// Command graphdb is a read-only inspection CLI over a graph database file:
// `info` dumps the schema catalog's id/count counters, `dump` lists every
// record of one class, and `verify` checks that every edge's endpoints
// resolve to live vertex records. It is ambient tooling (per SPEC_FULL.md
// §10), not part of the embeddable library's public surface — the same
// inspection-only role cmd/bd plays for the teacher's issue store, scaled
// down to three subcommands and built entirely on the graphdb package's own
// public API rather than reaching into internal/*.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "graphdb",
	Short: "graphdb - inspect an embedded property-graph database file",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		cmd.SetContext(ctx)
	},
}

func main() {
	rootCmd.AddCommand(infoCmd, dumpCmd, verifyCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
