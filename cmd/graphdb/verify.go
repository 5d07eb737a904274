package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nogdb/graphdb"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "check that every edge's src/dst resolve to a live vertex record (I1)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := graphdb.Open(cmd.Context(), args[0], graphdb.Options{ReadOnly: true})
		if err != nil {
			return err
		}
		defer env.Close()

		tx, err := env.Begin(cmd.Context(), graphdb.ReadOnly)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		classes, err := tx.GetClasses()
		if err != nil {
			return err
		}

		var edgesChecked, inconsistencies int
		for _, ci := range classes {
			if ci.Type != graphdb.ClassTypeEdge {
				continue
			}
			edges, err := tx.Find(ci.Name).Get()
			if err != nil {
				return err
			}
			for _, edge := range edges {
				edgesChecked++
				if _, _, err := tx.FetchSrcDst(edge.Rid); err != nil {
					inconsistencies++
					fmt.Printf("inconsistent edge %s (%s): %v\n", edge.Rid, ci.Name, err)
				}
			}
		}

		fmt.Printf("checked %d edges, found %d inconsistencies\n", edgesChecked, inconsistencies)
		if inconsistencies > 0 {
			return fmt.Errorf("verify found %d inconsistent edge(s)", inconsistencies)
		}
		return nil
	},
}
