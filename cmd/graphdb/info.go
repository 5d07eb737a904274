package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nogdb/graphdb"
)

var infoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "print the schema catalog's id/count counters",
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

		info, err := tx.GetDBInfo()
		if err != nil {
			return err
		}
		fmt.Printf("classes:    %d (max id %d)\n", info.NumClassId, info.MaxClassId)
		fmt.Printf("properties: %d (max id %d)\n", info.NumPropertyId, info.MaxPropertyId)
		fmt.Printf("indexes:    %d (max id %d)\n", info.NumIndexId, info.MaxIndexId)
		return nil
	},
}
