package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nogdb/graphdb"
)

type dumpRecord struct {
	RecordID   string            `yaml:"recordId"`
	Version    uint64            `yaml:"version"`
	Properties map[string]string `yaml:"properties"`
}

var dumpCmd = &cobra.Command{
	Use:   "dump <path> <class>",
	Short: "dump every record of one class as YAML",
	Args:  cobra.ExactArgs(2),
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

		records, err := tx.Find(args[1]).Get()
		if err != nil {
			return err
		}

		out := make([]dumpRecord, 0, len(records))
		for _, rec := range records {
			props := make(map[string]string, len(rec.Properties))
			for name, raw := range rec.Properties {
				props[name] = string(raw)
			}
			out = append(out, dumpRecord{
				RecordID:   rec.Rid.String(),
				Version:    uint64(rec.Version),
				Properties: props,
			})
		}

		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(out)
	},
}
