package main

import (
	"github.com/dvloznov/ledger-sync/internal/schema"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSchemasCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [entity...]",
		Short: "Print the effective entity schemas as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []*schema.EntitySchema
			if len(args) == 0 {
				out = a.registry.All()
			} else {
				selected, err := selectEntities(a.cfg, a.registry, args)
				if err != nil {
					return err
				}
				out = selected
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
