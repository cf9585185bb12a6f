package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/database"
)

func newCapabilitiesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the features a backend declares",
		Long: `List the capability tags of the backend chosen with --db, grouped by
category. Declarations from capabilities_file replace the built-in ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			decl, err := declarations(cfg)
			if err != nil {
				return err
			}
			db, err := database.New(v.GetString("db"))
			if err != nil {
				return err
			}
			printRegistry(cmd.OutOrStdout(), registryFor(decl, db))
			return nil
		},
	}
}

func printRegistry(w io.Writer, reg *capability.Registry) {
	fmt.Fprintf(w, "%s (%d capabilities)\n", reg.Backend(), reg.Len())
	var last capability.Category
	first := true
	for _, c := range reg.Capabilities() {
		if first || c.Category() != last {
			fmt.Fprintf(w, "  %s\n", c.Category())
			last, first = c.Category(), false
		}
		fmt.Fprintf(w, "    %s\n", c)
	}
}
