// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/research"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "Describe the research strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(research.Infos())
		}
		def, err := research.ParseID(viper.GetString("research.default_strategy"))
		if err != nil {
			def = research.Default
		}
		printStrategies(cmd.OutOrStdout(), research.Infos(), def)
		return nil
	},
}

// printStrategies lists infos, marking def as the default.
func printStrategies(w io.Writer, infos []research.Info, def research.ID) {
	for _, info := range infos {
		marker := ""
		if info.ID == def {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%s%s\n  %s\n  Best for: %s\n\n", info.ID, marker, info.Description, info.BestFor)
	}
}

func init() {
	strategiesCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(strategiesCmd)
}
