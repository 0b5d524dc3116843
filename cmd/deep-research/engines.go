// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-research/internal/app"
)

// healthTimeout bounds each engine's health probe.
const healthTimeout = 10 * time.Second

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List configured search engines and check they respond",
	RunE:  runEngines,
}

type engineStatus struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Healthy      bool     `json:"healthy"`
}

func runEngines(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	a, done, err := setup(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer done()

	backends := a.Search.Backends()
	statuses := make([]engineStatus, len(backends))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, b := range backends {
		statuses[i] = engineStatus{Name: b.Name(), Capabilities: b.Capabilities().Names()}
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(ctx, healthTimeout)
			defer cancel()
			statuses[i].Healthy = b.Healthy(hctx)
			return nil
		})
	}
	g.Wait()

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-18s  %-24s  %s\n", "Engine", "Capabilities", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 56))
	for _, s := range statuses {
		state := "ok"
		if !s.Healthy {
			state = "unreachable"
		}
		fmt.Fprintf(w, "%-18s  %-24s  %s\n", s.Name, strings.Join(s.Capabilities, ","), state)
	}
	return nil
}

func init() {
	enginesCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(enginesCmd)
}
