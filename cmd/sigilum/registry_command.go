package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sigilum/internal/scoring"
)

type registryListing struct {
	Phases    []string `json:"phases"`
	Metrics   []string `json:"metrics"`
	Combiners []string `json:"combiners"`
}

func newRegistryCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:         "registry",
		Short:       "List built-in phases, metrics and combiners",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, metrics := registries()
			listing := registryListing{
				Phases:    phases.Names(),
				Metrics:   metrics.Names(),
				Combiners: scoring.CombinerNames(),
			}
			if jsonOut {
				return writeJSON(cmd, listing)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Phases:    %s\n", strings.Join(listing.Phases, ", "))
			fmt.Fprintf(out, "Metrics:   %s\n", strings.Join(listing.Metrics, ", "))
			fmt.Fprintf(out, "Combiners: %s\n", strings.Join(listing.Combiners, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the listing as JSON")
	return cmd
}
