package main

import (
	"strings"

	"github.com/spf13/cobra"

	"sigilum/internal/config"
	"sigilum/internal/runconfig"
)

// profileFlags lets a command override the profile paths from config.
type profileFlags struct {
	pipeline string
	search   string
	metrics  string
}

func (p *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.pipeline, "pipeline", "", "Pipeline profile (overrides profiles.pipeline)")
	cmd.Flags().StringVar(&p.search, "search", "", "Search space profile (overrides profiles.search)")
	cmd.Flags().StringVar(&p.metrics, "metrics", "", "Metrics profile (overrides profiles.metrics)")
}

func (p *profileFlags) load(cfg *config.Config) (runconfig.Bundle, error) {
	pipeline := pick(p.pipeline, cfg.Profiles.Pipeline)
	search := pick(p.search, cfg.Profiles.Search)
	metrics := pick(p.metrics, cfg.Profiles.Metrics)
	for _, path := range []*string{&pipeline, &search, &metrics} {
		if *path == "" {
			continue
		}
		expanded, err := config.ExpandPath(*path)
		if err != nil {
			return runconfig.Bundle{}, err
		}
		*path = expanded
	}
	return runconfig.Load(pipeline, search, metrics)
}

func pick(flag, fallback string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}
