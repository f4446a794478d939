package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sigilum/internal/engine"
	"sigilum/internal/logging"
	"sigilum/internal/trials"
)

type trialPreview struct {
	Index     int    `json:"trial_idx"`
	Signature string `json:"signature"`
	Varying   string `json:"varying"`
	Chain     string `json:"chain"`
}

func newTrialsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit    int
		jsonOut  bool
		profiles profileFlags
	)
	cmd := &cobra.Command{
		Use:   "trials",
		Short: "Preview the trials a run would execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			bundle, err := profiles.load(cfg)
			if err != nil {
				return err
			}
			phases, metrics := registries()
			eng := engine.New(phases, metrics, nil, logging.NewNop())
			req := engine.Request{
				Pipeline:  bundle.Pipeline,
				Space:     bundle.Search.Space,
				MaxTrials: bundle.Search.MaxTrials,
				Profile:   bundle.Metrics,
			}
			if err := trials.Validate(req.Space); err != nil {
				return err
			}
			if err := bundle.Metrics.Validate(metrics); err != nil {
				return err
			}
			planned, err := eng.Plan(req)
			if err != nil {
				return err
			}

			unique := make(map[string]struct{}, len(planned))
			previews := make([]trialPreview, 0, len(planned))
			for _, trial := range planned {
				unique[trial.Signature] = struct{}{}
				previews = append(previews, trialPreview{
					Index:     trial.Index,
					Signature: trial.Signature,
					Varying:   formatVarying(trial.Steps, trials.Varying(trial.Steps, req.Space)),
					Chain:     trial.Steps.String(),
				})
			}
			shown := previews
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}
			if jsonOut {
				return writeJSON(cmd, shown)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trials: %d (%d unique signatures)\n", len(planned), len(unique))
			if unused := trials.UnusedPhases(req.Pipeline, req.Space); len(unused) > 0 {
				fmt.Fprintf(out, "Warning: search space phases not in pipeline: %v\n", unused)
			}
			rows := make([][]string, 0, len(shown))
			for _, p := range shown {
				rows = append(rows, []string{strconv.Itoa(p.Index), p.Signature, p.Varying})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Trial", "Signature", "Varying"}, rows, []columnAlignment{alignRight}))
			if len(shown) < len(previews) {
				fmt.Fprintf(out, "... %d more (use --limit 0 to show all)\n", len(previews)-len(shown))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Trials to show; 0 shows all")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print trials as JSON")
	profiles.register(cmd)
	return cmd
}
