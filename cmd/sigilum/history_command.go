package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sigilum/internal/faults"
	"sigilum/internal/runstore"
)

type historyRow struct {
	RunID      string   `json:"run_id"`
	Cheque     string   `json:"cheque_name"`
	Account    string   `json:"account_id,omitempty"`
	Mode       string   `json:"mode"`
	Status     string   `json:"status"`
	BestTrial  *int     `json:"best_trial,omitempty"`
	BestScore  *float64 `json:"best_score,omitempty"`
	BestFirma  string   `json:"best_firma,omitempty"`
	Trials     int      `json:"n_trials"`
	Failed     int      `json:"n_failed"`
	CreatedAt  string   `json:"created_at"`
	RunDir     string   `json:"run_dir,omitempty"`
	ErrMessage string   `json:"error,omitempty"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs from the run ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Store.Enabled {
				return faults.Configf("run ledger disabled (set store.enabled = true)")
			}
			store, err := runstore.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := make([]historyRow, 0, len(runs))
			for _, r := range runs {
				out = append(out, historyRow{
					RunID:      r.RunID,
					Cheque:     r.ChequeName,
					Account:    r.AccountID,
					Mode:       r.Mode,
					Status:     r.Status,
					BestTrial:  r.BestTrial,
					BestScore:  r.BestScore,
					BestFirma:  r.BestFirma,
					Trials:     r.Trials,
					Failed:     r.Failed,
					CreatedAt:  r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					RunDir:     r.RunDir,
					ErrMessage: r.ErrorMessage,
				})
			}
			if jsonOut {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			if len(out) == 0 {
				fmt.Fprintln(w, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(out))
			for _, r := range out {
				best := "-"
				if r.BestTrial != nil {
					best = fmt.Sprintf("%04d", *r.BestTrial)
				}
				rows = append(rows, []string{
					r.CreatedAt,
					r.Cheque,
					statusLabel(r.Status),
					best,
					formatOptionalScore(r.BestScore),
					fmt.Sprintf("%d/%d", r.Trials-r.Failed, r.Trials),
					shortID(r.RunID),
				})
			}
			fmt.Fprintln(w, renderTable(w,
				[]string{"Created", "Cheque", "Status", "Best", "Score", "Trials ok", "Run"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Runs to show; 0 shows all")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
