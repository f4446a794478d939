package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sigilum/internal/config"
	"sigilum/internal/leaderboard"
	"sigilum/internal/rundir"
)

type reportOutput struct {
	RunDir      string              `json:"run_dir"`
	Meta        rundir.Meta         `json:"run"`
	Leaderboard leaderboard.Board   `json:"leaderboard"`
	Summary     leaderboard.Summary `json:"summary"`
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		latest  bool
		top     int
		jsonOut bool
		write   bool
	)
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Show the leaderboard of a finished run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg, args, latest)
			if err != nil {
				return err
			}
			meta, err := rundir.LoadMeta(runDir)
			if err != nil {
				return err
			}
			board, summary, err := rundir.LoadLeaderboard(runDir)
			if err != nil && meta.Status != rundir.StatusFailed {
				return err
			}
			if write {
				rows, err := rundir.CollectTrials(runDir)
				if err != nil {
					return err
				}
				if err := rundir.WriteTrialsSummary(runDir, rows); err != nil {
					return err
				}
			}
			board = board.Top(top)
			if jsonOut {
				return writeJSON(cmd, reportOutput{RunDir: runDir, Meta: meta, Leaderboard: board, Summary: summary})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:      %s\n", meta.RunID)
			fmt.Fprintf(out, "Dir:      %s\n", runDir)
			fmt.Fprintf(out, "Cheque:   %s\n", meta.ChequeName)
			if meta.AccountID != "" {
				fmt.Fprintf(out, "Account:  %s\n", meta.AccountID)
			}
			fmt.Fprintf(out, "Status:   %s\n", statusLabel(string(meta.Status)))
			if meta.Error != "" {
				fmt.Fprintf(out, "Error:    %s\n", meta.Error)
			}
			fmt.Fprintf(out, "Trials:   %d (%d failed)\n", meta.Trials, meta.Failed)
			if summary.Trials > 0 {
				fmt.Fprintf(out, "Scores:   mean %s, median %s, p90 %s, max %s\n",
					formatScore(summary.Mean), formatScore(summary.Median), formatScore(summary.P90), formatScore(summary.Max))
			}
			if len(board) == 0 {
				fmt.Fprintln(out, "Leaderboard: empty")
				return nil
			}
			fmt.Fprintln(out, renderLeaderboard(out, board))
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "Use the most recent run under paths.runs_dir")
	cmd.Flags().IntVar(&top, "top", 20, "Leaderboard rows to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&write, "write-summary", false, "Rewrite aggregate/trials_summary.csv and .json")
	return cmd
}

func resolveRunDir(cfg *config.Config, args []string, latest bool) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		if latest {
			return "", fmt.Errorf("pass either a run directory or --latest, not both")
		}
		return config.ExpandPath(args[0])
	}
	return rundir.Latest(cfg.Paths.RunsDir)
}

func renderLeaderboard(out io.Writer, board leaderboard.Board) string {
	rows := make([][]string, 0, len(board))
	for i, e := range board {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%04d", e.TrialIndex),
			formatScore(e.BestScore),
			e.BestReference,
			yesNo(e.Exhaustive),
			e.Signature,
		})
	}
	return renderTable(out,
		[]string{"#", "Trial", "Score", "Reference", "Exhaustive", "Signature"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight},
	)
}
