package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "eval", Short: "Drive and inspect a run's evaluation phases"}
	cmd.AddCommand(newEvalStartCmd(), newEvalStatusCmd(), newEvalResultsCmd(), newEvalCancelCmd())
	return cmd
}

// newEvalStartCmd starts the run; the evaluation phases (single-eval,
// pairwise, post-combine) are just later stops on the same Phase Scheduler
// the generation phases run on (spec §4.8), so there is no separate
// "start evaluating" engine operation to call.
func newEvalStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <run-id>",
		Short: "Start a run's phases, including evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().StartRun(cmd.Context(), args[0])
		},
	}
}

func newEvalStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show phase timeline and per-task-kind status counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client().EvaluateStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printObject(status)
		},
	}
}

func newEvalResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <run-id>",
		Short: "Show graded scores and final Elo standings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := client().EvaluateResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagFormat == "table" {
				headers := []string{"ARTIFACT_ID", "RATING", "GAMES_PLAYED"}
				rows := make([][]string, 0, len(results.EloRatings))
				for _, r := range results.EloRatings {
					rows = append(rows, []string{r.ArtifactID, strconv.FormatFloat(r.Rating, 'f', 1, 64), strconv.Itoa(r.GamesPlayed)})
				}
				return printRows(headers, rows, results)
			}
			return printObject(results)
		},
	}
}

// newEvalCancelCmd cancels the run, which stops every in-flight evaluation
// task the same way `runs cancel` stops any other phase (spec §4.8).
func newEvalCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a run's remaining evaluation work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().CancelRun(cmd.Context(), args[0])
		},
	}
}
