package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/genbatch/pipeline/internal/cliclient"
	"github.com/genbatch/pipeline/internal/domain"
)


func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "runs", Short: "Manage runs"}
	cmd.AddCommand(newRunsListCmd(), newRunsCreateCmd(), newRunsGetCmd(), newRunsStartCmd(), newRunsCancelCmd(), newRunsDeleteCmd(), newRunsWatchCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var projectID, status string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs for the caller's tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := client().ListRuns(cmd.Context(), projectID, status, limit, offset)
			if err != nil {
				return err
			}
			headers := []string{"RUN_ID", "PROJECT", "STATUS", "PRIORITY", "CREATED_AT"}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{r.RunID, r.ProjectID, string(r.Status), fmt.Sprint(r.Priority), r.CreatedAt.Format(time.RFC3339)})
			}
			return printRows(headers, rows, runs)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "row offset")
	return cmd
}

func newRunsCreateCmd() *cobra.Command {
	var projectID, requestedBy, configPath string
	var tags []string
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return usageErrorf("--project is required")
			}
			var cfg domain.RunConfig
			if configPath != "" {
				raw, err := os.ReadFile(configPath)
				if err != nil {
					return usageErrorf("read config file: %s", err)
				}
				if err := json.Unmarshal(raw, &cfg); err != nil {
					return usageErrorf("parse config file: %s", err)
				}
			}
			runID, err := client().CreateRun(cmd.Context(), cliclient.CreateRunRequest{
				ProjectID:   projectID,
				Config:      cfg,
				Tags:        tags,
				Priority:    priority,
				RequestedBy: requestedBy,
			})
			if err != nil {
				return err
			}
			return printObject(map[string]string{"run_id": runID})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "requester identity")
	cmd.Flags().StringVar(&configPath, "config-file", "", "path to a JSON RunConfig document")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "repeatable run tag")
	cmd.Flags().IntVar(&priority, "priority", 5, "run priority (1-9)")
	return cmd
}

func newRunsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := client().GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printObject(run)
		},
	}
	return cmd
}

func newRunsStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <run-id>",
		Short: "Start a pending run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().StartRun(cmd.Context(), args[0])
		},
	}
}

func newRunsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().CancelRun(cmd.Context(), args[0])
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Soft-delete a run (spec §5: status set to cancelled, rows retained)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().DeleteRun(cmd.Context(), args[0])
		},
	}
}

func newRunsWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <run-id>",
		Short: "Poll a run until it reaches a terminal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			for {
				run, err := c.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s %s\n", time.Now().Format(time.RFC3339), run.Status)
				if run.Status.Terminal() {
					return printObject(run)
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}
