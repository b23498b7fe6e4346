package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/calebt/typeset/internal/dispatch"
	"github.com/calebt/typeset/internal/identity"
	"github.com/calebt/typeset/internal/models"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run conversion jobs",
	}
	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsStartCmd())
	return cmd
}

// buildDispatcher wires a dispatcher from the config file, without
// chat notifications.
func buildDispatcher(configPath string) (*dispatch.Dispatcher, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return dispatch.New(dispatch.Opts{
		DB:        gormDB,
		Resolver:  identity.NewGitResolver(cfg.GitURL),
		Invoker:   dispatch.NewHTTPInvoker(cfg.WorkerTimeout()),
		APIURL:    cfg.APIURL,
		CDNURL:    cfg.CDNURL,
		CDNBucket: cfg.CDNBucket,
	})
}

func newJobsListCmd() *cobra.Command {
	var (
		configPath string
		token      string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your conversion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dispatcher, err := buildDispatcher(configPath)
			if err != nil {
				return err
			}
			if token == "" {
				token, err = promptToken(cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}

			filters := map[string]string{}
			if status != "" {
				filters["status"] = status
			}
			jobs, err := dispatcher.ListJobs(context.Background(), token, filters)
			if err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "typeset.yaml", "path to config file")
	cmd.Flags().StringVarP(&token, "token", "t", "", "API token (prompted if not given)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status")
	return cmd
}

func newJobsStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start <job-id>",
		Short: "Run a requested job to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dispatcher, err := buildDispatcher(configPath)
			if err != nil {
				return err
			}
			job, err := dispatcher.Start(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %s (%s)\n", job.JobID, job.Status, job.Message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "typeset.yaml", "path to config file")
	return cmd
}

func printJobs(out io.Writer, jobs []models.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tIDENTIFIER\tSTATUS\tCREATED\tMESSAGE")
	for _, job := range jobs {
		fmt.Fprintf(w, "%.12s\t%s\t%s\t%s\t%s\n",
			job.JobID, job.Identifier, job.Status,
			job.CreatedAt.Format(time.RFC3339), job.Message)
	}
	w.Flush()
}
