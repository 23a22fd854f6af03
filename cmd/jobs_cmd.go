package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/interrupt"
	"github.com/nextlevelbuilder/jobagent/internal/store/redisstore"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

func submitCmd() *cobra.Command {
	var sessionID string
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit <prompt>",
		Short: "Queue a prompt for a worker",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rdb := mustConnectRedis(ctx, cfg)
			defer rdb.Close()
			jobs := newJobStore(cfg, rdb)

			job, err := jobs.Submit(ctx, strings.Join(args, " "), sessionID)
			if err != nil {
				fatalf("%s", err)
			}
			fmt.Println(job.ID)
			if !wait {
				return
			}
			if err := watchJob(ctx, rdb, jobs, job.ID); err != nil {
				fatalf("%s", err)
			}
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to continue (default: a new one)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "stream progress and wait for the result")
	return cmd
}

func statusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status <jobID>",
		Short: "Show a job's state and result",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx := context.Background()
			rdb := mustConnectRedis(ctx, cfg)
			defer rdb.Close()

			rec, err := newJobStore(cfg, rdb).Get(ctx, args[0])
			if err != nil {
				fatalf("%s", err)
			}
			printJobRecord(rec, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func interruptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt <jobID>",
		Short: "Ask the running job to stop at its next iteration",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx := context.Background()
			rdb := mustConnectRedis(ctx, cfg)
			defer rdb.Close()

			n, err := interrupt.Publish(ctx, rdb, args[0])
			if err != nil {
				fatalf("%s", err)
			}
			if n == 0 {
				fmt.Fprintf(os.Stderr, "No run is listening for job %s.\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("Interrupt sent to job %s.\n", args[0])
		},
	}
}

func failCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fail <jobID>",
		Short: "Mark a job failed; a running job stops at its next iteration",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx := context.Background()
			rdb := mustConnectRedis(ctx, cfg)
			defer rdb.Close()

			if err := newJobStore(cfg, rdb).MarkFailed(ctx, args[0]); err != nil {
				fatalf("%s", err)
			}
			fmt.Printf("Marked job %s failed.\n", args[0])
		},
	}
}

func printJobRecord(rec *redisstore.JobRecord, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("Job:      %s\n", rec.ID)
	fmt.Printf("Session:  %s\n", rec.SessionID)
	fmt.Printf("State:    %s\n", rec.State)
	fmt.Printf("Created:  %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	if rec.Reason != "" {
		fmt.Printf("Reason:   %s\n", rec.Reason)
	}
	if !rec.FinishedAt.IsZero() {
		fmt.Printf("Finished: %s\n", rec.FinishedAt.Local().Format(time.DateTime))
	}
	fmt.Printf("Prompt:   %s\n", truncateStr(rec.Prompt, 200))
	if rec.Result != "" {
		fmt.Printf("\n%s\n", rec.Result)
	}
}

// jobDone reports whether a job reached a terminal state.
func jobDone(rec *redisstore.JobRecord) bool {
	return rec.State == protocol.JobStateCompleted ||
		(rec.State == protocol.JobStateFailed && !rec.FinishedAt.IsZero())
}

var errJobGone = errors.New("job disappeared")
