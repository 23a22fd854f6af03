package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/agent"
	"github.com/nextlevelbuilder/jobagent/internal/bus"
	"github.com/nextlevelbuilder/jobagent/internal/store"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

func runCmd() *cobra.Command {
	var sessionID string
	var jsonOutput bool
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run one prompt locally without the queue (Ctrl-C interrupts)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(strings.Join(args, " "), sessionID, jsonOutput, quiet)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to continue (default: a new one)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func runLocal(prompt, sessionID string, jsonOutput, quiet bool) error {
	cfg := mustLoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := initTelemetry(ctx, cfg)
	defer shutdownTelemetry()

	sessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	ts, err := buildTools(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer ts.Close()

	job := store.Job{
		ID:        store.GenNewID(),
		Prompt:    strings.TrimSpace(prompt),
		State:     protocol.JobStateActive,
		CreatedAt: time.Now().UTC(),
	}
	job.SessionID = sessionID
	if job.SessionID == "" {
		job.SessionID = job.ID
	}
	sess, err := sessions.GetOrCreate(ctx, job.SessionID, provider.Name())
	if err != nil {
		return err
	}

	lc := loopConfig(cfg, provider, ts.Registry)
	lc.Sessions = sessions
	if !quiet {
		progress := bus.New(0)
		defer progress.Close()
		progress.Subscribe("stderr", func(ev protocol.ProgressEvent) {
			if ev.Type != protocol.ProgressFinalAnswer {
				printProgress(os.Stderr, ev)
			}
		})
		lc.Sink = progress
	}

	res := agent.NewLoop(lc).Run(ctx, agent.RunRequest{Job: job, Session: sess})

	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Println(res.Output)
		if res.Reason == protocol.ReasonProviderError {
			fmt.Fprintln(os.Stderr, describeProviderFailure(res.Output))
		}
		fmt.Fprintf(os.Stderr, "(session %s, %s after %d iteration(s))\n", job.SessionID, res.Reason, res.Iterations)
	}

	if !succeeded(res.Reason) {
		os.Exit(1)
	}
	return nil
}

func succeeded(reason string) bool {
	return reason == protocol.ReasonAnswered || reason == protocol.ReasonFinishSignal
}
