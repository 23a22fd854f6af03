package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/store/redisstore"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <jobID>",
		Short: "Stream a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rdb := mustConnectRedis(ctx, cfg)
			defer rdb.Close()

			if err := watchJob(ctx, rdb, newJobStore(cfg, rdb), args[0]); err != nil {
				fatalf("%s", err)
			}
		},
	}
}

// watchJob prints progress events for jobID until the job finishes or ctx
// ends, then prints the stored result. Progress is best effort; completion is
// detected by polling the job hash.
func watchJob(ctx context.Context, rdb redis.UniversalClient, jobs *redisstore.JobStore, jobID string) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := redisstore.WatchProgress(watchCtx, rdb, jobID)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type != protocol.ProgressFinalAnswer {
				printProgress(os.Stderr, ev)
			}
		case <-ticker.C:
			rec, err := jobs.Get(ctx, jobID)
			if errors.Is(err, redisstore.ErrJobNotFound) {
				return fmt.Errorf("%w: %s", errJobGone, jobID)
			}
			if err != nil {
				return err
			}
			if jobDone(rec) {
				fmt.Println(rec.Result)
				fmt.Fprintf(os.Stderr, "(%s: %s)\n", rec.State, rec.Reason)
				return nil
			}
		}
	}
}

// printProgress renders one progress event as a single line.
func printProgress(w io.Writer, ev protocol.ProgressEvent) {
	prefix := fmt.Sprintf("[%d]", ev.Iteration)
	switch ev.Type {
	case protocol.ProgressThought:
		fmt.Fprintf(w, "%s thinking: %v\n", prefix, ev.Payload["thought"])
	case protocol.ProgressCanvas:
		fmt.Fprintf(w, "%s canvas (%v):\n%v\n", prefix, ev.Payload["contentType"], ev.Payload["content"])
	case protocol.ProgressToolStart:
		fmt.Fprintf(w, "%s -> %v %v\n", prefix, ev.Payload["tool"], ev.Payload["params"])
	case protocol.ProgressToolResult:
		status := "ok"
		if isErr, _ := ev.Payload["isError"].(bool); isErr {
			status = "error"
		}
		out, _ := ev.Payload["output"].(string)
		fmt.Fprintf(w, "%s <- %v (%s) %s\n", prefix, ev.Payload["tool"], status, truncateStr(out, 200))
	case protocol.ProgressFinalAnswer:
		fmt.Fprintf(w, "%s answer: %v\n", prefix, ev.Payload["answer"])
	default:
		fmt.Fprintf(w, "%s %s %v\n", prefix, ev.Type, ev.Payload)
	}
}
