package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/cron"
	"github.com/nextlevelbuilder/jobagent/internal/store/redisstore"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Submit recurring jobs from the configured schedules",
	}
	cmd.AddCommand(cronRunCmd())
	cmd.AddCommand(cronListCmd())
	return cmd
}

func cronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustLoadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rdb := mustConnectRedis(ctx, cfg)
			defer rdb.Close()

			svc, err := cron.NewService(cfg.Schedules, newJobStore(cfg, rdb), redisstore.NewCronClaims(rdb))
			if err != nil {
				return err
			}
			if len(svc.Schedules()) == 0 {
				fmt.Fprintln(os.Stderr, "No active schedules configured.")
			}
			return svc.Run(ctx)
		},
	}
}

func cronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules and their next fire time",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			if len(cfg.Schedules) == 0 {
				fmt.Println("No schedules configured.")
				return
			}

			now := time.Now()
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTRIGGER\tNEXT\tPROMPT")
			for _, s := range cfg.Schedules {
				trigger := s.Cron
				if trigger == "" {
					trigger = fmt.Sprintf("every %ds", s.EverySec)
				}
				next := "disabled"
				if !s.Disabled {
					if t, err := s.NextAfter(now); err == nil {
						next = t.Local().Format(time.DateTime)
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, trigger, next, truncateStr(oneLine(s.Prompt), 60))
			}
			tw.Flush()
		},
	}
}
