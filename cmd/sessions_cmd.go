package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect session history",
	}
	cmd.AddCommand(sessionsShowCmd())
	return cmd
}

func sessionsShowCmd() *cobra.Command {
	var jsonOutput bool
	var full bool
	cmd := &cobra.Command{
		Use:   "show <sessionID>",
		Short: "Print a session's history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ctx := context.Background()

			sessions, err := openSessionStore(ctx, cfg)
			if err != nil {
				fatalf("%s", err)
			}
			defer sessions.Close()

			sess, err := sessions.GetOrCreate(ctx, args[0], "")
			if err != nil {
				fatalf("%s", err)
			}
			printSession(sess, jsonOutput, full)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&full, "full", false, "do not shorten entries")
	return cmd
}

func printSession(sess *store.Session, jsonOutput, full bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(sess, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(sess.History) == 0 {
		fmt.Println("No history.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tTIME\tROLE\tCONTENT\n")
	for i, e := range sess.History {
		role := string(e.Role)
		if e.ToolName != "" {
			role += ":" + e.ToolName
		}
		content := oneLine(e.Content)
		if !full {
			content = truncateStr(content, 100)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.CreatedAt.Local().Format(time.DateTime), role, content)
	}
	tw.Flush()
}

func oneLine(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '\n' || r == '\r' || r == '\t' {
			out[i] = ' '
		}
	}
	return string(out)
}

// truncateStr cuts s to max terminal columns.
func truncateStr(s string, max int) string {
	return runewidth.Truncate(s, max, "...")
}
