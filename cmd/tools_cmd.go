package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func toolsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools a run can use",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			ts, err := buildTools(context.Background(), cfg, true)
			if err != nil {
				fatalf("%s", err)
			}
			defer ts.Close()

			all := ts.Registry.All()
			if jsonOutput {
				type toolInfo struct {
					Name        string         `json:"name"`
					Description string         `json:"description"`
					Parameters  map[string]any `json:"parameters"`
				}
				infos := make([]toolInfo, 0, len(all))
				for _, t := range all {
					infos = append(infos, toolInfo{t.Name(), t.Description(), t.Parameters()})
				}
				data, _ := json.MarshalIndent(infos, "", "  ")
				fmt.Println(string(data))
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tDESCRIPTION\n")
			for _, t := range all {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name(), truncateStr(oneLine(t.Description()), 90))
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON (includes parameter schemas)")
	return cmd
}
