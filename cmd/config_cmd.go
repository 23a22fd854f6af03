package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configSetKeyCmd())
	return cmd
}

func configSetKeyCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "set-key <provider>",
		Short: "Store a provider API key in the OS keyring (read from stdin)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			provider := args[0]
			if remove {
				if err := config.DeleteProviderKey(provider); err != nil {
					fatalf("remove key: %v", err)
				}
				fmt.Printf("Removed %s key from keyring.\n", provider)
				return
			}

			fmt.Fprintf(os.Stderr, "Enter API key for %s: ", provider)
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				fatalf("read key: %v", err)
			}
			if err := config.SetProviderKey(provider, line); err != nil {
				fatalf("store key: %v", err)
			}
			fmt.Fprintln(os.Stderr)
			fmt.Printf("Stored %s key in keyring (service %q).\n", provider, config.KeyringService)
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "remove the stored key instead")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
				os.Exit(1)
			}

			// Redact secrets before display
			redacted := redactConfig(cfg)
			data, _ := json.MarshalIndent(redacted, "", "  ")
			fmt.Println(string(data))
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			_, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid config: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Config at %s is valid.\n", cfgPath)
		},
	}
}

// redactConfig returns a JSON-safe copy with secrets masked.
func redactConfig(cfg *config.Config) any {
	data, _ := json.Marshal(cfg)
	var raw map[string]any
	json.Unmarshal(data, &raw)
	redactMap(raw)
	return raw
}

func redactMap(m map[string]any) {
	secretKeys := map[string]bool{
		"apiKey": true, "postgresDsn": true, "headers": true, "env": true,
		"token": true, "secret": true, "password": true,
	}
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if secretKeys[k] || (k == "url" && strings.Contains(val, "@")) {
				m[k] = maskSecret(val)
			}
		case map[string]any:
			if secretKeys[k] {
				for hk := range val {
					val[hk] = "****"
				}
				continue
			}
			redactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					redactMap(sub)
				}
			}
		}
	}
}

func maskSecret(s string) string {
	if len(s) > 8 {
		return s[:4] + "****" + s[len(s)-4:]
	}
	if s != "" {
		return "****"
	}
	return s
}
