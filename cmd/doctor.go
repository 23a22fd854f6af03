package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/config"
	"github.com/nextlevelbuilder/jobagent/internal/store/redisstore"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	headStyle = lipgloss.NewStyle().Bold(true)
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println(headStyle.Render("jobagent doctor"))
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(warnStyle.Render(" (NOT FOUND, using defaults)"))
	} else {
		fmt.Println(okStyle.Render(" (OK)"))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  %s %s\n", badStyle.Render("Config load error:"), err)
		return
	}

	// Provider
	fmt.Println()
	fmt.Println(headStyle.Render("  Provider:"))
	fmt.Printf("    %-12s %s / %s\n", "Model:", cfg.Provider.Name, cfg.Provider.Model)
	checkProvider("API key", cfg.Provider.APIKey)

	// Backends
	fmt.Println()
	fmt.Println(headStyle.Render("  Backends:"))
	checkRedis(cfg.Redis.URL)
	checkSessions(cfg)

	// External tools
	fmt.Println()
	fmt.Println(headStyle.Render("  External Tools:"))
	checkBinary("sh")
	for _, c := range cfg.Tools.Commands {
		checkBinary(firstWord(c.Command))
	}
	if b := cfg.Tools.Browser; b.Enabled && b.ChromePath != "" {
		checkBinary(b.ChromePath)
	}
	for _, s := range cfg.Tools.MCPServers {
		if !s.Disabled {
			checkBinary(s.Command)
		}
	}

	fmt.Println()
	fmt.Println(headStyle.Render("Doctor check complete."))
}

func checkProvider(name, apiKey string) {
	if len(apiKey) > 8 {
		maskedKey := apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
		fmt.Printf("    %-12s %s\n", name+":", maskedKey)
	} else if apiKey != "" {
		fmt.Printf("    %-12s ****\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", warnStyle.Render("(not configured)"))
	}
}

func checkRedis(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := redisstore.Connect(ctx, url)
	if err != nil {
		fmt.Printf("    %-12s %s (%s)\n", "Redis:", badStyle.Render("UNREACHABLE"), err)
		return
	}
	rdb.Close()
	fmt.Printf("    %-12s %s\n", "Redis:", okStyle.Render("OK"))
}

func checkSessions(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := openSessionStore(ctx, cfg)
	if err != nil {
		fmt.Printf("    %-12s %s %s (%s)\n", "Sessions:", cfg.Sessions.Backend, badStyle.Render("ERROR"), err)
		return
	}
	s.Close()
	fmt.Printf("    %-12s %s %s\n", "Sessions:", cfg.Sessions.Backend, okStyle.Render("OK"))
}

func checkBinary(name string) {
	if name == "" {
		return
	}
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s %s\n", name+":", badStyle.Render("NOT FOUND"))
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}

// firstWord returns the program a command line runs, honoring quotes.
func firstWord(s string) string {
	fields, err := shellwords.Parse(s)
	if err != nil || len(fields) == 0 {
		fields = strings.Fields(s)
	}
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
