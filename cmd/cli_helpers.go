package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/jobagent/internal/agent"
	"github.com/nextlevelbuilder/jobagent/internal/config"
	"github.com/nextlevelbuilder/jobagent/internal/mcp"
	"github.com/nextlevelbuilder/jobagent/internal/providers"
	"github.com/nextlevelbuilder/jobagent/internal/store"
	"github.com/nextlevelbuilder/jobagent/internal/store/pg"
	"github.com/nextlevelbuilder/jobagent/internal/store/redisstore"
	"github.com/nextlevelbuilder/jobagent/internal/store/sqlite"
	"github.com/nextlevelbuilder/jobagent/internal/tools"
	"github.com/nextlevelbuilder/jobagent/pkg/browser"
)

// fatalf prints an error line and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

func mustConnectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	rdb, err := redisstore.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		fatalf("%s", err)
	}
	return rdb
}

func newJobStore(cfg *config.Config, rdb redis.UniversalClient) *redisstore.JobStore {
	jobs := redisstore.NewJobStore(rdb)
	jobs.ResultTTL = time.Duration(cfg.Redis.ResultTTLSec) * time.Second
	return jobs
}

// openSessionStore opens the configured session backend.
func openSessionStore(ctx context.Context, cfg *config.Config) (store.SessionStore, error) {
	switch cfg.Sessions.Backend {
	case config.BackendMemory:
		return store.NewMemorySessionStore(), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Sessions.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := pg.Open(ctx, cfg.Sessions.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sessions backend %q", cfg.Sessions.Backend)
	}
}

// buildProvider creates the model provider, throttled when configured.
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	p, err := providers.NewGollmProvider(cfg.GollmConfig())
	if err != nil {
		return nil, err
	}
	if cfg.Provider.RequestsPerMinute > 0 {
		return providers.NewThrottled(p, cfg.Provider.RequestsPerMinute, cfg.Provider.Burst), nil
	}
	return p, nil
}

// toolset is the registry plus the pieces the caller must shut down or reset.
type toolset struct {
	Registry *tools.Registry
	Limiter  *tools.ToolRateLimiter
	MCP      *mcp.Manager
	Browser  *browser.Manager
}

func (ts *toolset) Close() {
	if ts.MCP != nil {
		ts.MCP.Close()
	}
	if ts.Browser != nil {
		if err := ts.Browser.Stop(); err != nil {
			slog.Debug("browser stop", "error", err)
		}
	}
}

// buildTools registers the built-in, command and MCP tools. spawn_job is
// only offered when runs have a queue to submit to.
func buildTools(ctx context.Context, cfg *config.Config, withQueue bool) (*toolset, error) {
	reg := tools.NewRegistry()
	limiter := tools.NewToolRateLimiter(cfg.Tools.RateLimitPerHour, time.Hour)
	if limiter != nil {
		reg.SetRateLimiter(limiter)
	}

	reg.MustRegister(tools.NewFinishTool())
	if cfg.Tools.SpawnJob && withQueue {
		reg.MustRegister(tools.NewSpawnJobTool())
	}
	if cfg.Tools.WebFetch.Enabled {
		reg.MustRegister(tools.NewWebFetchTool(cfg.WebFetchConfig()))
	}
	for _, cc := range cfg.Tools.Commands {
		ct, err := tools.NewCommandTool(cc, cfg.Tools.DenyPatterns)
		if err != nil {
			return nil, fmt.Errorf("command tool %s: %w", cc.Name, err)
		}
		if err := reg.Register(ct); err != nil {
			return nil, err
		}
	}

	ts := &toolset{Registry: reg, Limiter: limiter}
	if bc := cfg.Tools.Browser; bc.Enabled {
		ts.Browser = browser.New(browser.WithHeadless(bc.Headless), browser.WithBinary(bc.ChromePath))
		reg.MustRegister(tools.NewBrowseTool(ts.Browser, cfg.BrowseConfig()))
	}
	if len(cfg.Tools.MCPServers) > 0 {
		ts.MCP = mcp.NewManager(reg)
		if err := ts.MCP.Start(ctx, cfg.Tools.MCPServers); err != nil {
			// Partial MCP availability is not fatal.
			slog.Warn("some MCP servers are unavailable", "error", err)
		}
	}
	return ts, nil
}

// loopConfig combines config settings with runtime collaborators.
func loopConfig(cfg *config.Config, provider providers.Provider, reg *tools.Registry) agent.LoopConfig {
	lc := cfg.LoopConfig()
	lc.Provider = provider
	lc.Tools = reg
	lc.Logger = slog.Default()
	return lc
}
