package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

const defaultCommandTimeout = 60 * time.Second

// CommandToolConfig declares a shell-backed tool in the config file.
// Command uses {{.key}} placeholders; every substituted value is shell-escaped.
type CommandToolConfig struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Command     string            `json:"command"`
	Parameters  map[string]any    `json:"parameters,omitempty"`
	TimeoutSec  int               `json:"timeoutSec,omitempty"`
	WorkingDir  string            `json:"workingDir,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// Commands matching any of these are refused before they run.
var defaultDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*[rf][a-zA-Z]*\s+/(\s|$)`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+.*\bof=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`),
	regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`\bcurl\b[^|]*\|\s*(ba|z)?sh\b`),
}

// CommandTool runs a configured shell command template.
type CommandTool struct {
	cfg    CommandToolConfig
	params map[string]any
	deny   []*regexp.Regexp
}

// NewCommandTool validates cfg and builds the tool. extraDeny patterns are
// applied in addition to the built-in ones.
func NewCommandTool(cfg CommandToolConfig, extraDeny []string) (*CommandTool, error) {
	if cfg.Name == "" || cfg.Command == "" {
		return nil, errors.New("command tool: name and command are required")
	}
	deny := append([]*regexp.Regexp{}, defaultDenyPatterns...)
	for _, p := range extraDeny {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("command tool %s: deny pattern %q: %w", cfg.Name, p, err)
		}
		deny = append(deny, re)
	}
	params := cfg.Parameters
	if params == nil {
		params = emptyParameters()
	}
	return &CommandTool{cfg: cfg, params: params, deny: deny}, nil
}

func (t *CommandTool) Name() string               { return t.cfg.Name }
func (t *CommandTool) Description() string        { return t.cfg.Description }
func (t *CommandTool) Parameters() map[string]any { return t.params }

func (t *CommandTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	command := renderCommand(t.cfg.Command, args)

	for _, pattern := range t.deny {
		if pattern.MatchString(command) {
			return nil, fmt.Errorf("command denied by safety policy: matches %s", pattern.String())
		}
	}

	timeout := time.Duration(t.cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if argv, ok := commandArgv(command); ok {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = t.cfg.WorkingDir
	cmd.WaitDelay = 2 * time.Second
	if len(t.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		keys := make([]string, 0, len(t.cfg.Env))
		for k := range t.cfg.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+t.cfg.Env[k])
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + stderr.String()
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("command timed out after %s", timeout)
		}
		if output == "" {
			output = err.Error()
		}
		return ErrorResult(output), nil
	}

	if output == "" {
		output = "(command completed with no output)"
	}
	return NewResult(output), nil
}

// renderCommand replaces {{.key}} placeholders with shell-escaped values.
// Plain string replacement, not text/template, so values cannot inject
// template actions.
func renderCommand(tmpl string, args map[string]any) string {
	out := tmpl
	for key, val := range args {
		out = strings.ReplaceAll(out, "{{."+key+"}}", shellEscape(fmt.Sprint(val)))
	}
	return out
}

// commandArgv splits a command that needs no shell features into argv.
// Pipes, redirects, expansions and globs report false so the caller runs sh -c.
func commandArgv(command string) ([]string, bool) {
	if strings.ContainsAny(command, "$`*?~(){}[]\n") {
		return nil, false
	}
	p := shellwords.NewParser()
	argv, err := p.Parse(command)
	if err != nil || p.Position != -1 || len(argv) == 0 {
		return nil, false
	}
	return argv, true
}

// shellEscape wraps a value in single quotes, escaping embedded single quotes.
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
