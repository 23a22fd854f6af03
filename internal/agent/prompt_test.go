package agent

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/jobagent/internal/tools"
)

func TestBuildSystemPrompt_Catalogue(t *testing.T) {
	got := BuildSystemPrompt("", []tools.Tool{tools.NewFinishTool(), tools.NewSpawnJobTool()})

	for _, want := range []string{DefaultSystemPrompt, "## Reply format", "### finish", "### spawn_job", `"required":["message"]`} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Index(got, "### finish") > strings.Index(got, "### spawn_job") {
		t.Error("tools should be listed in registry order")
	}
}

func TestBuildSystemPrompt_NoTools(t *testing.T) {
	got := BuildSystemPrompt("Custom base.", nil)
	if !strings.HasPrefix(got, "Custom base.") {
		t.Errorf("custom base prompt not used: %q", got[:40])
	}
	if !strings.Contains(got, "No tools are available") {
		t.Error("expected a no-tools notice")
	}
}
