package agent

import (
	"errors"
	"testing"
)

func TestParseResponse_Plain(t *testing.T) {
	p, err := ParseResponse(`{"answer":"hi"}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.Answer == nil || *p.Answer != "hi" {
		t.Errorf("expected answer hi, got %+v", p)
	}
	if p.Command != nil || p.Thought != nil || p.Canvas != nil {
		t.Errorf("unexpected fields set: %+v", p)
	}
}

func TestParseResponse_Fenced(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"thought\":\"check\",\"command\":{\"name\":\"web_fetch\",\"params\":{\"url\":\"https://go.dev\"}}}\n```\nDone."
	p, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.Thought == nil || *p.Thought != "check" {
		t.Errorf("thought not parsed: %+v", p)
	}
	if p.Command == nil || p.Command.Name != "web_fetch" || p.Command.Params["url"] != "https://go.dev" {
		t.Errorf("command not parsed: %+v", p.Command)
	}
}

func TestParseResponse_UntaggedFence(t *testing.T) {
	p, err := ParseResponse("```\n{\"canvas\":{\"content\":\"# Title\",\"contentType\":\"text/markdown\"}}\n```")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.Canvas == nil || p.Canvas.Content != "# Title" || p.Canvas.ContentType != "text/markdown" {
		t.Errorf("canvas not parsed: %+v", p.Canvas)
	}
}

func TestParseResponse_BareJSONWithFencedCanvas(t *testing.T) {
	raw := "{\"canvas\":{\"content\":\"```go\\nfmt.Println(1)\\n```\",\"contentType\":\"text/markdown\"},\"answer\":\"see canvas\"}"
	p, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.Answer == nil || *p.Answer != "see canvas" {
		t.Errorf("answer not parsed: %+v", p)
	}
	want := "```go\nfmt.Println(1)\n```"
	if p.Canvas == nil || p.Canvas.Content != want {
		t.Errorf("canvas content = %+v, want %q", p.Canvas, want)
	}
}

func TestParseResponse_EmptyObjectIsValid(t *testing.T) {
	p, err := ParseResponse(`{}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !p.Empty() {
		t.Errorf("expected empty response, got %+v", p)
	}
}

func TestParseResponse_PresentButEmptyAnswer(t *testing.T) {
	p, err := ParseResponse(`{"answer":""}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.Answer == nil {
		t.Error("an empty answer string is still an answer")
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"prose", "I think we should fetch the page first."},
		{"truncated json", `{"answer": "hi"`},
		{"not an object", `["answer"]`},
		{"answer wrong type", `{"answer": 42}`},
		{"null answer", `{"answer": null}`},
		{"command without name", `{"command": {"params": {}}}`},
		{"command empty name", `{"command": {"name": ""}}`},
		{"params not object", `{"command": {"name": "x", "params": "url"}}`},
		{"canvas without content", `{"canvas": {"contentType": "text/plain"}}`},
		{"trailing garbage", `{"answer":"hi"} extra`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseResponse(tt.raw)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v (parsed %+v)", err, p)
			}
			if p != nil {
				t.Error("parser must not return a partial response")
			}
			if pe.Raw != tt.raw {
				t.Error("ParseError should keep the raw reply")
			}
		})
	}
}
