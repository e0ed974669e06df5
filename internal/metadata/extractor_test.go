package metadata

import "testing"

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  Patch
	}{
		{
			name:  "spinner title sets last message",
			chunk: "\x1b]0;✳ Refactoring module\x07",
			want:  Patch{LastMessage: strPtr("Refactoring module"), WaitingForInput: boolPtr(false)},
		},
		{
			name:  "idle title sets waiting",
			chunk: "\x1b]0;✳ Claude Code\x07",
			want:  Patch{WaitingForInput: boolPtr(true)},
		},
		{
			name:  "title without spinner glyph is ignored",
			chunk: "\x1b]0;Refactoring module\x07",
			want:  Patch{},
		},
		{
			name:  "overlong title is ignored",
			chunk: "\x1b]0;✳ " + string(make([]byte, 100)) + "\x07",
			want:  Patch{},
		},
		{
			name:  "copilot window title sets model",
			chunk: "\x1b]2;GitHub Copilot\x07",
			want:  Patch{Model: strPtr("GitHub Copilot")},
		},
		{
			name:  "dim placeholder sets waiting",
			chunk: "\x1b[2mType @ to mention a file\x1b[22m",
			want:  Patch{WaitingForInput: boolPtr(true)},
		},
		{
			name:  "dim status line sets last message",
			chunk: "\x1b[2mCompacting conversation\x1b[22m",
			want:  Patch{LastMessage: strPtr("Compacting conversation")},
		},
		{
			name:  "dim box drawing is ignored",
			chunk: "\x1b[2m────────────\x1b[22m",
			want:  Patch{},
		},
		{
			name:  "model with dashed version",
			chunk: "using opus-4-5 for this task",
			want:  Patch{Model: strPtr("Opus 4.5")},
		},
		{
			name:  "model with spaced version",
			chunk: "sonnet 4 ready",
			want:  Patch{Model: strPtr("Sonnet 4")},
		},
		{
			name:  "context percentage",
			chunk: "Context left until auto-compact: 37%",
			want:  Patch{ContextUsed: strPtr("37%")},
		},
		{
			name:  "fractional context percentage",
			chunk: "12.5 % used",
			want:  Patch{ContextUsed: strPtr("12.5%")},
		},
		{
			name:  "context inside escape sequence is not matched",
			chunk: "\x1b[38%m",
			want:  Patch{},
		},
		{
			name:  "copilot prompt with input",
			chunk: "❯ \x1b[39mexplain this function",
			want:  Patch{LastMessage: strPtr("explain this function")},
		},
		{
			name:  "copilot prompt with placeholder waits",
			chunk: "❯ \x1b[39mType @ for context",
			want:  Patch{WaitingForInput: boolPtr(true)},
		},
		{
			name:  "bare copilot prompt waits",
			chunk: "some output\n❯ ",
			want:  Patch{WaitingForInput: boolPtr(true)},
		},
		{
			name:  "thinking fallback",
			chunk: "✻ thinking about the problem",
			want:  Patch{LastMessage: strPtr("Thinking..."), WaitingForInput: boolPtr(false)},
		},
		{
			name:  "thinking does not override title message",
			chunk: "\x1b]0;✳ Updating tests\x07 still thinking",
			want:  Patch{LastMessage: strPtr("Updating tests"), WaitingForInput: boolPtr(false)},
		},
		{
			name:  "plain output produces empty patch",
			chunk: "$ ls -la\ntotal 12\n",
			want:  Patch{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract([]byte(tt.chunk))
			comparePatch(t, tt.want, got)
		})
	}
}

func comparePatch(t *testing.T, want, got Patch) {
	t.Helper()
	compareStr(t, "Model", want.Model, got.Model)
	compareStr(t, "ContextUsed", want.ContextUsed, got.ContextUsed)
	compareStr(t, "LastMessage", want.LastMessage, got.LastMessage)
	if (want.WaitingForInput == nil) != (got.WaitingForInput == nil) {
		t.Errorf("WaitingForInput set = %v, want set = %v", got.WaitingForInput != nil, want.WaitingForInput != nil)
	} else if want.WaitingForInput != nil && *want.WaitingForInput != *got.WaitingForInput {
		t.Errorf("WaitingForInput = %v, want %v", *got.WaitingForInput, *want.WaitingForInput)
	}
}

func compareStr(t *testing.T, field string, want, got *string) {
	t.Helper()
	if (want == nil) != (got == nil) {
		t.Errorf("%s set = %v, want set = %v", field, got != nil, want != nil)
		return
	}
	if want != nil && *want != *got {
		t.Errorf("%s = %q, want %q", field, *got, *want)
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain text", "hello", "hello"},
		{"csi color", "\x1b[31mred\x1b[0m", "red"},
		{"osc title", "\x1b]0;title\x07text", "text"},
		{"carriage returns", "line\r\n", "line\n"},
		{"mixed", "\x1b[2K\rprogress 50%", "progress 50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.input); got != tt.expected {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
