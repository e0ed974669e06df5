// Package metadata parses raw PTY output chunks into structured session
// state. Each chunk is parsed independently; the result is a partial patch
// whose fields are present only when confidently detected.
package metadata

import (
	"regexp"
	"strings"
)

// Patch is a partial metadata update. Nil fields were not detected in the
// chunk; the supervisor applies set fields one by one.
type Patch struct {
	Model           *string
	ContextUsed     *string
	LastMessage     *string
	WaitingForInput *bool
}

// Empty reports whether no field was detected.
func (p Patch) Empty() bool {
	return p.Model == nil && p.ContextUsed == nil && p.LastMessage == nil && p.WaitingForInput == nil
}

// spinnerGlyphs are the animation frames Claude Code prefixes to its OSC
// window titles.
var spinnerGlyphs = map[rune]bool{
	'⠐': true, '⠂': true, '✳': true, '✶': true, '✻': true, '✽': true,
	'✢': true, '·': true, '⠈': true, '⠁': true, '⠃': true,
}

var (
	oscTitle0Re = regexp.MustCompile(`\x1b\]0;([^\x07]*)\x07`)
	oscTitle2Re = regexp.MustCompile(`\x1b\]2;([^\x07]*)\x07`)
	dimTextRe   = regexp.MustCompile(`\x1b\[2m([^\x1b]*)\x1b\[22m`)
	modelRe     = regexp.MustCompile(`(opus|sonnet|haiku)[- ]?(\d+(?:[.-]\d+)*)`)
	contextRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	promptRe    = regexp.MustCompile(`❯ \x1b\[39m([^\x1b\r\n]*)`)

	csiRe = regexp.MustCompile(`\x1b\[[^a-zA-Z]*[a-zA-Z]`)
	oscRe = regexp.MustCompile(`\x1b\][^\x07]*\x07`)
)

// StripANSI removes CSI and OSC escape sequences and carriage returns.
func StripANSI(s string) string {
	s = csiRe.ReplaceAllString(s, "")
	s = oscRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\r", "")
}

// Extract parses one output chunk. Rules run in priority order; a later
// rule only assigns a field an earlier rule left unset.
func Extract(chunk []byte) Patch {
	text := string(chunk)
	var p Patch

	// Rule 1: Claude Code OSC 0 window title with a spinner glyph prefix.
	if m := oscTitle0Re.FindStringSubmatch(text); m != nil {
		if title, ok := splitSpinnerTitle(m[1]); ok {
			if title == "Claude Code" {
				p.setWaiting(true)
			} else if len(title) > 2 && len(title) < 80 {
				p.setLastMessage(title)
				p.setWaiting(false)
			}
		}
	}

	// Rule 2: Copilot OSC 2 window title.
	if m := oscTitle2Re.FindStringSubmatch(text); m != nil {
		if m[1] == "GitHub Copilot" {
			p.setModel("GitHub Copilot")
		}
	}

	// Rule 3: Claude Code dim-text status line.
	if m := dimTextRe.FindStringSubmatch(text); m != nil {
		dim := m[1]
		if strings.HasPrefix(dim, "Type @") {
			p.setWaiting(true)
		} else if len(dim) > 2 && len(dim) < 100 && !strings.HasPrefix(dim, "─") {
			p.setLastMessage(dim)
		}
	}

	stripped := StripANSI(text)

	// Rule 4: model name and context utilization on the stripped chunk.
	if m := modelRe.FindStringSubmatch(stripped); m != nil {
		name := strings.ToUpper(m[1][:1]) + m[1][1:]
		version := strings.ReplaceAll(m[2], "-", ".")
		p.setModel(name + " " + version)
	}
	if m := contextRe.FindStringSubmatch(stripped); m != nil {
		p.setContextUsed(m[1] + "%")
	}

	// Rule 5: Copilot input prompt.
	if m := promptRe.FindStringSubmatch(text); m != nil && m[1] != "" && !strings.HasPrefix(m[1], "Type @") {
		p.setLastMessage(m[1])
	} else if strings.Contains(text, "❯") {
		p.setWaiting(true)
	}

	// Rule 6: fallback for mid-turn reasoning output.
	if p.LastMessage == nil && strings.Contains(stripped, "thinking") {
		p.setLastMessage("Thinking...")
		p.setWaiting(false)
	}

	return p
}

// splitSpinnerTitle strips the spinner glyph prefix from an OSC title
// payload. Titles without a known glyph prefix are ignored.
func splitSpinnerTitle(payload string) (string, bool) {
	runes := []rune(payload)
	if len(runes) < 2 || !spinnerGlyphs[runes[0]] || runes[1] != ' ' {
		return "", false
	}
	return string(runes[2:]), true
}

func (p *Patch) setModel(v string) {
	if p.Model == nil {
		p.Model = &v
	}
}

func (p *Patch) setContextUsed(v string) {
	if p.ContextUsed == nil {
		p.ContextUsed = &v
	}
}

func (p *Patch) setLastMessage(v string) {
	if p.LastMessage == nil {
		p.LastMessage = &v
	}
}

func (p *Patch) setWaiting(v bool) {
	if p.WaitingForInput == nil {
		p.WaitingForInput = &v
	}
}
