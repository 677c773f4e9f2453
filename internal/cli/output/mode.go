// Package output provides rendering for CLI command output.
//
// Commands render through a Renderer, which resolves an output mode
// (text, markdown or JSON) from configuration and terminal detection.
// Text mode styles output with ANSI colors when attached to a TTY;
// markdown mode produces plain pipeable text; JSON mode emits machine
// readable documents for scripting.
package output

import "strings"

// Mode selects how command output is rendered.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// OutputMode is an alias for Mode for call sites that prefer the full name.
type OutputMode = Mode

// ParseMode normalizes a mode string. Unknown values fall back to auto.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText
	case ModeMarkdown, "md":
		return ModeMarkdown
	case ModeJSON:
		return ModeJSON
	default:
		return ModeAuto
	}
}
