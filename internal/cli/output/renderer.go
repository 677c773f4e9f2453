package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   Mode
	styles *Styles
}

// NewRenderer creates a renderer, detecting TTY state from the output writer.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
// Tests use this to pin down mode resolution.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	r := &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
	}
	r.styles = NewStyles(r.EffectiveMode() == ModeText && isTTY)
	return r
}

// EffectiveMode resolves auto mode: text on a TTY, markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto && r.mode != "" {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether stdout is a terminal.
func (r *Renderer) IsTTY() bool {
	return r.isTTY
}

// Writer returns the stdout writer for direct output.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// ErrWriter returns the stderr writer.
func (r *Renderer) ErrWriter() io.Writer {
	return r.errOut
}

// Styles returns the active style set.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Println writes a line to stdout.
func (r *Renderer) Println(args ...interface{}) {
	fmt.Fprintln(r.out, args...)
}

// Printf writes formatted output to stdout.
func (r *Renderer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

// Header writes a section header appropriate for the current mode.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(level, text))
		return
	}
	style := r.styles.Header1
	if level >= 2 {
		style = r.styles.Header2
	}
	r.Println(style.Render(text))
}

// KeyValue writes an aligned "Key: value" line.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatKeyValue(key, value))
		return
	}
	r.Printf("%s %s\n", r.styles.Bold.Render(key+":"), value)
}

// Success writes a success line to stdout.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render("✓ " + msg))
}

// Warning writes a warning line to stderr.
func (r *Renderer) Warning(msg string) {
	fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+msg))
}

// Error writes an error line to stderr.
func (r *Renderer) Error(msg string) {
	fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+msg))
}

// Muted writes a de-emphasized line to stdout.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// ID returns an identifier styled for inline use.
func (r *Renderer) ID(id string) string {
	return r.styles.ID.Render(id)
}

// StatusLine writes a name, a status word, and an optional message.
// The status word is colored by its meaning in text mode.
func (r *Renderer) StatusLine(name, status, msg string) {
	word := status
	switch status {
	case "ok", "pass", "completed", "success":
		word = r.styles.StatusSuccess.Render(status)
	case "fail", "failed", "error":
		word = r.styles.StatusFailed.Render(status)
	case "warn", "running", "skip":
		word = r.styles.StatusRunning.Render(status)
	}
	if msg == "" {
		r.Printf("%-28s %s\n", name, word)
		return
	}
	r.Printf("%-28s %-10s %s\n", name, word, msg)
}

// JSON writes the value as an indented JSON document to stdout.
func (r *Renderer) JSON(v interface{}) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
