package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/muesli/termenv"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows progress for long operations on a TTY. On non-TTY
// output it stays silent until Success or Fail prints the final line.
type Spinner struct {
	w        io.Writer
	term     *termenv.Output
	msg      string
	interval time.Duration
	enabled  bool

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSpinner creates a spinner writing to stderr. It animates only in
// text mode on a terminal.
func (r *Renderer) NewSpinner(msg string) *Spinner {
	return &Spinner{
		w:        r.errOut,
		term:     termenv.NewOutput(r.errOut),
		msg:      msg,
		interval: 100 * time.Millisecond,
		enabled:  r.isTTY && r.EffectiveMode() == ModeText,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.enabled {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.term.HideCursor()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				s.term.ClearLine()
				fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.msg)
				s.mu.Unlock()
				frame++
			}
		}
	}()
}

// stop ends the animation and clears the spinner line.
func (s *Spinner) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.term.ClearLine()
	fmt.Fprint(s.w, "\r")
	s.term.ShowCursor()
}

// Stop ends the animation without a final message.
func (s *Spinner) Stop() {
	s.stop()
}

// Success stops the spinner and prints a success line.
func (s *Spinner) Success(msg string) {
	s.stop()
	fmt.Fprintf(s.w, "✓ %s\n", msg)
}

// Fail stops the spinner and prints a failure line.
func (s *Spinner) Fail(msg string) {
	s.stop()
	fmt.Fprintf(s.w, "✗ %s\n", msg)
}
