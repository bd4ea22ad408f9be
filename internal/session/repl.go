package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// LineReader reads one line of input; *readline.Instance implements it.
type LineReader interface {
	Readline() (string, error)
}

// Run greets, then executes lines from rl until exit or end of input.
// Ctrl-C discards the current line.
func (s *Session) Run(rl LineReader) error {
	s.Greet()

	for {
		line, err := rl.Readline()

		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(s.out, "\nExiting.")

			return nil
		case err != nil:
			return fmt.Errorf("error reading command: %w", err)
		}

		if s.Execute(line) {
			return nil
		}
	}
}
