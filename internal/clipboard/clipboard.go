// Package clipboard adapts the system clipboard to vault.Clipboard.
package clipboard

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no clipboard tool is installed.
var ErrUnavailable = errors.New("clipboard: no clipboard tool found")

// System is the OS clipboard. It satisfies vault.Clipboard.
type System struct {
	// unsupported and writeAll are replaced in tests.
	unsupported func() bool
	writeAll    func(string) error
}

// New returns the OS clipboard.
func New() *System {
	return &System{
		unsupported: func() bool { return clipboard.Unsupported },
		writeAll:    clipboard.WriteAll,
	}
}

// WriteText replaces the clipboard contents with text. Writing "" clears it.
func (s *System) WriteText(text string) error {
	if s.unsupported() {
		return fmt.Errorf("%w: install xclip, xsel or wl-clipboard", ErrUnavailable)
	}
	if err := s.writeAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}
