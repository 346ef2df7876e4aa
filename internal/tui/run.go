package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run drives the terminal UI until the user quits or ctx ends. sink, when
// non-nil, is attached for the lifetime of the program.
func Run(ctx context.Context, ctrl Controller, notify Notifier, sink *Sink) error {
	p := tea.NewProgram(New(ctx, ctrl, notify),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)
	if sink != nil {
		sink.Attach(p)
		defer sink.Attach(nil)
	}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
