package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"nbcollab/internal/core/ports"
)

func runUI(ctx context.Context, watch ports.WatchService) error {
	p := tea.NewProgram(initialModel(), tea.WithAltScreen(), tea.WithContext(ctx))

	watch.Subscribe(func(u ports.WatchUpdate) {
		p.Send(updateMsg{update: u})
	})

	go func() {
		if err := watch.Start(ctx); err != nil {
			p.Send(updateMsg{update: ports.WatchUpdate{Path: "watcher", Err: err}})
		}
	}()

	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
