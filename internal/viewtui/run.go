package viewtui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/overseer-cli/overseer/internal/client"
	"github.com/overseer-cli/overseer/internal/hub"
)

// Run attaches a terminal viewer to a session through a reconnecting
// transport and blocks until the user quits.
func Run(ctx context.Context, sessionID string, opts client.Options) error {
	var program *tea.Program

	transport := client.New(client.Options{
		URL:   opts.URL,
		Token: opts.Token,
		OnMessage: func(msg *hub.WireMsg) {
			if program == nil {
				return
			}
			switch msg.Type {
			case hub.MsgSessionSnapshot:
				if snap, err := hub.DecodeData[hub.SessionSnapshot](msg); err == nil && snap.SessionID == sessionID {
					program.Send(SnapshotMsg{Snapshot: snap})
				}
			case hub.MsgError:
				if we, err := hub.DecodeData[hub.WireError](msg); err == nil {
					program.Send(ServerErrorMsg{Error: we.Error})
				}
			}
		},
		OnStatus: func(status string) {
			if program != nil {
				program.Send(ConnStatusMsg{Status: status})
			}
		},
	})
	defer transport.Close()

	model := NewModel(sessionID, transport)
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	transport.Dial(ctx)
	if err := transport.Subscribe(hub.WireSubscribe{SessionID: sessionID}); err != nil {
		return fmt.Errorf("subscribing to session %s: %w", sessionID, err)
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running viewer: %w", err)
	}
	return nil
}
