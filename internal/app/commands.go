package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"sendme/internal/engine"
)

type engineEventMsg struct {
	event engine.Event
}

type engineClosedMsg struct{}

type loadedMsg struct {
	added int
	err   error
}

type copyResultMsg struct {
	id     string
	method clipboardMethod
	err    error
}

type remoteRemovedMsg struct {
	id  string
	err error
}

func waitForEvent(events <-chan engine.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return engineClosedMsg{}
		}
		return engineEventMsg{event: event}
	}
}

func loadCmd(eng *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		added, err := eng.Load(ctx)
		return loadedMsg{added: added, err: err}
	}
}

func copyCmd(id, text string) tea.Cmd {
	return func() tea.Msg {
		method, err := copyTextToClipboard(text)
		return copyResultMsg{id: id, method: method, err: err}
	}
}

func removeRemoteCmd(remote Remover, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return remoteRemovedMsg{id: id, err: remote.DeleteMessage(ctx, id)}
	}
}
