package main

import (
	"io"
	"os"
	"time"
)

type commandRunner interface {
	Run(args []string) error
}

type commandWiring struct {
	stdout    io.Writer
	stderr    io.Writer
	stdin     io.Reader
	newClient clientFactory
	now       func() time.Time
	version   string
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:    stdout,
		stderr:    stderr,
		stdin:     os.Stdin,
		newClient: newSendmeClient,
		now:       time.Now,
		version:   buildVersion(),
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"ls":       NewListCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"send":     NewSendCommand(wiring.stdout, wiring.stderr, wiring.stdin, wiring.newClient),
		"upload":   NewUploadCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"rm":       NewRemoveCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"edit":     NewEditCommand(wiring.stdout, wiring.stderr, wiring.stdin, wiring.newClient),
		"download": NewDownloadCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"login":    NewLoginCommand(wiring.stdout, wiring.stderr, wiring.stdin, wiring.newClient, wiring.now),
		"register": NewRegisterCommand(wiring.stdout, wiring.stderr, wiring.stdin, wiring.newClient),
		"logout":   NewLogoutCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"whoami":   NewWhoAmICommand(wiring.stdout, wiring.stderr, wiring.newClient, wiring.now),
		"config":   NewConfigCommand(wiring.stdout, wiring.stderr),
		"ui":       NewUICommand(wiring.stderr, wiring.newClient),
		"version":  NewVersionCommand(wiring.stdout, wiring.version),
	}
}
