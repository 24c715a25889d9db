package main

import (
	"fmt"
	"os"
)

const usageText = `sendme shares text and files between your devices.

Usage:
  sendme <command> [flags]

Commands:
  ls         list messages on the server
  send       send a text message (use - to read stdin)
  upload     upload one or more files
  rm         delete messages by id
  edit       replace the content of a text message
  download   download files by message id
  login      log in and remember the session
  register   create an account
  logout     forget the saved session
  whoami     show the saved session
  config     print configuration (effective or defaults)
  ui         run the terminal UI
  version    print the build version
  help       show help

Flags:
  -h, --help   show help

Examples:
  sendme send "meeting moved to 3pm"
  echo hello | sendme send -
  sendme upload ~/Pictures/cat.png report.pdf
  sendme download --dir /tmp 12 13
  sendme config --default --format toml
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	exitOnErr(args[0], runner.Run(args[1:]), wiring.stderr)
}
