package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"sendme/internal/auth"
)

type LoginCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	stdin     io.Reader
	newClient clientFactory
	now       func() time.Time
}

func NewLoginCommand(stdout, stderr io.Writer, stdin io.Reader, newClient clientFactory, now func() time.Time) *LoginCommand {
	if now == nil {
		now = time.Now
	}
	return &LoginCommand{stdout: stdout, stderr: stderr, stdin: stdin, newClient: newClient, now: now}
}

func (c *LoginCommand) Run(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	username := fs.String("username", "", "account name")
	password := fs.String("password", "", "account password")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user := strings.TrimSpace(*username)
	if user == "" {
		return errors.New("--username is required")
	}
	secret, err := readSecret(c.stdin, *passwordStdin, *password)
	if err != nil {
		return err
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), client.Settings().Timeout())
	defer cancel()
	session, err := client.Login(ctx, user, secret)
	if err != nil {
		return err
	}
	line := "logged in as " + session.Username
	if info, err := auth.Inspect(session.Token); err == nil && !info.Opaque {
		line += " (" + formatExpiry(info.ExpiresAt, c.now()) + ")"
	}
	fmt.Fprintln(c.stdout, line)
	return nil
}

type RegisterCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	stdin     io.Reader
	newClient clientFactory
}

func NewRegisterCommand(stdout, stderr io.Writer, stdin io.Reader, newClient clientFactory) *RegisterCommand {
	return &RegisterCommand{stdout: stdout, stderr: stderr, stdin: stdin, newClient: newClient}
}

func (c *RegisterCommand) Run(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	username := fs.String("username", "", "account name")
	password := fs.String("password", "", "account password")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user := strings.TrimSpace(*username)
	if user == "" {
		return errors.New("--username is required")
	}
	secret, err := readSecret(c.stdin, *passwordStdin, *password)
	if err != nil {
		return err
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), client.Settings().Timeout())
	defer cancel()
	created, err := client.Register(ctx, user, secret)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "registered %s; run sendme login to start a session\n", created.Username)
	return nil
}

type LogoutCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewLogoutCommand(stdout, stderr io.Writer, newClient clientFactory) *LogoutCommand {
	return &LogoutCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *LogoutCommand) Run(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Logout(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "logged out")
	return nil
}

type WhoAmICommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
	now       func() time.Time
}

func NewWhoAmICommand(stdout, stderr io.Writer, newClient clientFactory, now func() time.Time) *WhoAmICommand {
	if now == nil {
		now = time.Now
	}
	return &WhoAmICommand{stdout: stdout, stderr: stderr, newClient: newClient, now: now}
}

func (c *WhoAmICommand) Run(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.Session(context.Background())
	if err != nil {
		return err
	}
	if session.Empty() {
		return auth.ErrNotLoggedIn
	}
	info, err := auth.Inspect(session.Token)
	if err != nil {
		return err
	}
	name := session.Username
	if name == "" {
		name = info.Subject
	}
	expiry := "opaque token"
	if !info.Opaque {
		expiry = formatExpiry(info.ExpiresAt, c.now())
	}
	fmt.Fprintf(c.stdout, "%s @ %s (%s)\n", name, session.BaseURL, expiry)
	return nil
}
