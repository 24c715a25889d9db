package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"sendme/internal/engine"
	"sendme/internal/types"
	"sendme/internal/upload"
)

type ListCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewListCommand(stdout, stderr io.Writer, newClient clientFactory) *ListCommand {
	return &ListCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *ListCommand) Run(args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asJSON := fs.Bool("json", false, "print records as JSON")
	kind := fs.String("kind", "", "only show one kind: text|image|file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter := types.Kind(strings.ToLower(strings.TrimSpace(*kind)))
	if filter != "" && !filter.Valid() {
		return fmt.Errorf("invalid kind %q: must be text, image or file", *kind)
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), client.Settings().Timeout())
	defer cancel()
	fetched, err := client.FetchAll(ctx)
	if err != nil {
		return err
	}
	records := make([]types.Record, 0, len(fetched))
	for _, server := range fetched {
		if server == nil {
			continue
		}
		rec := server.ToRecord()
		if filter != "" && rec.Kind != filter {
			continue
		}
		records = append(records, rec)
	}
	if *asJSON {
		return writeJSON(c.stdout, records)
	}
	printRecords(c.stdout, records)
	return nil
}

type SendCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	stdin     io.Reader
	newClient clientFactory
}

func NewSendCommand(stdout, stderr io.Writer, stdin io.Reader, newClient clientFactory) *SendCommand {
	return &SendCommand{stdout: stdout, stderr: stderr, stdin: stdin, newClient: newClient}
}

func (c *SendCommand) Run(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	content, err := messageContent(fs.Args(), c.stdin)
	if err != nil {
		return err
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	eng := newEngine(client)
	defer eng.Close()
	id, ok := eng.SubmitText(content)
	if !ok {
		return errors.New("message is empty")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := eng.Wait(ctx); err != nil {
		return err
	}
	rec, _ := eng.Get(id)
	if rec.Status == types.StatusError {
		return errors.New(rec.ErrorDetail)
	}
	fmt.Fprintln(c.stdout, rec.ID)
	return nil
}

// messageContent joins the positional arguments, or reads stdin when the only
// argument is "-".
func messageContent(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		if stdin == nil {
			return "", errors.New("stdin is not available")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	if len(args) == 0 {
		return "", errors.New("message text is required")
	}
	return strings.Join(args, " "), nil
}

type UploadCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewUploadCommand(stdout, stderr io.Writer, newClient clientFactory) *UploadCommand {
	return &UploadCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *UploadCommand) Run(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asJSON := fs.Bool("json", false, "print the resulting records as JSON")
	quiet := fs.Bool("quiet", false, "do not report progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one file path is required")
	}
	files := make([]upload.File, 0, fs.NArg())
	for _, path := range fs.Args() {
		file, err := upload.OpenLocal(path)
		if err != nil {
			return err
		}
		files = append(files, file)
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	eng := newEngine(client)
	defer eng.Close()

	var progress sync.WaitGroup
	if !*quiet {
		events, unsubscribe := eng.Subscribe()
		defer unsubscribe()
		progress.Add(1)
		go func() {
			defer progress.Done()
			reportProgress(c.stderr, events)
		}()
	}

	submitted := eng.SubmitFiles(files)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := eng.Wait(ctx); err != nil {
		return err
	}
	eng.Close()
	progress.Wait()

	records := make([]types.Record, 0, len(submitted))
	for _, id := range submitted {
		if rec, ok := eng.Get(id); ok {
			records = append(records, rec)
		}
	}
	if *asJSON {
		if err := writeJSON(c.stdout, records); err != nil {
			return err
		}
	} else {
		printRecords(c.stdout, records)
	}
	if failed := countFailed(records); failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(records))
	}
	return nil
}

// reportProgress prints a line whenever an upload's percentage moves. It
// returns once the engine closes the stream.
func reportProgress(w io.Writer, events <-chan engine.Event) {
	last := map[uint64]int{}
	for event := range events {
		rec := event.Record
		if event.Type != engine.EventUpdated || rec.Kind == types.KindText || !rec.Pending() {
			continue
		}
		if prev, ok := last[rec.Ref]; ok && prev == rec.Progress {
			continue
		}
		last[rec.Ref] = rec.Progress
		name := rec.Summary()
		if file, ok := rec.File(); ok {
			name = file.Name
		}
		fmt.Fprintf(w, "%s %d%%\n", name, rec.Progress)
	}
}

type RemoveCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewRemoveCommand(stdout, stderr io.Writer, newClient clientFactory) *RemoveCommand {
	return &RemoveCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *RemoveCommand) Run(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one message id is required")
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), client.Settings().Timeout())
	defer cancel()
	var errs []error
	for _, id := range fs.Args() {
		if err := client.DeleteMessage(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Fprintf(c.stdout, "deleted %s\n", id)
	}
	return errors.Join(errs...)
}

type EditCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	stdin     io.Reader
	newClient clientFactory
}

func NewEditCommand(stdout, stderr io.Writer, stdin io.Reader, newClient clientFactory) *EditCommand {
	return &EditCommand{stdout: stdout, stderr: stderr, stdin: stdin, newClient: newClient}
}

func (c *EditCommand) Run(args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: sendme edit <id> <text|->")
	}
	id := fs.Arg(0)
	content, err := messageContent(fs.Args()[1:], c.stdin)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("message is empty")
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), client.Settings().Timeout())
	defer cancel()
	device := types.ParseDevice(client.Settings().DeviceKind())
	server, err := client.UpdateText(ctx, id, content, device)
	if err != nil {
		return err
	}
	printRecords(c.stdout, []types.Record{server.ToRecord()})
	return nil
}

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
