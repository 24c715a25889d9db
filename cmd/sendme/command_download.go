package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"sendme/internal/config"
	"sendme/internal/types"
)

const defaultDownloadParallelism = 3

type DownloadCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewDownloadCommand(stdout, stderr io.Writer, newClient clientFactory) *DownloadCommand {
	return &DownloadCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

type downloadTarget struct {
	id       string
	filePath string
	name     string
}

func (c *DownloadCommand) Run(args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	dir := fs.String("dir", "", "destination directory (default ~/.sendme/downloads)")
	parallel := fs.Int("parallel", defaultDownloadParallelism, "concurrent downloads")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one message id is required")
	}
	destDir, err := resolveDownloadDir(*dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	fetched, err := client.FetchAll(ctx)
	if err != nil {
		return err
	}
	targets, err := selectDownloads(fetched, fs.Args())
	if err != nil {
		return err
	}

	var outMu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(1, *parallel))
	for _, target := range targets {
		group.Go(func() error {
			dest := filepath.Join(destDir, target.name)
			n, err := downloadTo(groupCtx, client, target.filePath, dest, *force)
			if err != nil {
				return fmt.Errorf("%s: %w", target.id, err)
			}
			outMu.Lock()
			defer outMu.Unlock()
			fmt.Fprintf(c.stdout, "%s\t%s\t%s\n", target.id, dest, types.DisplaySize(n))
			return nil
		})
	}
	return group.Wait()
}

func resolveDownloadDir(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return config.DownloadsDir()
	}
	if strings.HasPrefix(raw, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, raw[2:]), nil
	}
	return filepath.Abs(raw)
}

// selectDownloads maps the requested ids to stored files. Text records and
// unknown ids are errors.
func selectDownloads(records []*types.ServerRecord, ids []string) ([]downloadTarget, error) {
	byID := make(map[string]*types.ServerRecord, len(records))
	for _, rec := range records {
		if rec != nil {
			byID[rec.ID] = rec
		}
	}
	seen := map[string]struct{}{}
	targets := make([]downloadTarget, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rec, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("message %s not found", id)
		}
		if rec.FilePath == "" {
			return nil, fmt.Errorf("message %s has no file", id)
		}
		name := filepath.Base(rec.FileName)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = filepath.Base(rec.FilePath)
		}
		targets = append(targets, downloadTarget{id: id, filePath: rec.FilePath, name: name})
	}
	return targets, nil
}

// downloadTo writes into a temp file beside dest and renames it into place
// once the body is complete.
func downloadTo(ctx context.Context, client commandClient, filePath, dest string, force bool) (int64, error) {
	if !force {
		if _, err := os.Stat(dest); err == nil {
			return 0, fmt.Errorf("%s exists (use --force to overwrite)", dest)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	n, err := client.Download(ctx, filePath, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return 0, err
	}
	return n, nil
}
