package main

import (
	"bufio"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"

	"sendme/internal/blob"
	"sendme/internal/engine"
	"sendme/internal/logging"
	"sendme/internal/types"
)

const (
	version           = "dev"
	summaryColumnMax  = 60
	recordTimeLayout  = "2006-01-02 15:04"
	recordTimeMissing = "-"
)

// newEngine builds an engine that talks to the backend through client.
func newEngine(client commandClient) *engine.Engine {
	cfg := client.Settings()
	return engine.New(
		engine.WithTransport(client),
		engine.WithDevice(types.ParseDevice(cfg.DeviceKind())),
		engine.WithLogger(client.Logger().With(logging.F("component", "engine"))),
		engine.WithMaxConcurrentUploads(cfg.MaxConcurrentUploads()),
		engine.WithCopyWindow(cfg.CopyWindow()),
		engine.WithPreviews(blob.NewRegistry(cfg.ThumbnailSize())),
	)
}

func printRecords(output io.Writer, records []types.Record) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tKIND\tSTATUS\tDEVICE\tCREATED\tSUMMARY")
	for _, rec := range records {
		created := recordTimeMissing
		if !rec.CreatedAt.IsZero() {
			created = rec.CreatedAt.Local().Format(recordTimeLayout)
		}
		summary := rec.Summary()
		if rec.Status == types.StatusError && rec.ErrorDetail != "" {
			summary += " [" + rec.ErrorDetail + "]"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Kind, rec.Status, rec.Device, created, truncateColumn(summary, summaryColumnMax))
	}
	_ = writer.Flush()
}

// truncateColumn shortens s to at most width terminal cells.
func truncateColumn(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

func countFailed(records []types.Record) int {
	failed := 0
	for _, rec := range records {
		if rec.Status == types.StatusError {
			failed++
		}
	}
	return failed
}

func readSecret(stdin io.Reader, fromStdin bool, flagValue string) (string, error) {
	if !fromStdin {
		if flagValue == "" {
			return "", errors.New("password is required (use --password or --password-stdin)")
		}
		return flagValue, nil
	}
	if stdin == nil {
		return "", errors.New("stdin is not available")
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required on stdin")
	}
	return line, nil
}

func formatExpiry(expires time.Time, now time.Time) string {
	if expires.IsZero() {
		return "no expiry"
	}
	if !expires.After(now) {
		return "expired " + expires.Local().Format(recordTimeLayout)
	}
	return "expires in " + expires.Sub(now).Round(time.Second).String()
}

func exitOnErr(label string, err error, stderr io.Writer) {
	if err == nil {
		return
	}
	fmt.Fprintf(stderr, "%s error: %v\n", label, err)
	os.Exit(1)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision string
		var modified string
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				modified = setting.Value
			}
		}
		if revision != "" {
			if modified == "true" {
				return revision + "-dirty"
			}
			return revision
		}
	}

	exe, err := os.Executable()
	if err == nil {
		file, err := os.Open(exe)
		if err == nil {
			defer file.Close()
			hasher := sha256.New()
			if _, err := io.Copy(hasher, file); err == nil {
				sum := hasher.Sum(nil)
				return fmt.Sprintf("bin-%x", sum[:6])
			}
		}
	}

	return version
}
