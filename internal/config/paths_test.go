package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPaths(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))

	dataDir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if !strings.HasSuffix(dataDir, ".sendme") {
		t.Fatalf("unexpected data dir: %s", dataDir)
	}

	cases := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{name: "config", fn: ConfigPath, want: "config.toml"},
		{name: "db", fn: SessionDBPath, want: "sendme.db"},
		{name: "session", fn: SessionPath, want: "session.json"},
		{name: "log", fn: LogPath, want: "sendme.log"},
		{name: "downloads", fn: DownloadsDir, want: "downloads"},
	}
	for _, tc := range cases {
		path, err := tc.fn()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if path != filepath.Join(dataDir, tc.want) {
			t.Fatalf("unexpected %s path: %s", tc.name, path)
		}
	}
}
