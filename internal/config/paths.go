package config

import (
	"os"
	"path/filepath"
)

const appDirName = ".sendme"

// DataDir returns the base data directory for sendme.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	return dataFile("config.toml")
}

// SessionDBPath returns the path to the bbolt credential database.
func SessionDBPath() (string, error) {
	return dataFile("sendme.db")
}

// SessionPath returns the path to the JSON credential file used by the file
// storage backend.
func SessionPath() (string, error) {
	return dataFile("session.json")
}

func LogPath() (string, error) {
	return dataFile("sendme.log")
}

// DownloadsDir is where `download` writes files when no directory is given.
func DownloadsDir() (string, error) {
	return dataFile("downloads")
}

func dataFile(name string) (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, name), nil
}
