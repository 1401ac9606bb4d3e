package store

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDataDir resolves where store.json and the run logs live.
// POSTPILOT_DATA wins, then ./data next to the working directory.
func DefaultDataDir() string {
	if dir := strings.TrimSpace(os.Getenv("POSTPILOT_DATA")); dir != "" {
		return dir
	}
	return "data"
}

func DefaultStorePath() string {
	return filepath.Join(DefaultDataDir(), "store.json")
}

func DefaultRunsDir() string {
	return filepath.Join(DefaultDataDir(), "runs")
}
