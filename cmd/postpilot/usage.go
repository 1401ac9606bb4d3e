package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"postpilot/internal/appinfo"
)

func binaryName() string {
	if len(os.Args) == 0 {
		return "postpilot"
	}
	name := strings.TrimSpace(filepath.Base(os.Args[0]))
	if name == "" {
		return "postpilot"
	}
	return name
}

func isHelpArg(arg string) bool {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "-h", "--help", "-help", "help":
		return true
	default:
		return false
	}
}

func versionString() string {
	return appinfo.Display()
}

func printRootUsage(w io.Writer) {
	bin := binaryName()
	fmt.Fprintf(w, `%s - LinkedIn content queue with an autopilot publisher

Usage:
  %s [command] [options]

Commands:
  dashboard   Interactive TUI (default)
  run         One autopilot pass; prints the report
                --dry-run      generate but do not publish or persist
                --look-ahead   minutes of look-ahead (default from config)
  watch       Keep the autopilot running in the background
  post-now    Publish one queued post immediately (--id required)
  seed        Import pillar/template/idea markdown files (--dir content)
  version     Print the version

Common options:
  --config    path to config.json (default "config.json")

Data lives under the POSTPILOT_DATA directory (default "data").
`, appinfo.Display(), bin)
}
