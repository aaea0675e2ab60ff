package main

import (
	"flag"
	"fmt"
	"os"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir    string
	Listen       string
	GeneratorURL string
	StagesFile   string
	ServeMCP     bool
	DevGenerator bool

	Server  string // API base URL for client commands
	Status  string // session ID to show
	Watch   string // session ID to stream
	List    bool
	Version bool
}

// version is set by the linker at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("contentplan", flag.ContinueOnError)
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory containing contentplan.yml and .env")
	fs.StringVar(&flags.Listen, "listen", "", "API listen address (overrides config)")
	fs.StringVar(&flags.GeneratorURL, "generator", "", "generation service URL (overrides config)")
	fs.StringVar(&flags.StagesFile, "stages", "", "stage definitions YAML (overrides config; default: built-in pipeline)")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "also expose the session tools as an MCP server")
	fs.BoolVar(&flags.DevGenerator, "dev-generator", false, "run an in-process canned generation backend for local development")
	fs.StringVar(&flags.Server, "server", "http://localhost:8080", "API base URL for client commands")
	fs.StringVar(&flags.Status, "status", "", "print the status of a session and exit")
	fs.StringVar(&flags.Watch, "watch", "", "stream a session's progress events and exit when it finishes")
	fs.BoolVar(&flags.List, "list", false, "list sessions and exit")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	switch {
	case flags.Status != "":
		return runStatus(flags.Server, flags.Status)
	case flags.Watch != "":
		return runWatch(flags.Server, flags.Watch)
	case flags.List:
		return runList(flags.Server)
	}

	return runServe(flags)
}
