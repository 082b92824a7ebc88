package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const apiKeyEnv = "EMBEDDER_API_KEY"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "send":
		if hasHelpFlag(args) {
			printSendHelp()
			return 0
		}
		return runSend(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "inspect":
		if hasHelpFlag(args) {
			printInspectHelp()
			return 0
		}
		return runInspect(args)
	case "doctor":
		if hasHelpFlag(args) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: embedder version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("embedder %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
		GoVersion: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	bi, ok := debug.ReadBuildInfo()
	if ok {
		info.GoVersion = bi.GoVersion
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = buildSetting(bi, "vcs.revision")
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = buildSetting(bi, "vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func buildSetting(bi *debug.BuildInfo, key string) string {
	if bi == nil {
		return ""
	}
	for _, setting := range bi.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

// loadConfig loads path, or the discovered config, or the defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, "", err
		}
		if discovered == "" {
			return config.Defaults(), "", nil
		}
		path = discovered
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func defaultAPIURL() string {
	return "http://" + config.Defaults().API.Listen
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api", defaultAPIURL(), "Host API URL")
	apiKey := fs.String("api-key", os.Getenv(apiKeyEnv), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "watch needs an interactive terminal")
		return 1
	}

	if err := watch.Run(strings.TrimRight(*apiURL, "/"), *apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if isHelpToken(arg) {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`embedder - Host runtime for platform channel messaging

Usage:
  embedder <command> [flags]

Commands:
  start      Run the host loop with the built-in channels in foreground
  send       Send a value to a channel through a running host's API
  watch      Live traffic monitor TUI
  inspect    Traffic report from the journal
  doctor     Check a configuration for runtime problems
  version    Show version information
  help       Show this help message

Use 'embedder <command> --help' for command-specific flags.
`)
}

func printStartHelp() {
	fmt.Println("Usage: embedder start [--config PATH]")
	fmt.Println()
	fmt.Println("Run the host loop until interrupted or service.max_ticks is reached.")
	fmt.Println("Without --config the file is discovered from $EMBEDDER_CONFIG,")
	fmt.Println("~/.config/embedder/config.yaml or ./config.yaml; otherwise defaults apply.")
}

func printSendHelp() {
	fmt.Println("Usage: embedder send --channel NAME [--codec C] [--value JSON] [--method M] [--no-reply] [--api URL]")
	fmt.Println()
	fmt.Println("Encode a JSON value with the channel codec and send it as a frame.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --channel NAME   Target channel (required)")
	fmt.Println("  --codec C        json | standard | string | binary (default: json)")
	fmt.Println("  --value JSON     Message value, or method arguments with --method (default: null)")
	fmt.Println("  --method M       Send a method call instead of a message")
	fmt.Println("  --no-reply       Fire and forget")
	fmt.Printf("  --api URL        Host API URL (default: %s)\n", defaultAPIURL())
	fmt.Printf("  --api-key KEY    API bearer token (or %s env var)\n", apiKeyEnv)
}

func printWatchHelp() {
	fmt.Println("Usage: embedder watch [--api URL] [--api-key KEY]")
	fmt.Println()
	fmt.Println("Live monitor of channel traffic, host ticks and response handles.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Select channel")
}

func printInspectHelp() {
	fmt.Println("Usage: embedder inspect [--db PATH | --config PATH] [--session ID] [--limit N] [--json]")
	fmt.Println("Summarize journaled traffic per channel and list recent messages.")
}

func printDoctorHelp() {
	fmt.Println("Usage: embedder doctor [--config PATH] [--json]")
	fmt.Println("Load the configuration and report errors and warnings. Exits 1 when invalid.")
}
